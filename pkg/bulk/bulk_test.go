package bulk

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirabel-dev/folio/pkg/coordinator"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/store/blob/memory"
)

func newTestManager(t *testing.T) (*Manager, *coordinator.Coordinator) {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	coord := coordinator.New(st, memory.New())
	m, err := NewManager(coord, 10)
	require.NoError(t, err)
	return m, coord
}

func sideloadPDF(t *testing.T, coord *coordinator.Coordinator, workID int64, data []byte) {
	t.Helper()
	_, err := coord.SideloadWork(context.Background(), coordinator.SideloadInput{
		WorkID:      workID,
		Data:        data,
		Format:      models.FormatPDF,
		UpdatedTime: 1,
	})
	require.NoError(t, err)
}

func TestPrepareAndStream(t *testing.T) {
	m, coord := newTestManager(t)
	ctx := context.Background()

	sideloadPDF(t, coord, 1, []byte("pdf one"))
	sideloadPDF(t, coord, 2, []byte("pdf two"))

	dlID := m.Prepare([]Entry{
		{WorkID: 1, Title: "First Work"},
		{WorkID: 2, Title: "Second Work"},
	})
	require.NotEmpty(t, dlID)
	assert.True(t, m.Known(dlID))

	var buf bytes.Buffer
	require.NoError(t, m.Stream(ctx, dlID, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	contents := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = data
	}
	assert.Equal(t, []byte("pdf one"), contents["First Work (1).pdf"])
	assert.Equal(t, []byte("pdf two"), contents["Second Work (2).pdf"])
}

func TestStreamSkipsMissingWorks(t *testing.T) {
	m, coord := newTestManager(t)
	ctx := context.Background()

	sideloadPDF(t, coord, 1, []byte("pdf one"))

	dlID := m.Prepare([]Entry{
		{WorkID: 1, Title: "Present"},
		{WorkID: 999, Title: "Missing"},
	})

	var buf bytes.Buffer
	require.NoError(t, m.Stream(ctx, dlID, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "Present (1).pdf", zr.File[0].Name)
}

func TestStreamUnknownDownload(t *testing.T) {
	m, _ := newTestManager(t)

	var buf bytes.Buffer
	err := m.Stream(context.Background(), "nope", &buf)
	assert.ErrorIs(t, err, ErrUnknownDownload)
	assert.False(t, m.Known("nope"))
}

func TestArchiveFilenameSanitisation(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Plain Title", "Plain Title (7).pdf"},
		{`What/About\These?`, "What-About-These- (7).pdf"},
		{`Quotes "inside" <tags>`, "Quotes -inside- -tags- (7).pdf"},
		{"Colons: and |pipes|", "Colons- and -pipes- (7).pdf"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ArchiveFilename(tc.title, 7))
	}
}

func TestCacheEviction(t *testing.T) {
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m, err := NewManager(coordinator.New(st, memory.New()), 2)
	require.NoError(t, err)

	first := m.Prepare([]Entry{{WorkID: 1}})
	second := m.Prepare([]Entry{{WorkID: 2}})
	third := m.Prepare([]Entry{{WorkID: 3}})

	// Capacity two: the oldest prepared download is evicted.
	assert.False(t, m.Known(first))
	assert.True(t, m.Known(second))
	assert.True(t, m.Known(third))
}
