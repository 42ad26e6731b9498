package objects

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/store/blob/memory"
)

func newTestStore(t *testing.T) *store.GORMStore {
	t.Helper()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRewriteRedirectsImages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw := []byte(`<html><body>` +
		`<img src="https://pub.example/a.png">` +
		`<img src="https://pub.example/b.png" alt="b">` +
		`<img alt="no source">` +
		`</body></html>`)

	var out []byte
	var unfetched []models.UnfetchedObject
	err := s.Transaction(ctx, func(tx *store.GORMStore) error {
		var err error
		out, unfetched, err = Rewrite(ctx, tx, raw, time.Now().UTC())
		return err
	})
	require.NoError(t, err)
	require.Len(t, unfetched, 2)

	// Distinct ids from the shared sequence, one row per image.
	assert.NotEqual(t, unfetched[0].ObjectID, unfetched[1].ObjectID)
	assert.Equal(t, "https://pub.example/a.png", unfetched[0].RequestURL)
	assert.Equal(t, "https://pub.example/b.png", unfetched[1].RequestURL)

	html := string(out)
	assert.Contains(t, html, fmt.Sprintf(`src="/objects/%d"`, unfetched[0].ObjectID))
	assert.Contains(t, html, fmt.Sprintf(`src="/objects/%d"`, unfetched[1].ObjectID))
	// Browsers fall back to the publisher while the payload is unfetched.
	assert.Contains(t, html, `this.src=&#39;https://pub.example/a.png&#39;`)

	// The unfetched rows are visible after commit.
	row, err := s.GetUnfetchedObject(ctx, unfetched[0].ObjectID)
	require.NoError(t, err)
	assert.Equal(t, "https://pub.example/a.png", row.RequestURL)
}

func TestRewritePlainTextHTML(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw := []byte(`<html><body><p>no images here</p></body></html>`)
	var unfetched []models.UnfetchedObject
	err := s.Transaction(ctx, func(tx *store.GORMStore) error {
		var err error
		_, unfetched, err = Rewrite(ctx, tx, raw, time.Now().UTC())
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, unfetched)
}

func addUnfetched(t *testing.T, s *store.GORMStore, url string) int64 {
	t.Helper()
	ctx := context.Background()

	var id int64
	require.NoError(t, s.Transaction(ctx, func(tx *store.GORMStore) error {
		var err error
		id, err = tx.AllocateObjectID(ctx)
		if err != nil {
			return err
		}
		return tx.CreateUnfetchedObject(ctx, &models.UnfetchedObject{
			ObjectID:   id,
			RequestURL: url,
			Timestamp:  time.Now().UTC(),
		})
	}))
	return id
}

func TestSubmitNewPayload(t *testing.T) {
	s := newTestStore(t)
	blobs := memory.New()
	ctx := context.Background()

	id := addUnfetched(t, s, "https://pub.example/a.png")
	payload := []byte("png bytes")

	require.NoError(t, s.Transaction(ctx, func(tx *store.GORMStore) error {
		return Submit(ctx, tx, blobs, id, payload, `"etag-a"`, "image/png")
	}))

	// The unfetched row is gone and the id resolves to the payload.
	_, err := s.GetUnfetchedObject(ctx, id)
	assert.ErrorIs(t, err, models.ErrObjectNotFound)

	index, stored, err := s.ResolveObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", index.Mimetype)

	sum := sha1.Sum(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), stored.SHA1)

	data, err := blobs.Get(ctx, stored.Location)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestSubmitIdenticalPayloadSharesBlob(t *testing.T) {
	s := newTestStore(t)
	blobs := memory.New()
	ctx := context.Background()

	payload := []byte("shared bytes")
	idA := addUnfetched(t, s, "https://pub.example/a.png")
	idB := addUnfetched(t, s, "https://pub.example/b.png")

	require.NoError(t, s.Transaction(ctx, func(tx *store.GORMStore) error {
		return Submit(ctx, tx, blobs, idA, payload, "", "image/png")
	}))
	require.NoError(t, s.Transaction(ctx, func(tx *store.GORMStore) error {
		return Submit(ctx, tx, blobs, idB, payload, "", "image/png")
	}))

	// Both ids resolve; only one payload blob exists.
	_, storedA, err := s.ResolveObject(ctx, idA)
	require.NoError(t, err)
	_, storedB, err := s.ResolveObject(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, storedA.Location, storedB.Location)
	assert.Equal(t, 1, blobs.Len())
}

func TestSubmitExactDuplicateCreatesMapping(t *testing.T) {
	s := newTestStore(t)
	blobs := memory.New()
	ctx := context.Background()

	url := "https://pub.example/logo.png"
	payload := []byte("logo bytes")
	etag := `"v1"`

	first := addUnfetched(t, s, url)
	require.NoError(t, s.Transaction(ctx, func(tx *store.GORMStore) error {
		return Submit(ctx, tx, blobs, first, payload, etag, "image/png")
	}))

	// The same URL appears in a later work; same etag and bytes come back.
	second := addUnfetched(t, s, url)
	require.NoError(t, s.Transaction(ctx, func(tx *store.GORMStore) error {
		return Submit(ctx, tx, blobs, second, payload, etag, "image/png")
	}))

	// The second id collapsed into a duplicate mapping onto the first.
	mapping, err := s.GetDuplicateMapping(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, first, mapping.DuplicateObjectID)

	index, _, err := s.ResolveObject(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first, index.ObjectID)
	assert.Equal(t, 1, blobs.Len())
}

func TestSubmitUnknownObject(t *testing.T) {
	s := newTestStore(t)
	blobs := memory.New()
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *store.GORMStore) error {
		return Submit(ctx, tx, blobs, 999, []byte("x"), "", "")
	})
	assert.ErrorIs(t, err, models.ErrObjectNotFound)
	assert.Zero(t, blobs.Len())
}

func TestResolveObjectUnknown(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.ResolveObject(context.Background(), 123)
	assert.ErrorIs(t, err, models.ErrObjectNotFound)
}
