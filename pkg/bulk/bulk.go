// Package bulk streams zip archives of multiple works on demand.
//
// A client first posts the list of works it wants and receives a random
// download id from a small in-process LRU cache; a later GET with that id
// streams the archive. There is no explicit expiry beyond LRU eviction.
package bulk

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/coordinator"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// DefaultCacheSize bounds the number of prepared downloads held at once.
const DefaultCacheSize = 50

// ErrUnknownDownload is returned for download ids that were never prepared
// or have been evicted.
var ErrUnknownDownload = errors.New("unknown download id")

// Entry names one work to include in a bulk archive.
type Entry struct {
	WorkID int64  `json:"work_id"`
	Title  string `json:"title"`
}

// filenamePattern matches characters that cannot appear in zip entry names.
var filenamePattern = regexp.MustCompile(`[/\\?%*:|"<>\x7F\x00-\x1F]`)

// Manager owns the prepared-download cache. Safe for concurrent use; the
// LRU is internally locked.
type Manager struct {
	coord *coordinator.Coordinator
	cache *lru.Cache[string, []Entry]
}

// NewManager creates a bulk download manager with the given cache bound.
func NewManager(coord *coordinator.Coordinator, cacheSize int) (*Manager, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []Entry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Manager{coord: coord, cache: cache}, nil
}

// Prepare registers a download and returns its random id.
func (m *Manager) Prepare(entries []Entry) string {
	dlID := uuid.New().String()
	m.cache.Add(dlID, entries)
	logger.Debug("bulk download prepared", "dl_id", dlID, "works", len(entries))
	return dlID
}

// Known reports whether the download id is still cached. Callers check this
// before committing response headers, since Stream writes incrementally.
func (m *Manager) Known(dlID string) bool {
	return m.cache.Contains(dlID)
}

// Stream writes the zip archive for a prepared download id to w.
//
// Each entry is the current PDF HEAD of its work; works whose HEAD cannot be
// fetched are skipped rather than aborting the archive. The writer emits
// zip64 records when sizes demand it, so archives may exceed 4 GiB.
func (m *Manager) Stream(ctx context.Context, dlID string, w io.Writer) error {
	entries, ok := m.cache.Get(dlID)
	if !ok {
		return fmt.Errorf("download %q: %w", dlID, ErrUnknownDownload)
	}

	zw := zip.NewWriter(w)
	for _, entry := range entries {
		data, _, err := m.coord.GetHead(ctx, entry.WorkID, models.FormatPDF)
		if err != nil {
			logger.Warn("skipping work in bulk download",
				"dl_id", dlID,
				"work_id", entry.WorkID,
				"error", err,
			)
			continue
		}

		header := &zip.FileHeader{
			Name:     ArchiveFilename(entry.Title, entry.WorkID),
			Method:   zip.Deflate,
			Modified: time.Now(),
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create zip entry for work %d: %w", entry.WorkID, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write zip entry for work %d: %w", entry.WorkID, err)
		}
	}
	return zw.Close()
}

// ArchiveFilename builds the zip entry name for a work, with unsafe
// characters replaced by '-'.
func ArchiveFilename(title string, workID int64) string {
	return fmt.Sprintf("%s (%d).pdf", filenamePattern.ReplaceAllString(title, "-"), workID)
}
