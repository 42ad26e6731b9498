package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/bulk"
)

// BulkHandler serves multi-work zip downloads.
type BulkHandler struct {
	manager *bulk.Manager
}

// NewBulkHandler creates the bulk download handler.
func NewBulkHandler(manager *bulk.Manager) *BulkHandler {
	return &BulkHandler{manager: manager}
}

// Prepare handles POST /works/dl/bulk_prepare.
func (h *BulkHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	var entries []bulk.Entry
	if err := decodeJSON(r, &entries); err != nil {
		writeBadRequest(w, err)
		return
	}

	dlID := h.manager.Prepare(entries)
	writeJSON(w, http.StatusOK, map[string]string{"dl_id": dlID})
}

// Download handles GET /works/dl/bulk_dl/{dl_id}.
//
// The archive is built while streaming, so a mid-archive failure surfaces as
// a truncated body rather than an error status.
func (h *BulkHandler) Download(w http.ResponseWriter, r *http.Request) {
	dlID := chi.URLParam(r, "dl_id")

	if !h.manager.Known(dlID) {
		writeError(w, bulk.ErrUnknownDownload)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="works.zip"`)
	if err := h.manager.Stream(r.Context(), dlID, w); err != nil {
		logger.Error("bulk download stream failed", "dl_id", dlID, "error", err)
	}
}
