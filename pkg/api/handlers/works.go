package handlers

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/mirabel-dev/folio/pkg/coordinator"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// WorksHandler serves the public read API: reporting works for archival,
// job status, version listings and downloads, supporting objects.
type WorksHandler struct {
	coord *coordinator.Coordinator
}

// NewWorksHandler creates the public read handler.
func NewWorksHandler(coord *coordinator.Coordinator) *WorksHandler {
	return &WorksHandler{coord: coord}
}

// ReportWork handles POST /report_work.
func (h *WorksHandler) ReportWork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkID      int64  `json:"work_id"`
		UpdatedTime int64  `json:"updated_time"`
		Format      string `json:"format"`
		Reporter    string `json:"reporter"`
		Title       string `json:"title"`
		Author      string `json:"author"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	jobID, err := h.coord.QueueWork(r.Context(), coordinator.QueueWorkInput{
		WorkID:      req.WorkID,
		UpdatedTime: req.UpdatedTime,
		Format:      models.FileFormat(req.Format),
		Reporter:    req.Reporter,
		Title:       req.Title,
		Author:      req.Author,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if jobID == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "already fetched"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "job_id": *jobID})
}

// WorkExists handles GET /work_exists/{work_id}.
func (h *WorksHandler) WorkExists(w http.ResponseWriter, r *http.Request) {
	workID, err := paramInt64(r, "work_id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	exists, err := h.coord.WorkExists(r.Context(), workID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// JobStatus handles GET /job_status?job_id=N.
func (h *WorksHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(r.URL.Query().Get("job_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid job_id"})
		return
	}

	status, err := h.coord.JobStatus(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "job_id": jobID})
}

// landingTemplate renders the version listing for a work.
var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>Archived versions of work {{.WorkID}}</title></head>
<body>
<h1>Archived versions of work {{.WorkID}}</h1>
<table>
<tr><th>Archived</th><th>Format</th><th>Title</th><th></th></tr>
{{range .Versions}}
<tr>
<td>{{.Date}}</td>
<td>{{.Format}}</td>
<td>{{.Title}}</td>
<td><a href="/works/{{$.WorkID}}?version={{.StorageID}}">download</a></td>
</tr>
{{end}}
</table>
</body>
</html>
`))

// GetWork handles GET /works/{work_id}.
//
// Without a version query it renders a landing page listing every stored
// version; with ?version=<storage_id> it streams the reconstructed bytes of
// that version.
func (h *WorksHandler) GetWork(w http.ResponseWriter, r *http.Request) {
	workID, err := paramInt64(r, "work_id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if raw := r.URL.Query().Get("version"); raw != "" {
		storageID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid version"})
			return
		}
		h.serveVersion(w, r, workID, storageID)
		return
	}

	versions, err := h.coord.WorkVersions(r.Context(), workID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(versions) == 0 {
		writeError(w, fmt.Errorf("work %d: %w", workID, models.ErrWorkNotFound))
		return
	}

	type row struct {
		StorageID int64
		Date      string
		Format    models.FileFormat
		Title     string
	}
	page := struct {
		WorkID   int64
		Versions []row
	}{WorkID: workID}
	for _, v := range versions {
		page.Versions = append(page.Versions, row{
			StorageID: v.StorageID,
			Date:      v.UploadedTime.Format(time.RFC1123),
			Format:    v.FileFormat,
			Title:     v.Title,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTemplate.Execute(w, page); err != nil {
		writeError(w, err)
	}
}

// serveVersion streams one reconstructed version.
func (h *WorksHandler) serveVersion(w http.ResponseWriter, r *http.Request, workID, storageID int64) {
	data, entry, err := h.coord.GetVersion(r.Context(), storageID)
	if err != nil {
		writeError(w, err)
		return
	}
	// A storage id belonging to another work is indistinguishable from a
	// missing one.
	if entry.WorkID != workID {
		writeError(w, fmt.Errorf("storage entry %d: %w", storageID, models.ErrWorkNotFound))
		return
	}

	w.Header().Set("Content-Type", entry.FileFormat.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%d.%s", workID, entry.FileFormat)))
	w.Write(data)
}

// GetObject handles GET /objects/{object_id}.
//
// Payloads are content-addressed and never change, so responses are marked
// immutable for a year.
func (h *WorksHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	objectID, err := paramInt64(r, "object_id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	data, index, err := h.coord.GetObject(r.Context(), objectID)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := index.Mimetype
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	w.Write(data)
}
