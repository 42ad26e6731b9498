package handlers

import (
	"net/http"

	"github.com/mirabel-dev/folio/pkg/coordinator"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// WorkerHandler serves the admin-token-guarded worker protocol: leasing,
// failure reporting, and uploads.
type WorkerHandler struct {
	coord     *coordinator.Coordinator
	maxUpload int64
}

// NewWorkerHandler creates the worker protocol handler.
func NewWorkerHandler(coord *coordinator.Coordinator, maxUpload int64) *WorkerHandler {
	return &WorkerHandler{coord: coord, maxUpload: maxUpload}
}

// uploadMemoryLimit is how much of a multipart body stays in memory before
// spilling to disk.
const uploadMemoryLimit = 32 << 20

// parseUpload enforces the upload size cap and parses the multipart form.
func (h *WorkerHandler) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid multipart form"})
		return false
	}
	return true
}

// RequestJob handles POST /request_job.
func (h *WorkerHandler) RequestJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientName string `json:"client_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	order, err := h.coord.RequestJob(r.Context(), req.ClientName)
	if err != nil {
		writeError(w, err)
		return
	}
	if order == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "queue empty"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "job assigned",
		"dispatch_id": order.DispatchID,
		"job_id":      order.JobID,
		"work_id":     order.WorkID,
		"work_format": order.Format,
		"report_code": order.ReportCode,
		"updated":     order.UpdatedTime,
		"get_img":     order.GetImg,
	})
}

// JobFail handles POST /job_fail.
func (h *WorkerHandler) JobFail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DispatchID int64 `json:"dispatch_id"`
		FailStatus int   `json:"fail_status"`
		ReportCode int16 `json:"report_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.coord.MarkDispatchFail(r.Context(), req.DispatchID, req.FailStatus, req.ReportCode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "failure recorded"})
}

// SubmitJob handles POST /submit_job (multipart).
func (h *WorkerHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r) {
		return
	}

	dispatchID, err := formInt64(r, "dispatch_id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	reportCode, err := formReportCode(r, "report_code")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	data, err := readFormFile(r, "work")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	result, err := h.coord.SubmitJob(r.Context(), dispatchID, reportCode, data)
	if err != nil {
		writeError(w, err)
		return
	}

	status := "accepted"
	if result.Duplicate {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"unfetched_objects": unfetchedDTOs(result.Unfetched),
	})
}

// SubmitObject handles POST /submit_object (multipart).
func (h *WorkerHandler) SubmitObject(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r) {
		return
	}

	objectID, err := formInt64(r, "object_id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	data, err := readFormFile(r, "object_file")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	err = h.coord.SubmitObject(r.Context(), objectID, data,
		r.FormValue("etag"), r.FormValue("mimetype"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// SubmitWork handles POST /submit_work (multipart sideload, bypassing the queue).
func (h *WorkerHandler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r) {
		return
	}

	workID, err := formInt64(r, "work_id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	updatedTime, err := formInt64(r, "updated_time")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	data, err := readFormFile(r, "work")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	result, err := h.coord.SideloadWork(r.Context(), coordinator.SideloadInput{
		WorkID:      workID,
		Data:        data,
		Format:      models.FileFormat(r.FormValue("file_format")),
		UpdatedTime: updatedTime,
		RequesterID: r.FormValue("requester_id"),
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "accepted",
		"unfetched_objects": unfetchedDTOs(result.Unfetched),
	})
}
