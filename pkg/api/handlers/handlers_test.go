package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirabel-dev/folio/pkg/api"
	"github.com/mirabel-dev/folio/pkg/bulk"
	"github.com/mirabel-dev/folio/pkg/coordinator"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/store/blob/memory"
)

const testToken = "test-admin-token"

func newTestServer(t *testing.T) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	coord := coordinator.New(st, memory.New())
	bulkManager, err := bulk.NewManager(coord, 10)
	require.NoError(t, err)

	router := api.NewRouter(api.APIConfig{}, api.RouterDeps{
		Coordinator: coord,
		Bulk:        bulkManager,
		AdminToken:  testToken,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, coord
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestReportWorkQueuesJob(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/report_work", "", map[string]any{
		"work_id":      7,
		"updated_time": 1000,
		"format":       "pdf",
		"reporter":     "reader-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "queued", body["status"])
	assert.NotZero(t, body["job_id"])

	// Re-reporting the same work returns the same job id.
	resp = postJSON(t, server.URL+"/report_work", "", map[string]any{
		"work_id":      7,
		"updated_time": 1000,
		"format":       "pdf",
	})
	second := decodeBody(t, resp)
	assert.Equal(t, body["job_id"], second["job_id"])
}

func TestReportWorkInvalidFormat(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/report_work", "", map[string]any{
		"work_id": 7,
		"format":  "docx",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobStatusLifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/report_work", "", map[string]any{
		"work_id": 7, "updated_time": 1000, "format": "pdf",
	})
	jobID := int64(decodeBody(t, resp)["job_id"].(float64))

	statusResp, err := http.Get(fmt.Sprintf("%s/job_status?job_id=%d", server.URL, jobID))
	require.NoError(t, err)
	body := decodeBody(t, statusResp)
	assert.Equal(t, "queued", body["status"])

	statusResp, err = http.Get(server.URL + "/job_status?job_id=99999")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, statusResp.StatusCode)
}

func TestWorkerEndpointsRequireToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/request_job", "", map[string]string{"client_name": "w1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, server.URL+"/request_job", "wrong-token", map[string]string{"client_name": "w1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWorkerEndpointsDisabledWithoutToken(t *testing.T) {
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	coord := coordinator.New(st, memory.New())
	bulkManager, err := bulk.NewManager(coord, 10)
	require.NoError(t, err)

	router := api.NewRouter(api.APIConfig{}, api.RouterDeps{
		Coordinator: coord,
		Bulk:        bulkManager,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp := postJSON(t, server.URL+"/request_job", "anything", map[string]string{"client_name": "w1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestJobEmptyQueue(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/request_job", testToken, map[string]string{"client_name": "w1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "queue empty", body["status"])
}

func submitMultipart(t *testing.T, url, token string, fields map[string]string, fileField string, data []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	fw, err := mw.CreateFormFile(fileField, "payload")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("token", token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestFullWorkerFlow(t *testing.T) {
	server, coord := newTestServer(t)

	// Queue a work.
	resp := postJSON(t, server.URL+"/report_work", "", map[string]any{
		"work_id": 7, "updated_time": 1000, "format": "pdf",
	})
	jobID := int64(decodeBody(t, resp)["job_id"].(float64))

	// Lease it.
	resp = postJSON(t, server.URL+"/request_job", testToken, map[string]string{"client_name": "w1"})
	order := decodeBody(t, resp)
	require.Equal(t, "job assigned", order["status"])
	assert.Equal(t, float64(7), order["work_id"])
	assert.Equal(t, "pdf", order["work_format"])
	assert.Equal(t, true, order["get_img"])

	dispatchID := int64(order["dispatch_id"].(float64))
	reportCode := int64(order["report_code"].(float64))

	// Submit the fetched bytes.
	resp = submitMultipart(t, server.URL+"/submit_job", testToken, map[string]string{
		"dispatch_id": strconv.FormatInt(dispatchID, 10),
		"report_code": strconv.FormatInt(reportCode, 10),
	}, "work", []byte("the pdf content"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	submitBody := decodeBody(t, resp)
	assert.Equal(t, "accepted", submitBody["status"])
	assert.NotNil(t, submitBody["unfetched_objects"])

	// The job is completed.
	statusResp, err := http.Get(fmt.Sprintf("%s/job_status?job_id=%d", server.URL, jobID))
	require.NoError(t, err)
	assert.Equal(t, "completed", decodeBody(t, statusResp)["status"])

	// work_exists now says yes.
	existsResp, err := http.Get(server.URL + "/work_exists/7")
	require.NoError(t, err)
	assert.Equal(t, true, decodeBody(t, existsResp)["exists"])

	// The landing page lists the version.
	pageResp, err := http.Get(server.URL + "/works/7")
	require.NoError(t, err)
	pageResp.Body.Close()
	assert.Equal(t, http.StatusOK, pageResp.StatusCode)
	assert.Contains(t, pageResp.Header.Get("Content-Type"), "text/html")

	versions, err := coord.WorkVersions(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	// The version downloads with the right content type.
	dlResp, err := http.Get(fmt.Sprintf("%s/works/7?version=%d", server.URL, versions[0].StorageID))
	require.NoError(t, err)
	defer dlResp.Body.Close()
	assert.Equal(t, http.StatusOK, dlResp.StatusCode)
	assert.Equal(t, "application/pdf", dlResp.Header.Get("Content-Type"))
}

func TestJobFailEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	postJSON(t, server.URL+"/report_work", "", map[string]any{
		"work_id": 7, "updated_time": 1000, "format": "pdf",
	}).Body.Close()

	resp := postJSON(t, server.URL+"/request_job", testToken, map[string]string{"client_name": "w1"})
	order := decodeBody(t, resp)
	dispatchID := int64(order["dispatch_id"].(float64))
	reportCode := int64(order["report_code"].(float64))

	resp = postJSON(t, server.URL+"/job_fail", testToken, map[string]any{
		"dispatch_id": dispatchID,
		"fail_status": 404,
		"report_code": reportCode,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failure recorded", decodeBody(t, resp)["status"])

	// Reporting the same failure twice conflicts.
	resp = postJSON(t, server.URL+"/job_fail", testToken, map[string]any{
		"dispatch_id": dispatchID,
		"fail_status": 404,
		"report_code": reportCode,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWorkNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/works/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetObjectNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/objects/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBulkPrepareAndDownload(t *testing.T) {
	server, coord := newTestServer(t)

	_, err := coord.SideloadWork(context.Background(), coordinator.SideloadInput{
		WorkID:      1,
		Data:        []byte("pdf bytes"),
		Format:      models.FormatPDF,
		UpdatedTime: 1,
	})
	require.NoError(t, err)

	resp := postJSON(t, server.URL+"/works/dl/bulk_prepare", "", []map[string]any{
		{"work_id": 1, "title": "Only Work"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dlID := decodeBody(t, resp)["dl_id"].(string)
	require.NotEmpty(t, dlID)

	dlResp, err := http.Get(server.URL + "/works/dl/bulk_dl/" + dlID)
	require.NoError(t, err)
	defer dlResp.Body.Close()
	assert.Equal(t, http.StatusOK, dlResp.StatusCode)
	assert.Equal(t, "application/zip", dlResp.Header.Get("Content-Type"))

	// Unknown ids are a 404 before any bytes stream.
	missResp, err := http.Get(server.URL + "/works/dl/bulk_dl/nope")
	require.NoError(t, err)
	defer missResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, missResp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
