package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
)

// Client talks the coordinator's worker protocol.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a coordinator client.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

// JobOrder is a leased job as returned by the coordinator.
type JobOrder struct {
	Status     string `json:"status"`
	DispatchID int64  `json:"dispatch_id"`
	JobID      int64  `json:"job_id"`
	WorkID     int64  `json:"work_id"`
	WorkFormat string `json:"work_format"`
	ReportCode int16  `json:"report_code"`
	Updated    int64  `json:"updated"`
	GetImg     bool   `json:"get_img"`
}

// UnfetchedObject describes a supporting object the coordinator still needs.
type UnfetchedObject struct {
	ObjectID   int64  `json:"object_id"`
	RequestURL string `json:"request_url"`
	Stalled    bool   `json:"stalled"`
}

// SubmitResponse is the coordinator's answer to a work upload.
type SubmitResponse struct {
	Status    string            `json:"status"`
	Unfetched []UnfetchedObject `json:"unfetched_objects"`
}

// RequestJob leases the next job. Returns nil when the queue is empty.
func (c *Client) RequestJob(ctx context.Context, clientName string) (*JobOrder, error) {
	var order JobOrder
	err := c.postJSON(ctx, "/request_job", map[string]string{"client_name": clientName}, &order)
	if err != nil {
		return nil, err
	}
	if order.Status != "job assigned" {
		return nil, nil
	}
	return &order, nil
}

// JobFail reports a failed fetch attempt.
func (c *Client) JobFail(ctx context.Context, dispatchID int64, failStatus int, reportCode int16) error {
	return c.postJSON(ctx, "/job_fail", map[string]any{
		"dispatch_id": dispatchID,
		"fail_status": failStatus,
		"report_code": reportCode,
	}, nil)
}

// SubmitJob uploads the fetched work bytes for a dispatch.
func (c *Client) SubmitJob(ctx context.Context, dispatchID int64, reportCode int16, data []byte) (*SubmitResponse, error) {
	fields := map[string]string{
		"dispatch_id": strconv.FormatInt(dispatchID, 10),
		"report_code": strconv.FormatInt(int64(reportCode), 10),
	}
	var resp SubmitResponse
	if err := c.postMultipart(ctx, "/submit_job", fields, "work", data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitObject uploads a supporting object payload.
func (c *Client) SubmitObject(ctx context.Context, objectID int64, data []byte, etag, mimetype string) error {
	fields := map[string]string{
		"object_id": strconv.FormatInt(objectID, 10),
		"etag":      etag,
		"mimetype":  mimetype,
	}
	return c.postMultipart(ctx, "/submit_object", fields, "object_file", data, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, fileField string, data []byte, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile(fileField, fileField)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode coordinator response: %w", err)
	}
	return nil
}
