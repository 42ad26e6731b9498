// Package handlers implements the coordinator's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// decodeJSON decodes a JSON request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// paramInt64 parses a chi URL parameter as int64.
func paramInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}

// formInt64 parses a form field as int64.
func formInt64(r *http.Request, name string) (int64, error) {
	raw := r.FormValue(name)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}

// formReportCode parses a form field as the 16-bit report code.
func formReportCode(r *http.Request, name string) (int16, error) {
	raw := r.FormValue(name)
	value, err := strconv.ParseInt(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return int16(value), nil
}

// readFormFile reads an uploaded multipart file into memory.
// The multipart form must already be parsed with the upload cap applied.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing file field %q: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file field %q: %w", field, err)
	}
	return data, nil
}

// unfetchedObjectDTO is the wire shape of an unfetched-object descriptor
// returned to workers. The protocol also allows optional etag/sha1 hints for
// conditional fetches; unfetched rows carry neither (both are first learned
// from the worker's submission), so the fields are omitted here.
type unfetchedObjectDTO struct {
	ObjectID   int64  `json:"object_id"`
	RequestURL string `json:"request_url"`
	Stalled    bool   `json:"stalled"`
}

// unfetchedDTOs converts model rows to wire descriptors. Always returns a
// non-nil slice so the JSON field encodes as [] rather than null.
func unfetchedDTOs(objs []models.UnfetchedObject) []unfetchedObjectDTO {
	out := make([]unfetchedObjectDTO, 0, len(objs))
	for _, obj := range objs {
		out = append(out, unfetchedObjectDTO{
			ObjectID:   obj.ObjectID,
			RequestURL: obj.RequestURL,
			Stalled:    obj.Stalled,
		})
	}
	return out
}
