package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Fetcher retrieves content from the publisher.
type Fetcher interface {
	// FetchWork downloads a work in the given format.
	FetchWork(ctx context.Context, workID int64, format string) ([]byte, error)

	// FetchObject downloads a supporting object and returns its bytes along
	// with the response ETag and Content-Type.
	FetchObject(ctx context.Context, requestURL string) ([]byte, string, string, error)
}

// HTTPFetcher fetches publisher content over HTTP, optionally through a
// proxy. The proxy only applies here; coordinator traffic stays direct.
type HTTPFetcher struct {
	template string
	http     *http.Client
}

// NewHTTPFetcher creates a publisher fetcher. template is expanded with
// fmt.Sprintf(template, workID, format).
func NewHTTPFetcher(template, proxy string, base *http.Client) (*HTTPFetcher, error) {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		client.Transport = transport
	}

	return &HTTPFetcher{template: template, http: client}, nil
}

// FetchWork downloads a work from the publisher.
func (f *HTTPFetcher) FetchWork(ctx context.Context, workID int64, format string) ([]byte, error) {
	data, _, _, err := f.get(ctx, fmt.Sprintf(f.template, workID, format))
	return data, err
}

// FetchObject downloads a supporting object.
func (f *HTTPFetcher) FetchObject(ctx context.Context, requestURL string) ([]byte, string, string, error) {
	return f.get(ctx, requestURL)
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", "", err
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", err
	}
	return data, resp.Header.Get("ETag"), resp.Header.Get("Content-Type"), nil
}

// FetchError is a non-200 publisher response. Its status code is forwarded to
// the coordinator as the dispatch fail status.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}
