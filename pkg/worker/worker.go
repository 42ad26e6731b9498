package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mirabel-dev/folio/internal/logger"
)

// Worker runs the fetch loop: lease a job, download from the publisher,
// upload the result, then chase any supporting objects the coordinator asks
// for.
type Worker struct {
	cfg     *Config
	client  *Client
	fetcher Fetcher
}

// New creates a worker from configuration.
func New(cfg *Config) (*Worker, error) {
	cfg.applyDefaults()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	fetcher, err := NewHTTPFetcher(cfg.PublisherURL, cfg.Proxy, httpClient)
	if err != nil {
		return nil, err
	}

	return &Worker{
		cfg:     cfg,
		client:  NewClient(cfg.CoordinatorURL, cfg.AdminToken, httpClient),
		fetcher: fetcher,
	}, nil
}

// NewWithDeps creates a worker with explicit collaborators, for tests.
func NewWithDeps(cfg *Config, client *Client, fetcher Fetcher) *Worker {
	cfg.applyDefaults()
	return &Worker{cfg: cfg, client: client, fetcher: fetcher}
}

// Run polls the coordinator until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("worker started",
		"client_name", w.cfg.ClientName,
		"coordinator", w.cfg.CoordinatorURL,
	)

	for {
		worked, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("work cycle failed", "error", err)
		}

		// Go straight back for more while the queue has jobs.
		if worked && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce executes a single work cycle. It reports whether a job was leased.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	order, err := w.client.RequestJob(ctx, w.cfg.ClientName)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, nil
	}

	logger.Info("job leased",
		"job_id", order.JobID,
		"dispatch_id", order.DispatchID,
		"work_id", order.WorkID,
		"format", order.WorkFormat,
	)

	data, err := w.fetcher.FetchWork(ctx, order.WorkID, order.WorkFormat)
	if err != nil {
		return true, w.reportFailure(ctx, order, err)
	}

	resp, err := w.client.SubmitJob(ctx, order.DispatchID, order.ReportCode, data)
	if err != nil {
		return true, err
	}
	logger.Info("job submitted",
		"job_id", order.JobID,
		"status", resp.Status,
		"unfetched_objects", len(resp.Unfetched),
	)

	w.fetchObjects(ctx, resp.Unfetched)
	return true, nil
}

// reportFailure forwards a publisher failure to the coordinator. The HTTP
// status lands in fail_status when the failure was a bad response; transport
// errors report as 0.
func (w *Worker) reportFailure(ctx context.Context, order *JobOrder, fetchErr error) error {
	failStatus := 0
	var fe *FetchError
	if errors.As(fetchErr, &fe) {
		failStatus = fe.StatusCode
	}

	logger.Warn("publisher fetch failed",
		"job_id", order.JobID,
		"work_id", order.WorkID,
		"fail_status", failStatus,
		"error", fetchErr,
	)
	return w.client.JobFail(ctx, order.DispatchID, failStatus, order.ReportCode)
}

// fetchObjects chases supporting objects. Individual failures are logged and
// skipped; the objects stay unfetched and ride along with the next
// submission for this work.
func (w *Worker) fetchObjects(ctx context.Context, objs []UnfetchedObject) {
	for _, obj := range objs {
		data, etag, mimetype, err := w.fetcher.FetchObject(ctx, obj.RequestURL)
		if err != nil {
			logger.Warn("object fetch failed",
				"object_id", obj.ObjectID,
				"url", obj.RequestURL,
				"error", err,
			)
			continue
		}

		if err := w.client.SubmitObject(ctx, obj.ObjectID, data, etag, mimetype); err != nil {
			logger.Warn("object submission failed",
				"object_id", obj.ObjectID,
				"error", err,
			)
			continue
		}
		logger.Debug("object stored", "object_id", obj.ObjectID, "size", len(data))
	}
}
