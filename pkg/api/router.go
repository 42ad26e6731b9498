package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/api/handlers"
	"github.com/mirabel-dev/folio/pkg/api/middleware"
	"github.com/mirabel-dev/folio/pkg/bulk"
	"github.com/mirabel-dev/folio/pkg/coordinator"
	"github.com/mirabel-dev/folio/pkg/metrics"
)

// RouterDeps carries everything the router wires into handlers.
type RouterDeps struct {
	Coordinator *coordinator.Coordinator
	Bulk        *bulk.Manager

	// AdminToken guards the worker protocol. Empty disables those routes.
	AdminToken string
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// The public read surface (reporting, status, downloads, objects) is open and
// CORS-enabled; the worker protocol (leasing, failure reporting, uploads) sits
// behind the admin token.
func NewRouter(config APIConfig, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	works := handlers.NewWorksHandler(deps.Coordinator)
	worker := handlers.NewWorkerHandler(deps.Coordinator, int64(config.MaxUploadSize))
	bulkHandler := handlers.NewBulkHandler(deps.Bulk)
	health := handlers.NewHealthHandler(deps.Coordinator.Store())

	// Public read API, browser-reachable
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(config.CORSOrigins))

		r.Post("/report_work", works.ReportWork)
		r.Get("/work_exists/{work_id}", works.WorkExists)
		r.Get("/job_status", works.JobStatus)
		r.Get("/works/{work_id}", works.GetWork)
		r.Get("/objects/{object_id}", works.GetObject)

		r.Post("/works/dl/bulk_prepare", bulkHandler.Prepare)
		r.Get("/works/dl/bulk_dl/{dl_id}", bulkHandler.Download)
	})

	// Worker protocol, shared-secret guarded
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminToken(deps.AdminToken))

		r.Post("/request_job", worker.RequestJob)
		r.Post("/job_fail", worker.JobFail)
		r.Post("/submit_job", worker.SubmitJob)
		r.Post("/submit_object", worker.SubmitObject)
		r.Post("/submit_work", worker.SubmitWork)
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Live)
		r.Get("/live", health.Live)
		r.Get("/ready", health.Ready)
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}

// requestLogger logs requests using the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
