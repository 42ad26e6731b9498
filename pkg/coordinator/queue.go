package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/metrics"
)

// QueueWorkInput is a client's request to archive one work version.
type QueueWorkInput struct {
	WorkID      int64
	UpdatedTime int64
	Format      models.FileFormat
	Reporter    string
	Title       string
	Author      string
}

// QueueWork admits a job for the reported work.
//
// Returns nil when a version with updated_time at or after the requested one
// is already archived ("already fetched"). Admission is idempotent: an
// incomplete job for the same (work_id, file_format) is returned instead of
// queuing a second one.
func (c *Coordinator) QueueWork(ctx context.Context, in QueueWorkInput) (*int64, error) {
	if !in.Format.Valid() {
		return nil, fmt.Errorf("format %q: %w", in.Format, models.ErrInvalidFormat)
	}

	var jobID *int64
	err := c.store.Transaction(ctx, func(tx *store.GORMStore) error {
		archived, err := tx.HasVersionAtOrAfter(ctx, in.WorkID, in.Format, in.UpdatedTime)
		if err != nil {
			return err
		}
		if archived {
			return nil
		}

		existing, err := tx.FindIncompleteJob(ctx, in.WorkID, in.Format)
		if err != nil {
			return err
		}
		if existing != nil {
			jobID = &existing.JobID
			return nil
		}

		job := models.Job{
			WorkID:        in.WorkID,
			FileFormat:    in.Format,
			UpdatedTime:   in.UpdatedTime,
			Title:         in.Title,
			Author:        in.Author,
			SubmittedTime: time.Now().UTC(),
			SubmittedBy:   in.Reporter,
		}
		if err := tx.CreateJob(ctx, &job); err != nil {
			return err
		}
		jobID = &job.JobID

		metrics.JobsQueued.Inc()
		logger.Info("job queued",
			"job_id", job.JobID,
			"work_id", in.WorkID,
			"format", in.Format,
			"reporter", in.Reporter,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobID, nil
}

// JobOrder is the lease handed to a worker, report code included. The code
// is never revealed again after this response.
type JobOrder struct {
	DispatchID  int64
	JobID       int64
	WorkID      int64
	Format      models.FileFormat
	ReportCode  int16
	UpdatedTime int64
	GetImg      bool
}

// RequestJob leases at most one job to the named worker.
//
// Selection is newest-first among incomplete jobs with no dispatch younger
// than the lease window. A candidate that already spent its dispatch budget
// is failed on the spot and selection moves on. Returns nil when the queue
// is empty.
func (c *Coordinator) RequestJob(ctx context.Context, workerName string) (*JobOrder, error) {
	var order *JobOrder
	err := c.store.Transaction(ctx, func(tx *store.GORMStore) error {
		cutoff := time.Now().Add(-LeaseWindow)

		for {
			job, err := tx.NextDispatchableJob(ctx, cutoff)
			if err != nil {
				return err
			}
			if job == nil {
				return nil
			}

			attempts, err := tx.CountDispatches(ctx, job.JobID)
			if err != nil {
				return err
			}
			if attempts >= MaxDispatchAttempts {
				if err := tx.CompleteJob(ctx, job.JobID, false); err != nil {
					return err
				}
				metrics.JobsExhausted.Inc()
				logger.Warn("job failed after exhausting dispatch budget",
					"job_id", job.JobID,
					"work_id", job.WorkID,
					"attempts", attempts,
				)
				continue
			}

			code, err := newReportCode()
			if err != nil {
				return err
			}
			dispatch := models.Dispatch{
				JobID:            job.JobID,
				DispatchedToName: workerName,
				DispatchedTime:   time.Now().UTC(),
				ReportCode:       code,
			}
			if err := tx.CreateDispatch(ctx, &dispatch); err != nil {
				return err
			}

			metrics.DispatchesLeased.Inc()
			logger.Info("job leased",
				"job_id", job.JobID,
				"dispatch_id", dispatch.DispatchID,
				"work_id", job.WorkID,
				"worker", workerName,
			)

			order = &JobOrder{
				DispatchID:  dispatch.DispatchID,
				JobID:       job.JobID,
				WorkID:      job.WorkID,
				Format:      job.FileFormat,
				ReportCode:  code,
				UpdatedTime: job.UpdatedTime,
				GetImg:      true,
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkDispatchFail records a worker's failure report for a dispatch.
//
// The presented report code must match; a failure may be reported once. When
// the report consumes the job's last dispatch attempt the job is failed
// permanently.
func (c *Coordinator) MarkDispatchFail(ctx context.Context, dispatchID int64, failStatus int, reportCode int16) error {
	return c.store.Transaction(ctx, func(tx *store.GORMStore) error {
		dispatch, err := tx.GetDispatch(ctx, dispatchID)
		if err != nil {
			return err
		}
		if dispatch.ReportCode != reportCode {
			return fmt.Errorf("dispatch %d: %w", dispatchID, models.ErrNotAuthorized)
		}
		if dispatch.FailReported {
			return fmt.Errorf("dispatch %d: %w", dispatchID, models.ErrAlreadyReported)
		}

		job, err := tx.GetJob(ctx, dispatch.JobID)
		if err != nil {
			return err
		}
		// A completed job is terminal; a stale lease holder cannot push it
		// back toward failure.
		if job.Complete {
			return fmt.Errorf("job %d already complete: %w", job.JobID, models.ErrNotAuthorized)
		}

		dispatch.FailReported = true
		dispatch.FailStatus = failStatus
		if err := tx.SaveDispatch(ctx, dispatch); err != nil {
			return err
		}

		metrics.DispatchFailures.Inc()
		logger.Info("dispatch failure reported",
			"dispatch_id", dispatchID,
			"job_id", dispatch.JobID,
			"fail_status", failStatus,
		)

		attempts, err := tx.CountDispatches(ctx, dispatch.JobID)
		if err != nil {
			return err
		}
		if attempts >= MaxDispatchAttempts {
			if err := tx.CompleteJob(ctx, dispatch.JobID, false); err != nil {
				return err
			}
			logger.Warn("job failed permanently", "job_id", dispatch.JobID, "attempts", attempts)
		}
		return nil
	})
}

// JobStatus returns the client-visible state of a job.
func (c *Coordinator) JobStatus(ctx context.Context, jobID int64) (models.JobStatus, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status(), nil
}
