package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mirabel-dev/folio/internal/logger"
	"github.com/mirabel-dev/folio/pkg/archive"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
	"github.com/mirabel-dev/folio/pkg/coordinator/store"
	"github.com/mirabel-dev/folio/pkg/metrics"
	"github.com/mirabel-dev/folio/pkg/objects"
)

// SubmitResult is the outcome of a successful job submission.
type SubmitResult struct {
	Duplicate bool
	Unfetched []models.UnfetchedObject
}

// SubmitJob accepts the bytes a worker fetched for its dispatch and runs the
// whole submission pipeline in one transaction: validate the lease, store
// the version, finalise the dispatch, complete the job.
//
// A DuplicateDetected from the version engine is a success: the dispatch is
// completed with found_as_duplicate and the job still succeeds. The slight
// asymmetry (dispatch flagged, job not) is deliberate; downstream observers
// key on it.
func (c *Coordinator) SubmitJob(ctx context.Context, dispatchID int64, reportCode int16, data []byte) (*SubmitResult, error) {
	result := &SubmitResult{}
	err := c.store.Transaction(ctx, func(tx *store.GORMStore) error {
		dispatch, err := tx.GetOpenDispatch(ctx, dispatchID)
		if err != nil {
			return err
		}
		if dispatch.ReportCode != reportCode {
			return fmt.Errorf("dispatch %d: %w", dispatchID, models.ErrNotAuthorized)
		}

		job, err := tx.GetJob(ctx, dispatch.JobID)
		if err != nil {
			return err
		}
		// An expired lease can be re-dispatched; if the other holder already
		// completed the job this submission lost the race.
		if job.Complete {
			return fmt.Errorf("job %d already complete: %w", job.JobID, models.ErrNotAuthorized)
		}

		stored, err := c.engine.Store(ctx, tx, archive.StoreInput{
			WorkID:        job.WorkID,
			Data:          data,
			UploadedTime:  time.Now().UTC(),
			UpdatedTime:   job.UpdatedTime,
			RetrievedFrom: job.SubmittedBy,
			Format:        job.FileFormat,
			Title:         job.Title,
			Author:        job.Author,
		})
		switch {
		case errors.Is(err, models.ErrDuplicateDetected):
			dispatch.FoundAsDuplicate = true
			metrics.DuplicatesDetected.Inc()
			logger.Info("publisher returned identical content",
				"job_id", job.JobID,
				"work_id", job.WorkID,
			)
		case err != nil:
			return err
		default:
			result.Unfetched = stored.Unfetched
			metrics.VersionsStored.Inc()
		}

		dispatch.Complete = true
		if err := tx.SaveDispatch(ctx, dispatch); err != nil {
			return err
		}
		if err := tx.CompleteJob(ctx, job.JobID, true); err != nil {
			return err
		}

		result.Duplicate = dispatch.FoundAsDuplicate
		logger.Info("job submission accepted",
			"job_id", job.JobID,
			"dispatch_id", dispatchID,
			"work_id", job.WorkID,
			"duplicate", dispatch.FoundAsDuplicate,
			"unfetched_objects", len(result.Unfetched),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitObject accepts the payload a worker fetched for an unfetched
// supporting object.
func (c *Coordinator) SubmitObject(ctx context.Context, objectID int64, data []byte, etag, mimetype string) error {
	return c.store.Transaction(ctx, func(tx *store.GORMStore) error {
		if err := objects.Submit(ctx, tx, c.blobs, objectID, data, etag, mimetype); err != nil {
			return err
		}
		metrics.ObjectsStored.Inc()
		logger.Debug("supporting object accepted", "object_id", objectID, "size", len(data))
		return nil
	})
}

// SideloadInput is a work submitted directly, bypassing queue and dispatch.
type SideloadInput struct {
	WorkID      int64
	Data        []byte
	Format      models.FileFormat
	UpdatedTime int64
	RequesterID string
	Title       string
	Author      string
}

// SideloadWork stores a version without a job or dispatch.
func (c *Coordinator) SideloadWork(ctx context.Context, in SideloadInput) (*SubmitResult, error) {
	if !in.Format.Valid() {
		return nil, fmt.Errorf("format %q: %w", in.Format, models.ErrInvalidFormat)
	}

	result := &SubmitResult{}
	err := c.store.Transaction(ctx, func(tx *store.GORMStore) error {
		stored, err := c.engine.Store(ctx, tx, archive.StoreInput{
			WorkID:        in.WorkID,
			Data:          in.Data,
			UploadedTime:  time.Now().UTC(),
			UpdatedTime:   in.UpdatedTime,
			RetrievedFrom: in.RequesterID,
			Format:        in.Format,
			Title:         in.Title,
			Author:        in.Author,
		})
		if err != nil {
			return err
		}
		result.Unfetched = stored.Unfetched
		metrics.VersionsStored.Inc()
		logger.Info("work sideloaded", "work_id", in.WorkID, "format", in.Format, "requester", in.RequesterID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
