package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// GetJob loads a job by id.
func (s *GORMStore) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrJobNotFound)
	}
	return &job, nil
}

// FindIncompleteJob returns the incomplete job for (work_id, file_format),
// or nil when none exists.
func (s *GORMStore) FindIncompleteJob(ctx context.Context, workID int64, format models.FileFormat) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Where("work_id = ? AND file_format = ? AND complete = ?", workID, format, false).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob inserts a new queue item.
func (s *GORMStore) CreateJob(ctx context.Context, job *models.Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

// CompleteJob marks a job terminal with the given outcome.
func (s *GORMStore) CompleteJob(ctx context.Context, jobID int64, success bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{"complete": true, "success": success})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// NextDispatchableJob selects the newest incomplete job with no live lease.
// A lease is live while a dispatch for the job is younger than leaseCutoff.
// Returns nil when the queue is empty.
//
// Newest-first is deliberate: fresh user requests surface ahead of stale
// backlog.
func (s *GORMStore) NextDispatchableJob(ctx context.Context, leaseCutoff time.Time) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Where("complete = ?", false).
		Where("job_id NOT IN (?)", s.db.
			Model(&models.Dispatch{}).
			Select("job_id").
			Where("dispatched_time > ?", leaseCutoff)).
		Order("submitted_time DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CountDispatches returns the total number of dispatches ever created for a
// job. The retry budget counts dispatches, not reported failures, so a
// silent worker also consumes an attempt.
func (s *GORMStore) CountDispatches(ctx context.Context, jobID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Dispatch{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	return count, err
}

// CreateDispatch inserts a new dispatch row.
func (s *GORMStore) CreateDispatch(ctx context.Context, dispatch *models.Dispatch) error {
	return s.db.WithContext(ctx).Create(dispatch).Error
}

// GetDispatch loads a dispatch by id.
func (s *GORMStore) GetDispatch(ctx context.Context, dispatchID int64) (*models.Dispatch, error) {
	var dispatch models.Dispatch
	if err := s.db.WithContext(ctx).First(&dispatch, "dispatch_id = ?", dispatchID).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrJobNotFound)
	}
	return &dispatch, nil
}

// GetOpenDispatch loads a dispatch that is still actionable: neither failed
// nor complete. A dispatch whose job already finished is indistinguishable
// from a missing one on purpose — the losing side of a lease race gets the
// same answer as a worker inventing dispatch ids.
func (s *GORMStore) GetOpenDispatch(ctx context.Context, dispatchID int64) (*models.Dispatch, error) {
	var dispatch models.Dispatch
	err := s.db.WithContext(ctx).
		Where("dispatch_id = ? AND fail_reported = ? AND complete = ?", dispatchID, false, false).
		First(&dispatch).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrJobNotFound)
	}
	return &dispatch, nil
}

// SaveDispatch persists all fields of an existing dispatch.
func (s *GORMStore) SaveDispatch(ctx context.Context, dispatch *models.Dispatch) error {
	return s.db.WithContext(ctx).Save(dispatch).Error
}

// FailExhaustedJobs marks every incomplete job with maxAttempts or more
// dispatches as complete and failed. Returns the number of jobs failed.
// Called by the heartbeat sweep and mirrored inline during leasing.
func (s *GORMStore) FailExhaustedJobs(ctx context.Context, maxAttempts int) (int64, error) {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE queue SET complete = ?, success = ?
		 WHERE complete = ?
		   AND (SELECT COUNT(*) FROM dispatches d WHERE d.job_id = queue.job_id) >= ?`,
		true, false, false, maxAttempts)
	return result.RowsAffected, result.Error
}
