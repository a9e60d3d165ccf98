// Package queue implements the durable, single-writer-ordered job queue
// (spec.md §4.G): create/dequeue_next/update_progress/complete/fail/retry
// plus listing, backed by gorm over the shared sqlite connection. Grounded
// on the teacher's transcodingmodule/core/session/store.go transactional
// update idiom (tx.Model(...).Where(...).Updates(...) with a RowsAffected
// check guarding the state transition).
package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/database"
	"gorm.io/gorm"
)

// errNoRowsUpdated signals that the conditional UPDATE inside a dequeue
// transaction matched zero rows — another worker won the race between this
// transaction's SELECT and its UPDATE. The caller treats it as "try again",
// never as a hard failure.
var errNoRowsUpdated = errors.New("queue: no rows updated")

// Store is the gorm-backed job queue (spec.md §4.G).
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new queued job. O(1): a single insert, no scan.
func (s *Store) Create(filePath, fileName, source string, priority int) (*database.Job, error) {
	job := &database.Job{
		ID:         uuid.NewString(),
		FilePath:   filePath,
		FileName:   fileName,
		Source:     source,
		Priority:   priority,
		Status:     database.JobStatusQueued,
		MaxRetries: 3,
		CreatedAt:  time.Now(),
	}
	if err := s.db.Create(job).Error; err != nil {
		return nil, apperrors.Internal("create job", err)
	}
	return job, nil
}

// DequeueNext atomically claims the highest-priority, oldest-queued job for
// workerID. Two concurrent callers never receive the same job: the
// transaction's SELECT and conditional UPDATE run against the single shared
// sqlite connection (internal/database.Open sets MaxOpenConns(1) and a
// busy_timeout), so SQLite's transaction-level write lock serializes every
// dequeue attempt. If another transaction's UPDATE wins the race for the
// row this one selected, RowsAffected is 0 and the transaction retries
// against the next-best candidate instead of returning a stale job.
func (s *Store) DequeueNext(workerID string) (*database.Job, error) {
	const maxAttempts = 50
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var claimed *database.Job
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var candidates []database.Job
			if err := tx.
				Where("status = ?", database.JobStatusQueued).
				Order("priority DESC, created_at ASC").
				Limit(1).
				Find(&candidates).Error; err != nil {
				return err
			}
			if len(candidates) == 0 {
				return gorm.ErrRecordNotFound
			}
			job := candidates[0]
			now := time.Now()
			result := tx.Model(&database.Job{}).
				Where("id = ? AND status = ?", job.ID, database.JobStatusQueued).
				Updates(map[string]interface{}{
					"status":     database.JobStatusProcessing,
					"locked_by":  workerID,
					"locked_at":  now,
					"started_at": now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errNoRowsUpdated
			}
			job.Status = database.JobStatusProcessing
			job.LockedBy = workerID
			job.LockedAt = &now
			job.StartedAt = &now
			claimed = &job
			return nil
		})

		switch {
		case err == nil:
			return claimed, nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, nil
		case errors.Is(err, errNoRowsUpdated):
			continue // another worker claimed this row first; retry
		default:
			return nil, apperrors.Internal("dequeue job", err)
		}
	}
	return nil, apperrors.Internal("dequeue job", errors.New("exceeded retry attempts under contention"))
}

// UpdateProgress records progress ∈ [0,1] and an optional step label without
// changing status.
func (s *Store) UpdateProgress(id string, progress float64, step string) error {
	updates := map[string]interface{}{"progress": progress}
	if step != "" {
		updates["current_step"] = step
	}
	result := s.db.Model(&database.Job{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return apperrors.Internal("update job progress", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("job", id)
	}
	return nil
}

// Complete marks a job completed: progress=1.0, completed_at=now.
func (s *Store) Complete(id string) error {
	now := time.Now()
	result := s.db.Model(&database.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       database.JobStatusCompleted,
		"progress":     1.0,
		"completed_at": now,
	})
	if result.Error != nil {
		return apperrors.Internal("complete job", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("job", id)
	}
	return nil
}

// Fail marks a job failed with the given error message.
func (s *Store) Fail(id, errMsg string) error {
	now := time.Now()
	result := s.db.Model(&database.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       database.JobStatusFailed,
		"error":        errMsg,
		"completed_at": now,
	})
	if result.Error != nil {
		return apperrors.Internal("fail job", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("job", id)
	}
	return nil
}

// Retry requeues a failed job, succeeding only if retry_count < max_retries.
// Returns (false, nil) when the job has exhausted its retry budget — the
// dead-letter transition named in the state diagram — rather than an error,
// since "retry exhausted" is an expected outcome callers branch on.
func (s *Store) Retry(id string) (bool, error) {
	var retried bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var job database.Job
		if err := tx.Where("id = ?", id).First(&job).Error; err != nil {
			return err
		}
		if job.RetryCount >= job.MaxRetries {
			retried = false
			return nil
		}
		result := tx.Model(&database.Job{}).
			Where("id = ? AND retry_count = ?", id, job.RetryCount).
			Updates(map[string]interface{}{
				"status":       database.JobStatusQueued,
				"retry_count":  job.RetryCount + 1,
				"locked_by":    "",
				"locked_at":    nil,
				"started_at":   nil,
				"completed_at": nil,
				"error":        "",
			})
		if result.Error != nil {
			return result.Error
		}
		retried = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperrors.NotFound("job", id)
		}
		return false, apperrors.Internal("retry job", err)
	}
	return retried, nil
}

// Get fetches a job by id.
func (s *Store) Get(id string) (*database.Job, error) {
	var job database.Job
	if err := s.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("job", id)
		}
		return nil, apperrors.Internal("get job", err)
	}
	return &job, nil
}

// List returns jobs, optionally filtered by status, ordered priority DESC
// then created_at ASC (the same ordering dequeue_next uses), paginated.
func (s *Store) List(status database.JobStatus, offset, limit int) ([]database.Job, error) {
	q := s.db.Order("priority DESC, created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var jobs []database.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, apperrors.Internal("list jobs", err)
	}
	return jobs, nil
}

// DeadLetters lists failed jobs that have exhausted their retry budget
// (retry_count >= max_retries) — a convenience query the state diagram's
// "dead-letter" transition implies but spec.md leaves unqueried.
func (s *Store) DeadLetters(offset, limit int) ([]database.Job, error) {
	q := s.db.
		Where("status = ? AND retry_count >= max_retries", database.JobStatusFailed).
		Order("priority DESC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var jobs []database.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, apperrors.Internal("list dead letters", err)
	}
	return jobs, nil
}
