package jobs

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/tenancy"
)

// JobStore provides database operations for sync jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// AutoMigrate creates or updates the sync_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SyncJob{})
}

// Enqueue creates a new queued job. If a non-terminal job with the same
// idempotency key exists, the existing job is returned instead of creating
// a duplicate. Safe for concurrent use.
func (s *JobStore) Enqueue(job *SyncJob) (*SyncJob, error) {
	if job.State == "" {
		job.State = JobStateQueued
	}
	if job.IdempotencyKey == "" {
		job.IdempotencyKey = IdempotencyKeyFor(job.Tenant, job.ObjectTypeID)
	}

	var result *SyncJob
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Check for existing non-terminal job with this key.
		var existing SyncJob
		err := tx.Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
			[]JobState{JobStateQueued, JobStateRunning}).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Clear the idempotency key on any terminal jobs with the same key
		// so the unique index doesn't block creating a new job. NULL, not
		// empty string: the unique index must tolerate many cleared rows.
		tx.Model(&SyncJob{}).
			Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
				[]JobState{JobStateSucceeded, JobStateFailed}).
			Update("idempotency_key", gorm.Expr("NULL"))

		if err := tx.Create(job).Error; err != nil {
			// Another transaction may have created the job between our
			// check and create. Look up the existing job.
			var raceExisting SyncJob
			lookupErr := s.db.Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
				[]JobState{JobStateQueued, JobStateRunning}).First(&raceExisting).Error
			if lookupErr == nil {
				result = &raceExisting
				return nil
			}
			return fmt.Errorf("enqueue job: %w", err)
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Claim atomically picks the oldest queued job and transitions it to
// running. Returns nil if no jobs are available.
func (s *JobStore) Claim() (*SyncJob, error) {
	var job SyncJob

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("state = ?", JobStateQueued).
			Order("requested_at ASC").
			Limit(1).
			First(&job).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		now := time.Now()
		return tx.Model(&SyncJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":      JobStateRunning,
				"started_at": now,
			}).Error
	})

	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if job.ID == "" {
		return nil, nil
	}

	// Reload to get the updated values.
	if err := s.db.First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}

	return &job, nil
}

// Complete marks a job as succeeded with the run counters.
func (s *JobStore) Complete(jobID string, fetched, created, updated, deleted int, durationMs int64) error {
	now := time.Now()
	result := s.db.Model(&SyncJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":           JobStateSucceeded,
		"finished_at":     now,
		"objects_fetched": fetched,
		"objects_created": created,
		"objects_updated": updated,
		"objects_deleted": deleted,
		"duration_ms":     durationMs,
		"message":         fmt.Sprintf("Fetched %d objects: %d created, %d updated, %d deleted", fetched, created, updated, deleted),
	})
	if result.Error != nil {
		return fmt.Errorf("complete job: %w", result.Error)
	}
	return nil
}

// Fail marks a job as failed. Failed syncs are not retried: the next
// interval tick or a manual trigger enqueues a fresh job instead.
func (s *JobStore) Fail(jobID string, errMsg string) error {
	now := time.Now()
	result := s.db.Model(&SyncJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":       JobStateFailed,
		"finished_at": now,
		"last_error":  errMsg,
		"message":     "Sync failed: " + errMsg,
	})
	if result.Error != nil {
		return fmt.Errorf("fail job: %w", result.Error)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(jobID string) (*SyncJob, error) {
	var job SyncJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns a tenant's jobs, newest first.
func (s *JobStore) List(tenant tenancy.TenantID, limit int) ([]SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var records []SyncJob
	err := s.db.Where("tenant = ?", tenant.String()).
		Order("requested_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return records, nil
}

// CleanupStuckJobs marks running jobs whose started_at is older than
// claimTimeout as failed. With one worker a stuck running job means the
// process died mid-sync; re-queueing it could replay a half-applied run,
// so it is failed and left for the next interval tick.
func (s *JobStore) CleanupStuckJobs(claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-claimTimeout)
	now := time.Now()
	result := s.db.Model(&SyncJob{}).
		Where("state = ? AND started_at < ?", JobStateRunning, cutoff).
		Updates(map[string]any{
			"state":       JobStateFailed,
			"finished_at": now,
			"last_error":  "Timed out (stuck job recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal jobs older than the given cutoff.
func (s *JobStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("state IN ? AND finished_at < ?",
		[]JobState{JobStateSucceeded, JobStateFailed}, cutoff).
		Delete(&SyncJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
