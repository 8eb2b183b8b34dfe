package jobs

import (
	"time"
)

// JobState represents the lifecycle state of a sync job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// SyncJob is the GORM model for a queued asset synchronization.
type SyncJob struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant         string     `gorm:"column:tenant;index:idx_syncjob_tenant_state,priority:1;not null"`
	ObjectTypeID   string     `gorm:"column:object_type_id"`
	RequestedBy    string     `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null"`
	State          JobState   `gorm:"column:state;index:idx_syncjob_tenant_state,priority:2;index:idx_syncjob_state;not null;default:queued"`
	Message        string     `gorm:"column:message"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
	LastError      string     `gorm:"column:last_error"`
	IdempotencyKey string     `gorm:"column:idempotency_key;uniqueIndex:idx_syncjob_idemp_key"`
	ObjectsFetched int        `gorm:"column:objects_fetched"`
	ObjectsCreated int        `gorm:"column:objects_created"`
	ObjectsUpdated int        `gorm:"column:objects_updated"`
	ObjectsDeleted int        `gorm:"column:objects_deleted"`
	DurationMs     int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (SyncJob) TableName() string { return "sync_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *SyncJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed:
		return true
	}
	return false
}

// IdempotencyKeyFor builds the dedup key for a tenant's sync of an object
// type. At most one queued-or-running job exists per key.
func IdempotencyKeyFor(tenant, objectTypeID string) string {
	return tenant + ":" + objectTypeID
}
