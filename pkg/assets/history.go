package assets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/tenancy"
)

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun is one entry of the sync history. A row is opened with status
// started before any external call and finalized at the end.
type SyncRun struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant         string     `gorm:"column:tenant;index:idx_sync_run_tenant,priority:1;not null"`
	ObjectTypeID   string     `gorm:"column:object_type_id;not null"`
	Status         RunStatus  `gorm:"column:status;not null;default:started"`
	Error          string     `gorm:"column:error"`
	ObjectsFetched int        `gorm:"column:objects_fetched"`
	ObjectsCreated int        `gorm:"column:objects_created"`
	ObjectsUpdated int        `gorm:"column:objects_updated"`
	ObjectsDeleted int        `gorm:"column:objects_deleted"`
	StartedAt      time.Time  `gorm:"column:started_at;index:idx_sync_run_tenant,priority:2;not null"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
}

// TableName returns the GORM table name.
func (SyncRun) TableName() string { return "asset_sync_runs" }

// HistoryStore provides database operations for sync runs.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// AutoMigrate creates or updates the sync run table.
func (s *HistoryStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SyncRun{})
}

// Open inserts a new run with status started.
func (s *HistoryStore) Open(ctx context.Context, tenant tenancy.TenantID, objectTypeID string) (*SyncRun, error) {
	run := &SyncRun{
		ID:           uuid.New().String(),
		Tenant:       tenant.String(),
		ObjectTypeID: objectTypeID,
		Status:       RunStarted,
		StartedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("open sync run: %w", err)
	}
	return run, nil
}

// Finalize records the terminal status, counts, and error text of a run.
func (s *HistoryStore) Finalize(ctx context.Context, run *SyncRun, status RunStatus, errText string) error {
	now := time.Now().UTC()
	run.Status = status
	run.Error = errText
	run.FinishedAt = &now
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("finalize sync run: %w", err)
	}
	return nil
}

// List returns the tenant's sync runs, newest first, capped at limit.
func (s *HistoryStore) List(ctx context.Context, tenant tenancy.TenantID, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []SyncRun
	err := s.db.WithContext(ctx).
		Where("tenant = ?", tenant.String()).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}
