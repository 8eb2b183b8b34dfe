package assets

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/tenancy"
)

// SyncState classifies an external asset record after its latest sync.
type SyncState string

const (
	SyncStateSynced        SyncState = "synced"
	SyncStateUpdated       SyncState = "updated"
	SyncStateDeletedInJira SyncState = "deleted_in_jira"
	SyncStateFailed        SyncState = "failed"
)

// ExternalAssetRecord links one external object to its host project,
// one-to-one. Rows are created, updated, and deleted exclusively by the
// reconciler; they are never user-edited.
type ExternalAssetRecord struct {
	ID                string         `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant            string         `gorm:"column:tenant;uniqueIndex:idx_asset_tenant_ext,priority:1;not null"`
	ExternalObjectID  string         `gorm:"column:external_object_id;uniqueIndex:idx_asset_tenant_ext,priority:2;not null"`
	ProjectID         string         `gorm:"column:project_id;index;not null"`
	RawAttributes     datatypes.JSON `gorm:"column:raw_attributes"`
	ExternalUpdatedAt time.Time      `gorm:"column:external_updated_at"`
	LastSyncedAt      time.Time      `gorm:"column:last_synced_at;not null"`
	SyncStatus        SyncState      `gorm:"column:sync_status;not null;default:synced"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (ExternalAssetRecord) TableName() string { return "external_asset_records" }

// RecordStore provides database operations for external asset records.
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// AutoMigrate creates or updates the external asset record table.
func (s *RecordStore) AutoMigrate() error {
	return s.db.AutoMigrate(&ExternalAssetRecord{})
}

// ListByTenant returns all records for the tenant keyed by external id.
func (s *RecordStore) ListByTenant(ctx context.Context, tenant tenancy.TenantID) (map[string]*ExternalAssetRecord, error) {
	var records []ExternalAssetRecord
	err := s.db.WithContext(ctx).
		Where("tenant = ?", tenant.String()).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list external asset records: %w", err)
	}

	byExternal := make(map[string]*ExternalAssetRecord, len(records))
	for i := range records {
		byExternal[records[i].ExternalObjectID] = &records[i]
	}
	return byExternal, nil
}
