package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// SyncResult is the outcome of one reconciliation run.
type SyncResult struct {
	Success        bool      `json:"success"`
	ObjectsFetched int       `json:"objectsFetched"`
	ObjectsCreated int       `json:"objectsCreated"`
	ObjectsUpdated int       `json:"objectsUpdated"`
	ObjectsDeleted int       `json:"objectsDeleted"`
	SyncedAt       time.Time `json:"syncedAt"`
	Status         RunStatus `json:"status"`
	Message        string    `json:"message,omitempty"`
}

// APIFactory builds an AssetsAPI from a client configuration. Injectable so
// tests can substitute a fake instance.
type APIFactory func(ClientConfig) AssetsAPI

// Reconciler compares a full external snapshot against stored asset records
// and converges host projects: every external id lands in exactly one of
// new, changed, or unchanged, and stored ids absent externally are removed.
// Every run is a full snapshot comparison keyed by external id; there is no
// cursor-based increment. Overlapping runs are not self-serializing — the
// job queue serializes them.
type Reconciler struct {
	db      *gorm.DB
	configs *ConfigStore
	records *RecordStore
	history *HistoryStore
	writer  *Writer
	newAPI  APIFactory
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler. If newAPI is nil the real HTTP client
// is used.
func NewReconciler(db *gorm.DB, configs *ConfigStore, records *RecordStore, history *HistoryStore, writer *Writer, newAPI APIFactory, logger *slog.Logger) *Reconciler {
	if newAPI == nil {
		newAPI = func(cfg ClientConfig) AssetsAPI { return NewClient(cfg) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		db:      db,
		configs: configs,
		records: records,
		history: history,
		writer:  writer,
		newAPI:  newAPI,
		logger:  logger,
	}
}

// Sync runs one reconciliation for the tenant's configured object type. A
// sync-history row is opened first and finalized with the outcome; the
// config row mirrors the same outcome for UI polling. A failed external
// call aborts the run but leaves rows committed earlier in the same run
// intact, since each object is processed independently. Nothing is retried.
func (r *Reconciler) Sync(ctx context.Context, tenant tenancy.TenantID) (*SyncResult, error) {
	cfg, err := r.configs.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if cfg.ObjectTypeID == "" {
		return nil, apierror.NewValidation("no object type selected in the sync configuration")
	}

	run, err := r.history.Open(ctx, tenant, cfg.ObjectTypeID)
	if err != nil {
		return nil, err
	}

	result, syncErr := r.reconcile(ctx, tenant, cfg, run)

	if syncErr != nil {
		result.Status = RunFailed
		result.Message = syncErr.Error()
		run.ObjectsFetched = result.ObjectsFetched
		run.ObjectsCreated = result.ObjectsCreated
		run.ObjectsUpdated = result.ObjectsUpdated
		run.ObjectsDeleted = result.ObjectsDeleted
		if err := r.history.Finalize(ctx, run, RunFailed, syncErr.Error()); err != nil {
			r.logger.Error("failed to finalize sync run", "runID", run.ID, "error", err)
		}
		if err := r.configs.RecordOutcome(ctx, tenant, string(RunFailed), syncErr.Error(), result.SyncedAt); err != nil {
			r.logger.Error("failed to record sync outcome", "tenant", tenant.String(), "error", err)
		}
		return result, syncErr
	}

	result.Success = true
	result.Status = RunCompleted
	run.ObjectsFetched = result.ObjectsFetched
	run.ObjectsCreated = result.ObjectsCreated
	run.ObjectsUpdated = result.ObjectsUpdated
	run.ObjectsDeleted = result.ObjectsDeleted
	if err := r.history.Finalize(ctx, run, RunCompleted, ""); err != nil {
		r.logger.Error("failed to finalize sync run", "runID", run.ID, "error", err)
	}
	if err := r.configs.RecordOutcome(ctx, tenant, string(RunCompleted), "", result.SyncedAt); err != nil {
		r.logger.Error("failed to record sync outcome", "tenant", tenant.String(), "error", err)
	}

	return result, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tenant tenancy.TenantID, cfg *SyncConfig, run *SyncRun) (*SyncResult, error) {
	result := &SyncResult{SyncedAt: run.StartedAt}

	clientCfg, err := r.configs.ClientConfig(cfg)
	if err != nil {
		return result, err
	}
	api := r.newAPI(clientCfg)

	// The cloud bulk endpoint returns attribute ids only, so the id-to-name
	// table is fetched once per object type and threaded through every
	// object in the snapshot.
	defs, err := api.ListAttributes(ctx, cfg.ObjectTypeID)
	if err != nil {
		return result, err
	}
	nameByID := make(map[string]string, len(defs))
	for _, def := range defs {
		nameByID[def.ID] = def.Name
	}

	objects, err := api.ListObjects(ctx, cfg.ObjectTypeID, 0)
	if err != nil {
		return result, err
	}
	result.ObjectsFetched = len(objects)

	stored, err := r.records.ListByTenant(ctx, tenant)
	if err != nil {
		return result, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(objects))

	for _, obj := range objects {
		seen[obj.ID] = true
		attrs := TransformAttributes(obj.Attributes, nameByID)

		rec, exists := stored[obj.ID]
		if !exists {
			if err := r.createOne(ctx, tenant, obj, attrs, now); err != nil {
				return result, err
			}
			result.ObjectsCreated++
			continue
		}

		// Changed only when the external timestamp is strictly newer;
		// equal timestamps or a missing external timestamp mean no write.
		if !obj.Updated.IsZero() && obj.Updated.After(rec.ExternalUpdatedAt) {
			if err := r.updateOne(ctx, tenant, rec, obj, attrs, now); err != nil {
				return result, err
			}
			result.ObjectsUpdated++
		}
	}

	for externalID, rec := range stored {
		if seen[externalID] {
			continue
		}
		if err := r.deleteOne(ctx, tenant, rec); err != nil {
			return result, err
		}
		result.ObjectsDeleted++
	}

	return result, nil
}

// createOne makes the host project and its link record in one transaction.
func (r *Reconciler) createOne(ctx context.Context, tenant tenancy.TenantID, obj Object, attrs map[string]any, now time.Time) error {
	proj, err := r.writer.CreateProject(ctx, tenant, obj.Label, attrs)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attribute snapshot: %w", err)
	}

	rec := &ExternalAssetRecord{
		ID:                uuid.New().String(),
		Tenant:            tenant.String(),
		ExternalObjectID:  obj.ID,
		ProjectID:         proj.ID,
		RawAttributes:     raw,
		ExternalUpdatedAt: obj.Updated,
		LastSyncedAt:      now,
		SyncStatus:        SyncStateSynced,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create external asset record: %w", err)
	}
	return nil
}

// updateOne refreshes the host project and snapshot for a changed object.
func (r *Reconciler) updateOne(ctx context.Context, tenant tenancy.TenantID, rec *ExternalAssetRecord, obj Object, attrs map[string]any, now time.Time) error {
	if err := r.writer.UpdateProject(ctx, tenant, rec.ProjectID, obj.Label, attrs); err != nil {
		return err
	}

	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attribute snapshot: %w", err)
	}

	err = r.db.WithContext(ctx).Model(&ExternalAssetRecord{}).
		Where("tenant = ? AND id = ?", tenant.String(), rec.ID).
		Updates(map[string]any{
			"raw_attributes":      raw,
			"external_updated_at": obj.Updated,
			"last_synced_at":      now,
			"sync_status":         SyncStateUpdated,
		}).Error
	if err != nil {
		return fmt.Errorf("update external asset record: %w", err)
	}
	return nil
}

// deleteOne hard-deletes the host project and link record of an object that
// vanished externally. No tombstone is kept beyond the sync history.
func (r *Reconciler) deleteOne(ctx context.Context, tenant tenancy.TenantID, rec *ExternalAssetRecord) error {
	if err := r.writer.DeleteProject(ctx, tenant, rec.ProjectID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant.String(), rec.ID).
		Delete(&ExternalAssetRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete external asset record: %w", err)
	}
	return nil
}
