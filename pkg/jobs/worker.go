package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencomply/comply-server/pkg/assets"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// Syncer executes one reconciliation run for a tenant. Satisfied by
// assets.Reconciler.
type Syncer interface {
	Sync(ctx context.Context, tenant tenancy.TenantID) (*assets.SyncResult, error)
}

// Queue enqueues sync jobs and implements assets.SyncTrigger.
type Queue struct {
	store   *JobStore
	configs *assets.ConfigStore
}

// NewQueue creates a Queue.
func NewQueue(store *JobStore, configs *assets.ConfigStore) *Queue {
	return &Queue{store: store, configs: configs}
}

// Trigger enqueues a sync for the tenant's configured object type. If a
// queued or running job already covers it, that job is returned instead.
func (q *Queue) Trigger(ctx context.Context, tenant tenancy.TenantID) (string, bool, error) {
	cfg, err := q.configs.Get(ctx, tenant)
	if err != nil {
		return "", false, err
	}

	job := &SyncJob{
		ID:           uuid.NewString(),
		Tenant:       tenant.String(),
		ObjectTypeID: cfg.ObjectTypeID,
		RequestedBy:  "api",
		RequestedAt:  time.Now(),
	}
	enqueued, err := q.store.Enqueue(job)
	if err != nil {
		return "", false, err
	}
	return enqueued.ID, enqueued.ID != job.ID, nil
}

// Worker processes queued sync jobs one at a time and periodically enqueues
// interval syncs for sync-enabled tenants.
type Worker struct {
	store   *JobStore
	configs *assets.ConfigStore
	syncer  Syncer
	cfg     *JobConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewWorker creates a new Worker.
func NewWorker(store *JobStore, configs *assets.ConfigStore, syncer Syncer, cfg *JobConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:   store,
		configs: configs,
		syncer:  syncer,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run starts the worker. It blocks until the context is cancelled, then
// waits for the in-flight job to finish.
func (w *Worker) Run(ctx context.Context) {
	if w.store == nil || !w.cfg.Enabled {
		w.logger.Info("sync worker disabled")
		return
	}

	w.logger.Info("sync worker starting",
		"pollInterval", w.cfg.PollInterval.String(),
		"claimTimeout", w.cfg.ClaimTimeout.String())

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.cleanupLoop(ctx)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.scheduleLoop(ctx)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.workerLoop(ctx)
	}()

	<-ctx.Done()
	w.logger.Info("sync worker shutting down, waiting for in-flight job")
	w.wg.Wait()
	w.logger.Info("sync worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOne(ctx)
		}
	}
}

// processOne tries to claim and process a single job.
func (w *Worker) processOne(ctx context.Context) {
	job, err := w.store.Claim()
	if err != nil {
		w.logger.Error("failed to claim job", "error", err)
		return
	}
	if job == nil {
		return
	}

	w.logger.Info("processing sync job",
		"jobID", job.ID,
		"tenant", job.Tenant,
		"objectTypeID", job.ObjectTypeID)

	started := time.Now()
	result, err := w.syncer.Sync(ctx, tenancy.TenantID(job.Tenant))
	if err != nil {
		w.logger.Error("sync job failed", "jobID", job.ID, "tenant", job.Tenant, "error", err)
		if failErr := w.store.Fail(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "jobID", job.ID, "error", failErr)
		}
		return
	}

	duration := time.Since(started)
	w.logger.Info("sync job completed",
		"jobID", job.ID,
		"tenant", job.Tenant,
		"objectsFetched", result.ObjectsFetched,
		"objectsCreated", result.ObjectsCreated,
		"objectsUpdated", result.ObjectsUpdated,
		"objectsDeleted", result.ObjectsDeleted,
		"duration", duration.String())

	if err := w.store.Complete(job.ID,
		result.ObjectsFetched, result.ObjectsCreated,
		result.ObjectsUpdated, result.ObjectsDeleted,
		duration.Milliseconds()); err != nil {
		w.logger.Error("failed to mark job as complete", "jobID", job.ID, "error", err)
	}
}

// scheduleLoop enqueues interval syncs for tenants whose configured
// interval has elapsed since their last sync. Enqueue dedupes by
// idempotency key, so a tick that overlaps a pending job is a no-op.
func (w *Worker) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.enqueueDue(ctx)
		}
	}
}

func (w *Worker) enqueueDue(ctx context.Context) {
	configs, err := w.configs.ListSyncEnabled(ctx)
	if err != nil {
		w.logger.Error("failed to list sync-enabled configs", "error", err)
		return
	}

	now := time.Now()
	for i := range configs {
		cfg := &configs[i]
		interval := time.Duration(cfg.SyncIntervalMinutes) * time.Minute
		if cfg.LastSyncAt != nil && now.Sub(*cfg.LastSyncAt) < interval {
			continue
		}

		job := &SyncJob{
			ID:           uuid.NewString(),
			Tenant:       cfg.Tenant,
			ObjectTypeID: cfg.ObjectTypeID,
			RequestedBy:  "scheduler",
			RequestedAt:  now,
		}
		if _, err := w.store.Enqueue(job); err != nil {
			w.logger.Error("failed to enqueue interval sync", "tenant", cfg.Tenant, "error", err)
		}
	}
}

// cleanupLoop periodically recovers stuck jobs and prunes old terminal ones.
func (w *Worker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.cfg.ClaimTimeout > 0 {
				recovered, err := w.store.CleanupStuckJobs(w.cfg.ClaimTimeout)
				if err != nil {
					w.logger.Error("failed to cleanup stuck jobs", "error", err)
				} else if recovered > 0 {
					w.logger.Warn("failed stuck jobs", "count", recovered)
				}
			}

			if w.cfg.RetentionDays > 0 {
				cutoff := time.Now().AddDate(0, 0, -w.cfg.RetentionDays)
				deleted, err := w.store.DeleteOlderThan(cutoff)
				if err != nil {
					w.logger.Error("failed to delete old jobs", "error", err)
				} else if deleted > 0 {
					w.logger.Info("deleted old jobs", "count", deleted)
				}
			}
		}
	}
}
