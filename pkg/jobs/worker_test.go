package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/assets"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// fakeSyncer is a scripted Syncer for worker tests.
type fakeSyncer struct {
	result  *assets.SyncResult
	err     error
	tenants []tenancy.TenantID
}

func (f *fakeSyncer) Sync(_ context.Context, tenant tenancy.TenantID) (*assets.SyncResult, error) {
	f.tenants = append(f.tenants, tenant)
	return f.result, f.err
}

type workerEnv struct {
	store   *JobStore
	configs *assets.ConfigStore
	syncer  *fakeSyncer
	queue   *Queue
	worker  *Worker
}

func setupWorker(t *testing.T) *workerEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := NewJobStore(db)
	require.NoError(t, store.AutoMigrate())

	cipher, err := assets.NewTokenCipher("test key material")
	require.NoError(t, err)
	configs := assets.NewConfigStore(db, cipher)
	require.NoError(t, configs.AutoMigrate())

	syncer := &fakeSyncer{result: &assets.SyncResult{
		ObjectsFetched: 5,
		ObjectsCreated: 2,
		ObjectsUpdated: 1,
	}}
	cfg := &JobConfig{
		PollInterval:  time.Second,
		ClaimTimeout:  15 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
	}

	return &workerEnv{
		store:   store,
		configs: configs,
		syncer:  syncer,
		queue:   NewQueue(store, configs),
		worker:  NewWorker(store, configs, syncer, cfg, nil),
	}
}

func (e *workerEnv) saveConfig(t *testing.T, tenant tenancy.TenantID, enabled bool, lastSync *time.Time) {
	t.Helper()
	cfg := &assets.SyncConfig{
		BaseURL:             "https://example.atlassian.net",
		Deployment:          assets.DeploymentCloud,
		ObjectTypeID:        "42",
		SyncEnabled:         enabled,
		SyncIntervalMinutes: 60,
	}
	require.NoError(t, e.configs.Save(context.Background(), tenant, cfg, "tok"))
	if lastSync != nil {
		require.NoError(t, e.configs.RecordOutcome(context.Background(), tenant, "completed", "", *lastSync))
	}
}

func TestTriggerEnqueuesOnce(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()
	env.saveConfig(t, tenancy.DefaultTenant, false, nil)

	jobID, alreadyQueued, err := env.queue.Trigger(ctx, tenancy.DefaultTenant)
	require.NoError(t, err)
	assert.False(t, alreadyQueued)

	// A second trigger while the job is pending returns the same job.
	secondID, alreadyQueued, err := env.queue.Trigger(ctx, tenancy.DefaultTenant)
	require.NoError(t, err)
	assert.True(t, alreadyQueued)
	assert.Equal(t, jobID, secondID)
}

func TestTriggerWithoutConfig(t *testing.T) {
	env := setupWorker(t)

	_, _, err := env.queue.Trigger(context.Background(), tenancy.DefaultTenant)
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestProcessOneCompletesJob(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()
	env.saveConfig(t, tenancy.DefaultTenant, false, nil)

	jobID, _, err := env.queue.Trigger(ctx, tenancy.DefaultTenant)
	require.NoError(t, err)

	env.worker.processOne(ctx)

	job, err := env.store.Get(jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobStateSucceeded, job.State)
	assert.Equal(t, 5, job.ObjectsFetched)
	assert.Equal(t, 2, job.ObjectsCreated)
	assert.Equal(t, 1, job.ObjectsUpdated)

	require.Len(t, env.syncer.tenants, 1)
	assert.Equal(t, tenancy.DefaultTenant, env.syncer.tenants[0])
}

func TestProcessOneFailsJobWithoutRetry(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()
	env.saveConfig(t, tenancy.DefaultTenant, false, nil)

	env.syncer.err = errors.New("gateway unreachable")

	jobID, _, err := env.queue.Trigger(ctx, tenancy.DefaultTenant)
	require.NoError(t, err)

	env.worker.processOne(ctx)

	job, err := env.store.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, job.State)
	assert.Contains(t, job.LastError, "gateway unreachable")

	// No retry: another pass finds nothing to claim.
	env.worker.processOne(ctx)
	require.Len(t, env.syncer.tenants, 1)
}

func TestProcessOneIdleQueue(t *testing.T) {
	env := setupWorker(t)

	env.worker.processOne(context.Background())
	assert.Empty(t, env.syncer.tenants)
}

func TestEnqueueDueRespectsInterval(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()

	overdue := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-5 * time.Minute)
	env.saveConfig(t, tenancy.TenantID("due"), true, &overdue)
	env.saveConfig(t, tenancy.TenantID("fresh"), true, &recent)
	env.saveConfig(t, tenancy.TenantID("disabled"), false, &overdue)

	env.worker.enqueueDue(ctx)

	dueJobs, err := env.store.List(tenancy.TenantID("due"), 10)
	require.NoError(t, err)
	require.Len(t, dueJobs, 1)
	assert.Equal(t, "scheduler", dueJobs[0].RequestedBy)

	freshJobs, err := env.store.List(tenancy.TenantID("fresh"), 10)
	require.NoError(t, err)
	assert.Empty(t, freshJobs)

	disabledJobs, err := env.store.List(tenancy.TenantID("disabled"), 10)
	require.NoError(t, err)
	assert.Empty(t, disabledJobs)
}

func TestEnqueueDueNeverSyncedIsDue(t *testing.T) {
	env := setupWorker(t)
	env.saveConfig(t, tenancy.DefaultTenant, true, nil)

	env.worker.enqueueDue(context.Background())

	jobs, err := env.store.List(tenancy.DefaultTenant, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestEnqueueDueDedupesAcrossTicks(t *testing.T) {
	env := setupWorker(t)
	ctx := context.Background()
	env.saveConfig(t, tenancy.DefaultTenant, true, nil)

	env.worker.enqueueDue(ctx)
	env.worker.enqueueDue(ctx)

	jobs, err := env.store.List(tenancy.DefaultTenant, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
