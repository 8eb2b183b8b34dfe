package jobs

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencomply/comply-server/pkg/tenancy"
)

func setupJobStore(t *testing.T) *JobStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewJobStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func newJob(tenant, objectTypeID string) *SyncJob {
	return &SyncJob{
		ID:           uuid.NewString(),
		Tenant:       tenant,
		ObjectTypeID: objectTypeID,
		RequestedBy:  "api",
		RequestedAt:  time.Now(),
	}
}

func TestEnqueueSetsDefaults(t *testing.T) {
	store := setupJobStore(t)

	job, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, job.State)
	assert.Equal(t, "default:42", job.IdempotencyKey)
}

func TestEnqueueDedupesPendingJobs(t *testing.T) {
	store := setupJobStore(t)

	first, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)

	second, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different object type is its own key.
	other, err := store.Enqueue(newJob("default", "77"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestEnqueueAfterTerminalCreatesFresh(t *testing.T) {
	store := setupJobStore(t)

	first, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	require.NoError(t, store.Fail(first.ID, "boom"))

	second, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, JobStateQueued, second.State)

	// The terminal job lost its key to the fresh one.
	old, err := store.Get(first.ID)
	require.NoError(t, err)
	assert.Empty(t, old.IdempotencyKey)
}

func TestClaimOldestQueued(t *testing.T) {
	store := setupJobStore(t)

	older := newJob("default", "42")
	older.RequestedAt = time.Now().Add(-time.Minute)
	_, err := store.Enqueue(older)
	require.NoError(t, err)
	_, err = store.Enqueue(newJob("default", "77"))
	require.NoError(t, err)

	claimed, err := store.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, JobStateRunning, claimed.State)
	assert.NotNil(t, claimed.StartedAt)

	// The running job is not claimable again.
	next, err := store.Claim()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, older.ID, next.ID)

	empty, err := store.Claim()
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestCompleteRecordsCounters(t *testing.T) {
	store := setupJobStore(t)

	job, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	_, err = store.Claim()
	require.NoError(t, err)

	require.NoError(t, store.Complete(job.ID, 10, 3, 2, 1, 1500))

	done, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateSucceeded, done.State)
	assert.True(t, done.IsTerminal())
	assert.Equal(t, 10, done.ObjectsFetched)
	assert.Equal(t, int64(1500), done.DurationMs)
	assert.Equal(t, "Fetched 10 objects: 3 created, 2 updated, 1 deleted", done.Message)
	assert.NotNil(t, done.FinishedAt)
}

func TestFailIsTerminal(t *testing.T) {
	store := setupJobStore(t)

	job, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	require.NoError(t, store.Fail(job.ID, "gateway unreachable"))

	failed, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, failed.State)
	assert.True(t, failed.IsTerminal())
	assert.Equal(t, "gateway unreachable", failed.LastError)
	assert.Equal(t, "Sync failed: gateway unreachable", failed.Message)

	// Nothing requeued.
	claimed, err := store.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestListNewestFirst(t *testing.T) {
	store := setupJobStore(t)

	for i := 0; i < 3; i++ {
		job := newJob("default", uuid.NewString())
		job.RequestedAt = time.Now().Add(time.Duration(i) * time.Second)
		_, err := store.Enqueue(job)
		require.NoError(t, err)
	}
	_, err := store.Enqueue(newJob("other", "42"))
	require.NoError(t, err)

	jobs, err := store.List(tenancy.DefaultTenant, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].RequestedAt.After(jobs[1].RequestedAt))
	for _, j := range jobs {
		assert.Equal(t, "default", j.Tenant)
	}
}

func TestCleanupStuckJobsFailsThem(t *testing.T) {
	store := setupJobStore(t)

	job, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	_, err = store.Claim()
	require.NoError(t, err)

	// Backdate the claim past the timeout.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.db.Model(&SyncJob{}).
		Where("id = ?", job.ID).Update("started_at", past).Error)

	recovered, err := store.CleanupStuckJobs(15 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	stuck, err := store.Get(job.ID)
	require.NoError(t, err)
	// Failed, not requeued: replaying a half-applied run is worse than
	// waiting for the next interval tick.
	assert.Equal(t, JobStateFailed, stuck.State)

	claimed, err := store.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestCleanupLeavesFreshRunningJobs(t *testing.T) {
	store := setupJobStore(t)

	_, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	_, err = store.Claim()
	require.NoError(t, err)

	recovered, err := store.CleanupStuckJobs(15 * time.Minute)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestDeleteOlderThanPrunesTerminalOnly(t *testing.T) {
	store := setupJobStore(t)

	done, err := store.Enqueue(newJob("default", "42"))
	require.NoError(t, err)
	require.NoError(t, store.Complete(done.ID, 0, 0, 0, 0, 0))
	require.NoError(t, store.db.Model(&SyncJob{}).
		Where("id = ?", done.ID).Update("finished_at", time.Now().AddDate(0, 0, -10)).Error)

	pending, err := store.Enqueue(newJob("default", "77"))
	require.NoError(t, err)

	deleted, err := store.DeleteOlderThan(time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := store.Get(done.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := store.Get(pending.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
}
