package framework

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestImportCreatesFullTree(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	result, err := store.Import(ctx, tenancy.DefaultTenant, validThreeLevelPayload())
	require.NoError(t, err)
	assert.NotEmpty(t, result.FrameworkID)
	// 1 domain + 1 control + 2 subcontrols.
	assert.Equal(t, 4, result.ItemsCreated)

	tree, err := store.GetTree(ctx, tenancy.DefaultTenant, result.FrameworkID)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.NodeCount())
	require.Len(t, tree.Structure, 1)
	require.Len(t, tree.Structure[0].Items, 1)
	assert.Len(t, tree.Structure[0].Items[0].Items, 2)
}

func TestImportSkipsStrayLevel3OnTwoLevel(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	payload := validTwoLevelPayload()
	payload.Structure[0].Items[0].Items = []Level3Payload{
		{Title: "stray", OrderNo: intPtr(1)},
	}

	result, err := store.Import(ctx, tenancy.DefaultTenant, payload)
	require.NoError(t, err)
	// 1 category + 2 criteria; the stray subcontrol is dropped.
	assert.Equal(t, 3, result.ItemsCreated)

	tree, err := store.GetTree(ctx, tenancy.DefaultTenant, result.FrameworkID)
	require.NoError(t, err)
	assert.Empty(t, tree.Structure[0].Items[0].Items)
}

func TestImportRejectsInvalidPayload(t *testing.T) {
	store := setupTestStore(t)

	p := validTwoLevelPayload()
	p.Name = ""
	_, err := store.Import(context.Background(), tenancy.DefaultTenant, p)
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))

	var frameworks int64
	require.NoError(t, store.db.Model(&Framework{}).Count(&frameworks).Error)
	assert.Zero(t, frameworks)
}

func TestImportRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Import(ctx, tenancy.DefaultTenant, validTwoLevelPayload())
	require.NoError(t, err)

	dup := validTwoLevelPayload()
	dup.Name = "soc 2"
	_, err = store.Import(ctx, tenancy.DefaultTenant, dup)
	require.Error(t, err)
	assert.True(t, apierror.IsConflict(err))

	// Nothing from the failed import is persisted.
	var nodes int64
	require.NoError(t, store.db.Model(&Level1Node{}).Count(&nodes).Error)
	assert.Equal(t, int64(1), nodes)
}

func TestImportSameNameDifferentTenants(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Import(ctx, tenancy.TenantID("acme"), validTwoLevelPayload())
	require.NoError(t, err)
	_, err = store.Import(ctx, tenancy.TenantID("globex"), validTwoLevelPayload())
	require.NoError(t, err)
}

func TestGetTreeOrdersByOrderNo(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	payload := validTwoLevelPayload()
	payload.Structure = []Level1Payload{
		{Title: "Second", OrderNo: intPtr(2)},
		{Title: "First", OrderNo: intPtr(1)},
	}

	result, err := store.Import(ctx, tenancy.DefaultTenant, payload)
	require.NoError(t, err)

	tree, err := store.GetTree(ctx, tenancy.DefaultTenant, result.FrameworkID)
	require.NoError(t, err)
	require.Len(t, tree.Structure, 2)
	assert.Equal(t, "First", tree.Structure[0].Node.Title)
	assert.Equal(t, "Second", tree.Structure[1].Node.Title)
}

func TestGetTreeNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetTree(context.Background(), tenancy.DefaultTenant, "missing")
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestListScopedToTenant(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Import(ctx, tenancy.TenantID("acme"), validTwoLevelPayload())
	require.NoError(t, err)

	frameworks, err := store.List(ctx, tenancy.TenantID("globex"))
	require.NoError(t, err)
	assert.Empty(t, frameworks)

	frameworks, err = store.List(ctx, tenancy.TenantID("acme"))
	require.NoError(t, err)
	assert.Len(t, frameworks, 1)
}

// staticChecker is an AttachmentChecker returning a fixed link count.
type staticChecker int64

func (c staticChecker) CountLiveLinks(context.Context, tenancy.TenantID, string) (int64, error) {
	return int64(c), nil
}

func TestDeleteBlockedWhileAttached(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	result, err := store.Import(ctx, tenancy.DefaultTenant, validTwoLevelPayload())
	require.NoError(t, err)

	err = store.Delete(ctx, tenancy.DefaultTenant, result.FrameworkID, staticChecker(2))
	require.Error(t, err)
	assert.True(t, apierror.IsConflict(err))

	_, err = store.Get(ctx, tenancy.DefaultTenant, result.FrameworkID)
	assert.NoError(t, err)
}

func TestDeleteRemovesFrameworkAndNodes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	result, err := store.Import(ctx, tenancy.DefaultTenant, validThreeLevelPayload())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, tenancy.DefaultTenant, result.FrameworkID, staticChecker(0)))

	_, err = store.Get(ctx, tenancy.DefaultTenant, result.FrameworkID)
	assert.True(t, apierror.IsNotFound(err))

	for _, model := range []any{&Level1Node{}, &Level2Node{}, &Level3Node{}} {
		var count int64
		require.NoError(t, store.db.Model(model).Count(&count).Error)
		assert.Zero(t, count)
	}
}

func TestDeleteNotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.Delete(context.Background(), tenancy.DefaultTenant, "missing", staticChecker(0))
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}
