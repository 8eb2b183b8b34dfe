package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// seedRecord attaches a two-level framework and returns one of the fanned
// out implementation record ids.
func (e *testEnv) seedRecord(t *testing.T, tenant tenancy.TenantID) string {
	t.Helper()
	fwID := e.importTwoLevel(t, tenant, "SOC 2")
	projID := e.createProject(t, tenant, "Payment gateway")
	link, err := e.links.Attach(context.Background(), tenant, fwID, projID)
	require.NoError(t, err)

	var rec ImplementationRecord
	require.NoError(t, e.db.Where("link_id = ?", link.LinkID).Order("id ASC").First(&rec).Error)
	return rec.ID
}

func mustParsePatch(t *testing.T, raw string) *Patch {
	t.Helper()
	patch, err := ParsePatch([]byte(raw))
	require.NoError(t, err)
	return patch
}

func TestUpdateStatusAndAssignees(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	implID := env.seedRecord(t, tenant)

	patch := mustParsePatch(t, `{
		"status": "In Progress",
		"owner": "alice",
		"reviewer": "bob",
		"implementation_details": "rolled out MFA"
	}`)

	record, err := env.updater.Update(context.Background(), tenant, implID, patch)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, record.Status)
	assert.Equal(t, "alice", record.Owner)
	assert.Equal(t, "bob", record.Reviewer)
	assert.Equal(t, "rolled out MFA", record.ImplementationDetails)
}

func TestUpdateRejectsInvalidStatus(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	implID := env.seedRecord(t, tenant)

	patch := mustParsePatch(t, `{"status": "Done"}`)
	_, err := env.updater.Update(context.Background(), tenant, implID, patch)
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
}

func TestUpdateEmptyPatchRejected(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	implID := env.seedRecord(t, tenant)

	_, err := env.updater.Update(context.Background(), tenant, implID, mustParsePatch(t, `{}`))
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
}

func TestUpdateIgnoresUnknownFields(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	implID := env.seedRecord(t, tenant)

	// Unknown keys are dropped; an all-unknown patch is effectively empty.
	patch := mustParsePatch(t, `{"id": "hijack", "tenant": "other", "nonsense": 1}`)
	assert.True(t, patch.Empty())

	_, err := env.updater.Update(context.Background(), tenant, implID, patch)
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
}

func TestUpdateDueDateTriState(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	ctx := context.Background()
	implID := env.seedRecord(t, tenant)

	// Set.
	record, err := env.updater.Update(ctx, tenant, implID,
		mustParsePatch(t, `{"due_date": "2026-09-30T00:00:00Z"}`))
	require.NoError(t, err)
	require.NotNil(t, record.DueDate)
	assert.Equal(t, time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), record.DueDate.UTC())

	// A patch without the key leaves it untouched.
	record, err = env.updater.Update(ctx, tenant, implID, mustParsePatch(t, `{"owner": "alice"}`))
	require.NoError(t, err)
	assert.NotNil(t, record.DueDate)

	// Explicit null clears it.
	record, err = env.updater.Update(ctx, tenant, implID, mustParsePatch(t, `{"due_date": null}`))
	require.NoError(t, err)
	assert.Nil(t, record.DueDate)
}

func TestUpdateRejectsMalformedDueDate(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	implID := env.seedRecord(t, tenant)

	patch := mustParsePatch(t, `{"due_date": "next tuesday"}`)
	_, err := env.updater.Update(context.Background(), tenant, implID, patch)
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
}

func TestUpdateEvidenceLinks(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	implID := env.seedRecord(t, tenant)

	patch := mustParsePatch(t, `{"evidence_links": ["https://wiki/mfa", "https://wiki/audit"]}`)
	record, err := env.updater.Update(context.Background(), tenant, implID, patch)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://wiki/mfa", "https://wiki/audit"}, []string(record.EvidenceLinks))
}

func TestUpdateRiskLinksIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	tenant := tenancy.DefaultTenant
	ctx := context.Background()
	implID := env.seedRecord(t, tenant)

	patch := mustParsePatch(t, `{"risks_to_add": ["RISK-1", "RISK-2"]}`)
	_, err := env.updater.Update(ctx, tenant, implID, patch)
	require.NoError(t, err)

	// Re-adding an existing pair is a no-op, not an error.
	patch = mustParsePatch(t, `{"risks_to_add": ["RISK-1", "RISK-3"]}`)
	_, err = env.updater.Update(ctx, tenant, implID, patch)
	require.NoError(t, err)

	ids, err := env.updater.RiskIDs(ctx, tenant, implID)
	require.NoError(t, err)
	assert.Equal(t, []string{"RISK-1", "RISK-2", "RISK-3"}, ids)

	// Removal is a set difference; unknown ids are ignored.
	patch = mustParsePatch(t, `{"risks_to_remove": ["RISK-2", "RISK-99"]}`)
	_, err = env.updater.Update(ctx, tenant, implID, patch)
	require.NoError(t, err)

	ids, err = env.updater.RiskIDs(ctx, tenant, implID)
	require.NoError(t, err)
	assert.Equal(t, []string{"RISK-1", "RISK-3"}, ids)
}

func TestUpdateNotFound(t *testing.T) {
	env := setupTestEnv(t)

	patch := mustParsePatch(t, `{"owner": "alice"}`)
	_, err := env.updater.Update(context.Background(), tenancy.DefaultTenant, "missing", patch)
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestParsePatchRejectsBadRiskLists(t *testing.T) {
	_, err := ParsePatch([]byte(`{"risks_to_add": "RISK-1"}`))
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))

	_, err = ParsePatch([]byte(`not json`))
	require.Error(t, err)
	assert.True(t, apierror.IsValidation(err))
}
