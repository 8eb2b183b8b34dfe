package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencomply/comply-server/pkg/assets"
	"github.com/opencomply/comply-server/pkg/jobs"
	"github.com/opencomply/comply-server/pkg/project"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

func setupServer(t *testing.T, opts ...ServerOption) (*Server, chi.Router) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cipher, err := assets.NewTokenCipher("test key material")
	require.NoError(t, err)

	srv := NewServer(db, cipher, nil, opts...)
	require.NoError(t, srv.Init(context.Background()))
	return srv, srv.MountRoutes()
}

func doJSON(t *testing.T, router chi.Router, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded),
			"response body: %s", rec.Body.String())
	}
	return rec, decoded
}

func TestHealthEndpoints(t *testing.T) {
	_, router := setupServer(t)

	rec, body := doJSON(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["status"])

	rec, body = doJSON(t, router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

const soc2Payload = `{
	"name": "SOC 2",
	"description": "Trust services criteria",
	"is_organizational": false,
	"hierarchy": {
		"type": "two_level",
		"level1_name": "Category",
		"level2_name": "Criteria"
	},
	"structure": [
		{"title": "Security", "order_no": 1, "items": [
			{"title": "CC1.1", "order_no": 1},
			{"title": "CC1.2", "order_no": 2}
		]}
	]
}`

func TestFrameworkLifecycleOverHTTP(t *testing.T) {
	srv, router := setupServer(t)
	ctx := context.Background()

	// Import.
	rec, body := doJSON(t, router, http.MethodPost, "/api/v1/frameworks", soc2Payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fwID := body["frameworkId"].(string)
	assert.Equal(t, float64(3), body["itemsCreated"])

	// The tree round-trips.
	rec, body = doJSON(t, router, http.MethodGet, "/api/v1/frameworks/"+fwID+"/tree", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, body["framework"])

	// Attach to a project.
	p := &project.Project{Title: "Payment gateway"}
	require.NoError(t, srv.projects.Create(ctx, tenancy.DefaultTenant, p))

	attachPath := fmt.Sprintf("/api/v1/projects/%s/frameworks/%s", p.ID, fwID)
	rec, body = doJSON(t, router, http.MethodPost, attachPath, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), body["level2Created"])

	// Delete is blocked while attached.
	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/frameworks/"+fwID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Update one implementation record.
	var implID string
	require.NoError(t, srv.db.Raw(
		"SELECT id FROM implementation_records ORDER BY id LIMIT 1").Scan(&implID).Error)

	rec, _ = doJSON(t, router, http.MethodPatch, "/api/v1/implementations/"+implID,
		`{"status": "Implemented", "owner": "alice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Progress reflects the update.
	rec, body = doJSON(t, router, http.MethodGet, attachPath+"/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	overall := body["overall"].(map[string]any)
	assert.Equal(t, float64(2), overall["total"])
	assert.Equal(t, float64(1), overall["completed"])
	assert.Equal(t, float64(50), overall["percentage"])
}

func TestSyncTriggerDisabledWithoutWorker(t *testing.T) {
	srv, router := setupServer(t)
	ctx := context.Background()

	cfg := &assets.SyncConfig{
		BaseURL:      "https://example.atlassian.net",
		Deployment:   assets.DeploymentCloud,
		ObjectTypeID: "42",
	}
	require.NoError(t, srv.configs.Save(ctx, tenancy.DefaultTenant, cfg, "tok"))

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/assets/sync", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSyncTriggerWithWorkerEnqueues(t *testing.T) {
	srv, router := setupServer(t, WithSyncWorker(&jobs.JobConfig{
		PollInterval:  time.Second,
		ClaimTimeout:  15 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
	}))
	ctx := context.Background()

	cfg := &assets.SyncConfig{
		BaseURL:      "https://example.atlassian.net",
		Deployment:   assets.DeploymentCloud,
		ObjectTypeID: "42",
	}
	require.NoError(t, srv.configs.Save(ctx, tenancy.DefaultTenant, cfg, "tok"))

	rec, body := doJSON(t, router, http.MethodPost, "/api/v1/assets/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := body["jobId"].(string)
	assert.NotEmpty(t, jobID)

	// Triggering again dedupes onto the pending job.
	rec, body = doJSON(t, router, http.MethodPost, "/api/v1/assets/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, jobID, body["jobId"])
	assert.Equal(t, true, body["alreadyQueued"])
}

func TestHeaderTenancyModeIsolatesTenants(t *testing.T) {
	_, router := setupServer(t, WithTenancyMode(tenancy.ModeHeader))

	importFor := func(tenant string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/frameworks", strings.NewReader(soc2Payload))
		req.Header.Set(tenancy.TenantHeader, tenant)
		router.ServeHTTP(rec, req)
		return rec
	}

	// The same framework name is fine across tenants.
	assert.Equal(t, http.StatusCreated, importFor("acme").Code)
	assert.Equal(t, http.StatusCreated, importFor("globex").Code)
	// Within one it conflicts.
	assert.Equal(t, http.StatusConflict, importFor("acme").Code)

	// A request without the header is rejected in header mode.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/frameworks", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
