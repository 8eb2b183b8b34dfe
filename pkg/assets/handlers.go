package assets

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// SyncTrigger enqueues a sync for a tenant. Implemented by the jobs queue;
// declared here to avoid a package cycle.
type SyncTrigger interface {
	Trigger(ctx context.Context, tenant tenancy.TenantID) (jobID string, alreadyQueued bool, err error)
}

// configRequest is the PUT payload for the sync configuration. The API
// token arrives in plaintext and is stored encrypted; an empty token on an
// existing configuration keeps the stored one.
type configRequest struct {
	BaseURL             string     `json:"base_url"`
	WorkspaceID         string     `json:"workspace_id"`
	Email               string     `json:"email"`
	APIToken            string     `json:"api_token"`
	Deployment          Deployment `json:"deployment_type"`
	SchemaID            string     `json:"schema_id"`
	ObjectTypeID        string     `json:"object_type_id"`
	SyncEnabled         bool       `json:"sync_enabled"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
}

// configResponse is the GET/PUT response. The token never leaves the server.
type configResponse struct {
	BaseURL             string     `json:"base_url"`
	WorkspaceID         string     `json:"workspace_id"`
	Email               string     `json:"email"`
	HasToken            bool       `json:"has_token"`
	Deployment          Deployment `json:"deployment_type"`
	SchemaID            string     `json:"schema_id"`
	ObjectTypeID        string     `json:"object_type_id"`
	SyncEnabled         bool       `json:"sync_enabled"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus      string     `json:"last_sync_status,omitempty"`
	LastSyncMessage     string     `json:"last_sync_message,omitempty"`
}

func toConfigResponse(cfg *SyncConfig) configResponse {
	return configResponse{
		BaseURL:             cfg.BaseURL,
		WorkspaceID:         cfg.WorkspaceID,
		Email:               cfg.Email,
		HasToken:            cfg.TokenCiphertext != "",
		Deployment:          cfg.Deployment,
		SchemaID:            cfg.SchemaID,
		ObjectTypeID:        cfg.ObjectTypeID,
		SyncEnabled:         cfg.SyncEnabled,
		SyncIntervalMinutes: cfg.SyncIntervalMinutes,
		LastSyncAt:          cfg.LastSyncAt,
		LastSyncStatus:      cfg.LastSyncStatus,
		LastSyncMessage:     cfg.LastSyncMessage,
	}
}

// GetConfigHandler handles GET /api/v1/assets/config.
func GetConfigHandler(configs *ConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		cfg, err := configs.Get(r.Context(), tenant)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConfigResponse(cfg))
	}
}

// SaveConfigHandler handles PUT /api/v1/assets/config.
func SaveConfigHandler(configs *ConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		var req configRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierror.WriteHTTP(w, apierror.NewValidation("invalid JSON payload: "+err.Error()))
			return
		}

		cfg := &SyncConfig{
			BaseURL:             req.BaseURL,
			WorkspaceID:         req.WorkspaceID,
			Email:               req.Email,
			Deployment:          req.Deployment,
			SchemaID:            req.SchemaID,
			ObjectTypeID:        req.ObjectTypeID,
			SyncEnabled:         req.SyncEnabled,
			SyncIntervalMinutes: req.SyncIntervalMinutes,
		}
		if cfg.SyncIntervalMinutes <= 0 {
			cfg.SyncIntervalMinutes = 60
		}

		if err := configs.Save(r.Context(), tenant, cfg, req.APIToken); err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConfigResponse(cfg))
	}
}

// TestConnectionHandler handles POST /api/v1/assets/test, probing the
// configured instance with a schema list call.
func TestConnectionHandler(configs *ConfigStore, newAPI APIFactory) http.HandlerFunc {
	if newAPI == nil {
		newAPI = func(cfg ClientConfig) AssetsAPI { return NewClient(cfg) }
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		cfg, err := configs.Get(r.Context(), tenant)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}
		clientCfg, err := configs.ClientConfig(cfg)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		if err := newAPI(clientCfg).TestConnection(r.Context()); err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// TriggerSyncHandler handles POST /api/v1/assets/sync, enqueuing a run.
func TriggerSyncHandler(trigger SyncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		jobID, alreadyQueued, err := trigger.Trigger(r.Context(), tenant)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		status := http.StatusAccepted
		writeJSON(w, status, map[string]any{
			"jobId":         jobID,
			"alreadyQueued": alreadyQueued,
		})
	}
}

// ListRunsHandler handles GET /api/v1/assets/sync/runs.
func ListRunsHandler(history *HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		runs, err := history.List(r.Context(), tenant, limit)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"runs":      runs,
			"totalSize": len(runs),
		})
	}
}

// Router creates a chi.Router for the assets API.
func Router(configs *ConfigStore, history *HistoryStore, trigger SyncTrigger, newAPI APIFactory) chi.Router {
	r := chi.NewRouter()

	r.Get("/config", GetConfigHandler(configs))
	r.Put("/config", SaveConfigHandler(configs))
	r.Post("/test", TestConnectionHandler(configs, newAPI))
	r.Post("/sync", TriggerSyncHandler(trigger))
	r.Get("/sync/runs", ListRunsHandler(history))

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
