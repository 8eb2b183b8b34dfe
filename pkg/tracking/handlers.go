package tracking

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// AttachHandler handles POST /api/v1/projects/{projectId}/frameworks/{frameworkId}.
func AttachHandler(links *LinkStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())
		projectID := chi.URLParam(r, "projectId")
		frameworkID := chi.URLParam(r, "frameworkId")

		result, err := links.Attach(r.Context(), tenant, frameworkID, projectID)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

// DetachHandler handles DELETE /api/v1/projects/{projectId}/frameworks/{frameworkId}.
func DetachHandler(links *LinkStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())
		projectID := chi.URLParam(r, "projectId")
		frameworkID := chi.URLParam(r, "frameworkId")

		if err := links.Detach(r.Context(), tenant, frameworkID, projectID); err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "detached",
			"frameworkId": frameworkID,
			"projectId":   projectID,
		})
	}
}

// ProgressHandler handles GET /api/v1/projects/{projectId}/frameworks/{frameworkId}/progress.
func ProgressHandler(aggregator *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())
		projectID := chi.URLParam(r, "projectId")
		frameworkID := chi.URLParam(r, "frameworkId")

		report, err := aggregator.Progress(r.Context(), tenant, frameworkID, projectID)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

// UpdateHandler handles PATCH /api/v1/implementations/{implId}.
func UpdateHandler(updater *Updater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())
		implID := chi.URLParam(r, "implId")

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			apierror.WriteHTTP(w, apierror.NewValidation("read request body: "+err.Error()))
			return
		}

		patch, err := ParsePatch(raw)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		record, err := updater.Update(r.Context(), tenant, implID, patch)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

// GetRecordHandler handles GET /api/v1/implementations/{implId}, returning
// the record, its risk ids, and participant names resolved through the
// host user directory.
func GetRecordHandler(updater *Updater, directory UserDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())
		implID := chi.URLParam(r, "implId")

		record, err := updater.Get(r.Context(), tenant, implID)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		riskIDs, err := updater.RiskIDs(r.Context(), tenant, implID)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		participants := map[string]string{}
		for _, userID := range []string{record.Owner, record.Reviewer, record.Approver} {
			if userID == "" {
				continue
			}
			name, surname, err := directory.Lookup(r.Context(), userID)
			if err != nil || name == "" {
				continue
			}
			participants[userID] = name + " " + surname
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"record":       record,
			"riskIds":      riskIDs,
			"participants": participants,
		})
	}
}

// Router creates a chi.Router for the implementation record API.
func Router(updater *Updater, directory UserDirectory) chi.Router {
	r := chi.NewRouter()
	if directory == nil {
		directory = NoopDirectory{}
	}

	r.Get("/{implId}", GetRecordHandler(updater, directory))
	r.Patch("/{implId}", UpdateHandler(updater))

	return r
}

// ProjectFrameworksRouter creates a chi.Router mounted under a project's
// frameworks path.
func ProjectFrameworksRouter(links *LinkStore, aggregator *Aggregator) chi.Router {
	r := chi.NewRouter()

	r.Post("/{frameworkId}", AttachHandler(links))
	r.Delete("/{frameworkId}", DetachHandler(links))
	r.Get("/{frameworkId}/progress", ProgressHandler(aggregator))

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
