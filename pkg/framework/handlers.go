package framework

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// ImportHandler handles POST /api/v1/frameworks with the nested payload.
func ImportHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		var payload ImportPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			apierror.WriteHTTP(w, apierror.NewValidation("invalid JSON payload: "+err.Error()))
			return
		}

		result, err := store.Import(r.Context(), tenant, &payload)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

// ImportRowsHandler handles POST /api/v1/frameworks/rows with the flattened
// row format. The rows are reconstructed into the nested payload and run
// through the same importer and validator.
func ImportRowsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		var ri RowImport
		if err := json.NewDecoder(r.Body).Decode(&ri); err != nil {
			apierror.WriteHTTP(w, apierror.NewValidation("invalid JSON payload: "+err.Error()))
			return
		}

		payload, err := ri.ToPayload()
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		result, err := store.Import(r.Context(), tenant, payload)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

// ListHandler handles GET /api/v1/frameworks.
func ListHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())

		frameworks, err := store.List(r.Context(), tenant)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"frameworks": frameworks,
			"totalSize":  len(frameworks),
		})
	}
}

// GetTreeHandler handles GET /api/v1/frameworks/{frameworkId}/tree.
func GetTreeHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())
		id := chi.URLParam(r, "frameworkId")

		tree, err := store.GetTree(r.Context(), tenant, id)
		if err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, tree)
	}
}

// DeleteHandler handles DELETE /api/v1/frameworks/{frameworkId}.
func DeleteHandler(store *Store, attachments AttachmentChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenancy.TenantFromContext(r.Context())
		id := chi.URLParam(r, "frameworkId")

		if err := store.Delete(r.Context(), tenant, id, attachments); err != nil {
			apierror.WriteHTTP(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "frameworkId": id})
	}
}

// Router creates a chi.Router for the framework API.
func Router(store *Store, attachments AttachmentChecker) chi.Router {
	r := chi.NewRouter()

	r.Post("/", ImportHandler(store))
	r.Post("/rows", ImportRowsHandler(store))
	r.Get("/", ListHandler(store))
	r.Get("/{frameworkId}/tree", GetTreeHandler(store))
	r.Delete("/{frameworkId}", DeleteHandler(store, attachments))

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
