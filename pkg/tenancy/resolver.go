package tenancy

import (
	"fmt"
	"net/http"
)

// TenantQueryParam is the query parameter name used for tenant resolution.
const TenantQueryParam = "tenant"

// TenantHeader is the HTTP header used for tenant resolution.
const TenantHeader = "X-Tenant"

// Resolver resolves the tenant context from an HTTP request.
type Resolver interface {
	Resolve(r *http.Request) (TenantContext, error)
}

// SingleTenantResolver always returns the default tenant.
type SingleTenantResolver struct{}

// Resolve always returns a TenantContext for the default tenant.
func (s SingleTenantResolver) Resolve(_ *http.Request) (TenantContext, error) {
	return TenantContext{Tenant: DefaultTenant}, nil
}

// HeaderTenantResolver reads the tenant from the request query parameter or
// header. In multi-tenant mode the tenant is always required.
type HeaderTenantResolver struct{}

// Resolve extracts the tenant from the request. It checks the query parameter
// first, then falls back to the X-Tenant header. Returns an error if the
// tenant is missing or fails identifier validation.
func (h HeaderTenantResolver) Resolve(r *http.Request) (TenantContext, error) {
	raw := r.URL.Query().Get(TenantQueryParam)
	if raw == "" {
		raw = r.Header.Get(TenantHeader)
	}

	if raw == "" {
		return TenantContext{}, fmt.Errorf("tenant is required in multi-tenant mode (use ?tenant= query param or X-Tenant header)")
	}

	id, err := ParseTenantID(raw)
	if err != nil {
		return TenantContext{}, err
	}

	return TenantContext{Tenant: id}, nil
}
