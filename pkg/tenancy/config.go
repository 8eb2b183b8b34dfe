// Package tenancy provides tenant resolution and middleware for the comply
// server. Every framework, tracking, and sync table is scoped by a validated
// tenant identifier carried through the request context.
package tenancy

import "os"

// Mode controls how the tenant is resolved for incoming requests.
type Mode string

const (
	// ModeSingle uses the "default" tenant for all requests.
	ModeSingle Mode = "single"
	// ModeHeader requires a tenant per request (multi-tenant).
	ModeHeader Mode = "header"
)

// ModeFromEnv reads COMPLY_TENANCY_MODE, defaulting to ModeSingle.
func ModeFromEnv() Mode {
	if v := os.Getenv("COMPLY_TENANCY_MODE"); v == string(ModeHeader) {
		return ModeHeader
	}
	return ModeSingle
}
