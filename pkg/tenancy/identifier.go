package tenancy

import (
	"fmt"
	"regexp"
)

// maxTenantLen bounds the tenant identifier length.
const maxTenantLen = 63

// tenantRe validates tenant identifiers: a lowercase letter followed by
// lowercase alphanumerics or underscores. This is the only character set
// safe to place into a SQL identifier position, so validation happens here
// once rather than ad hoc at call sites.
var tenantRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// TenantID is a validated tenant identifier. Construct it only through
// ParseTenantID; code composing raw SQL may trust its String value.
type TenantID string

// ParseTenantID validates a raw tenant string and returns it as a TenantID.
func ParseTenantID(raw string) (TenantID, error) {
	if raw == "" {
		return "", fmt.Errorf("tenant is required")
	}
	if len(raw) > maxTenantLen {
		return "", fmt.Errorf("tenant %q exceeds maximum length of %d characters", raw, maxTenantLen)
	}
	if !tenantRe.MatchString(raw) {
		return "", fmt.Errorf("tenant %q is invalid: must start with a lowercase letter and contain only lowercase alphanumerics or underscores", raw)
	}
	return TenantID(raw), nil
}

// String returns the validated identifier.
func (t TenantID) String() string { return string(t) }

// DefaultTenant is used in single-tenant mode.
const DefaultTenant = TenantID("default")
