package models

import (
	"fmt"
	"regexp"
	"strings"
)

// TenantID identifies the owner of a slice of the index. Every read and write
// of a single request is scoped to exactly one TenantID.
type TenantID string

// DefaultTenant is used whenever a caller does not name a tenant.
const DefaultTenant TenantID = "default"

// Tenant ids double as workspace directory names and store-side tenant names,
// so they are restricted to a conservative character set.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

// ParseTenantID resolves a raw tenant string, falling back to DefaultTenant
// when it is blank.
func ParseTenantID(raw string) (TenantID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultTenant, nil
	}
	if !tenantPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenant, raw)
	}
	return TenantID(raw), nil
}

func (t TenantID) String() string {
	return string(t)
}
