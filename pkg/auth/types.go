package auth

import (
	"context"
	"fmt"

	"github.com/platinummonkey/schoolhouse/pkg/contextkeys"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
)

// AccountStatus is the lifecycle state of a user account
type AccountStatus string

const (
	// StatusPending accounts were created but have not set a password yet
	StatusPending AccountStatus = "Pending"
	// StatusActive accounts have completed sign-up
	StatusActive AccountStatus = "Active"
	// StatusInactive accounts are disabled and cannot authenticate
	StatusInactive AccountStatus = "Inactive"
)

// ParseAccountStatus converts a wire value into an AccountStatus
func ParseAccountStatus(value string) (AccountStatus, error) {
	switch status := AccountStatus(value); status {
	case StatusPending, StatusActive, StatusInactive:
		return status, nil
	default:
		return "", fmt.Errorf("unknown status %q", value)
	}
}

// Identity is the resolved caller of a request
type Identity struct {
	UserID     string        `json:"userId"`
	Role       rbac.Role     `json:"role"`
	DistrictID string        `json:"districtId"`
	Status     AccountStatus `json:"status"`
}

// IsSA reports whether the caller is a system administrator
func (i Identity) IsSA() bool {
	return i.Role == rbac.RoleSA
}

// WithIdentity stores the identity in the context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return contextkeys.WithIdentity(ctx, identity)
}

// FromContext returns the identity stored by the authentication guard
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(Identity)
	return identity, ok
}
