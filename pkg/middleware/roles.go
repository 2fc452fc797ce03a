package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
)

const (
	GuardRoles      = "roles"
	GuardCreateRole = "create-policy"
)

// RequireRoles passes only when the caller's role is in roles. A request
// without an identity is rejected as unauthenticated.
func RequireRoles(roles rbac.RoleSet) Guard {
	return Guard{
		Name: GuardRoles,
		Check: func(r *http.Request) (*http.Request, error) {
			identity, ok := auth.FromContext(r.Context())
			if !ok {
				return nil, apierrors.Unauthenticated("authentication required")
			}
			if !roles.Contains(identity.Role) {
				return nil, apierrors.Forbiddenf("role %s may not access this resource", identity.Role)
			}
			return r, nil
		},
	}
}

// RequireCreatableRole reads the target role from the JSON body and checks it
// against policy for the caller. The body is restored for the handler.
func RequireCreatableRole(policy *rbac.CreatePolicy) Guard {
	return Guard{
		Name: GuardCreateRole,
		Check: func(r *http.Request) (*http.Request, error) {
			identity, ok := auth.FromContext(r.Context())
			if !ok {
				return nil, apierrors.Unauthenticated("authentication required")
			}

			target, err := peekRole(r)
			if err != nil {
				return nil, err
			}
			if !policy.CanCreate(identity.Role, target) {
				return nil, apierrors.Forbiddenf("role %s may not create %s", identity.Role, target)
			}
			return r, nil
		},
	}
}

func peekRole(r *http.Request) (rbac.Role, error) {
	if r.Body == nil {
		return "", apierrors.Validation("request body is required")
	}
	raw, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", apierrors.Validation("request body too large")
		}
		return "", apierrors.Wrap(apierrors.KindValidation, "unreadable request body", err)
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", apierrors.Wrap(apierrors.KindValidation, "invalid JSON body", err)
	}
	if body.Role == "" {
		return "", apierrors.Validation("role is required")
	}
	role, err := rbac.ParseRole(body.Role)
	if err != nil {
		return "", apierrors.Validationf("unknown role %q", body.Role)
	}
	return role, nil
}
