package middleware

import (
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// GuardAuthenticate is the stage name of the authentication guard
const GuardAuthenticate = "authenticate"

// Authenticate resolves the bearer token to an identity and attaches it, and
// the user id for logging, to the request context.
func Authenticate(authenticator *auth.Authenticator) Guard {
	return Guard{
		Name: GuardAuthenticate,
		Check: func(r *http.Request) (*http.Request, error) {
			identity, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				return nil, err
			}
			ctx := auth.WithIdentity(r.Context(), identity)
			ctx = observability.WithUserID(ctx, identity.UserID)
			return r.WithContext(ctx), nil
		},
	}
}
