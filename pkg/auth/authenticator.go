package auth

import (
	"context"
	"errors"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
)

// IdentityResolver loads the identity of a verified user id
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID string) (Identity, error)
}

// Authenticator turns an Authorization header into an Identity
type Authenticator struct {
	verifier TokenVerifier
	resolver IdentityResolver
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(verifier TokenVerifier, resolver IdentityResolver) *Authenticator {
	return &Authenticator{verifier: verifier, resolver: resolver}
}

// Authenticate verifies the header and resolves the caller. Credential and
// account failures are reported as unauthenticated; storage failures keep
// their own classification.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	rawToken, err := ParseBearer(header)
	if err != nil {
		return Identity{}, apierrors.Wrap(apierrors.KindUnauthenticated, err.Error(), err)
	}

	userID, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Identity{}, apierrors.Wrap(apierrors.KindUnauthenticated, "invalid token", err)
	}

	identity, err := a.resolver.ResolveIdentity(ctx, userID)
	if err != nil {
		if apierrors.Is(err, apierrors.KindNotFound) {
			return Identity{}, apierrors.Wrap(apierrors.KindUnauthenticated, "unknown user", err)
		}
		var apiErr *apierrors.Error
		if errors.As(err, &apiErr) {
			return Identity{}, err
		}
		return Identity{}, apierrors.Internal("failed to resolve identity", err)
	}

	if identity.Status == StatusInactive {
		return Identity{}, apierrors.Unauthenticated("account is inactive")
	}
	return identity, nil
}
