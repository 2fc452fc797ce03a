package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
)

type stubResolver struct {
	identities map[string]Identity
	err        error
	calls      int
}

func (s *stubResolver) ResolveIdentity(_ context.Context, userID string) (Identity, error) {
	s.calls++
	if s.err != nil {
		return Identity{}, s.err
	}
	identity, ok := s.identities[userID]
	if !ok {
		return Identity{}, apierrors.NotFoundf("user %s not found", userID)
	}
	return identity, nil
}

func TestAuthenticator_Authenticate(t *testing.T) {
	verifier := NewHMACVerifier([]byte("secret"), "schoolhouse")
	resolver := &stubResolver{identities: map[string]Identity{
		"active":   {UserID: "active", Role: rbac.RoleDistrictAdministrator, DistrictID: "d1", Status: StatusActive},
		"pending":  {UserID: "pending", Role: rbac.RoleStudent, DistrictID: "d1", Status: StatusPending},
		"inactive": {UserID: "inactive", Role: rbac.RoleStudent, DistrictID: "d1", Status: StatusInactive},
	}}
	authenticator := NewAuthenticator(verifier, resolver)
	ctx := context.Background()

	bearer := func(userID string) string {
		token, err := verifier.Issue(userID, time.Hour)
		require.NoError(t, err)
		return "Bearer " + token
	}

	t.Run("active user", func(t *testing.T) {
		identity, err := authenticator.Authenticate(ctx, bearer("active"))
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleDistrictAdministrator, identity.Role)
		assert.Equal(t, "d1", identity.DistrictID)
	})

	t.Run("pending user", func(t *testing.T) {
		_, err := authenticator.Authenticate(ctx, bearer("pending"))
		assert.NoError(t, err)
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "Token abc"},
		{"invalid token", "Bearer garbage"},
		{"unknown user", bearer("ghost")},
		{"inactive user", bearer("inactive")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authenticator.Authenticate(ctx, tt.header)
			assert.Equal(t, apierrors.KindUnauthenticated, apierrors.KindOf(err))
		})
	}
}

func TestAuthenticator_DoesNotResolveBadTokens(t *testing.T) {
	resolver := &stubResolver{}
	authenticator := NewAuthenticator(NewHMACVerifier([]byte("secret"), ""), resolver)

	_, err := authenticator.Authenticate(context.Background(), "Bearer garbage")
	assert.Error(t, err)
	assert.Equal(t, 0, resolver.calls)
}

func TestAuthenticator_StorageFailure(t *testing.T) {
	verifier := NewHMACVerifier([]byte("secret"), "")
	resolver := &stubResolver{err: errors.New("connection refused")}
	authenticator := NewAuthenticator(verifier, resolver)

	token, err := verifier.Issue("active", time.Hour)
	require.NoError(t, err)

	_, err = authenticator.Authenticate(context.Background(), "Bearer "+token)
	assert.Equal(t, apierrors.KindInternal, apierrors.KindOf(err))
}
