package users

import (
	"context"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
)

// IdentityResolver loads identities for the authentication guard, reading
// through the identity cache when one is configured
type IdentityResolver struct {
	store Store
	cache IdentityCache
}

// NewIdentityResolver creates a resolver. cache may be nil.
func NewIdentityResolver(store Store, cache IdentityCache) *IdentityResolver {
	return &IdentityResolver{store: store, cache: cache}
}

func (r *IdentityResolver) ResolveIdentity(ctx context.Context, userID string) (auth.Identity, error) {
	if r.cache == nil {
		user, err := r.store.Get(ctx, userID)
		if err != nil {
			return auth.Identity{}, storeError(err)
		}
		return user.Identity(), nil
	}

	if identity, ok := r.cache.Get(ctx, userID); ok {
		return identity, nil
	}

	// read before the store so a mutation committing mid-load voids the fill
	generation := r.cache.Generation(ctx)
	user, err := r.store.Get(ctx, userID)
	if err != nil {
		return auth.Identity{}, storeError(err)
	}

	identity := user.Identity()
	r.cache.Fill(ctx, identity, generation)
	return identity, nil
}
