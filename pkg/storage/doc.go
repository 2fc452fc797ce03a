// Package storage defines the persistence boundary of the service.
//
// # Overview
//
// Domain stores (see users.Store) are implemented by the backends in
// storage/postgres and storage/memory. Both also implement UnitOfWork, the
// transactional boundary every command runs in:
//
//	err := uow.RunInTx(ctx, func(ctx context.Context) error {
//		if err := store.Create(ctx, user); err != nil {
//			return err
//		}
//		storage.AfterCommit(ctx, func(ctx context.Context) {
//			cache.Invalidate(ctx, user.ID)
//		})
//		return idp.CreateAccount(ctx, account)
//	})
//
// The function's context carries the open transaction, so store methods
// called with it join the transaction. Returning an error or panicking rolls
// everything back. Hooks registered with AfterCommit run only after a
// successful commit.
//
// # Configuration
//
// Config selects the backend ("memory" or "postgres") and carries the
// Postgres and Redis connection settings used by storage/postgres and
// pkg/cache.
package storage
