//go:build integration

package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("schoolhouse_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	_, err = RunMigrations(ctx, db, observability.NewLogger(observability.InfoLevel, &bytes.Buffer{}))
	require.NoError(t, err)
	return db
}

func TestIntegration_UserStoreRoundTrip(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	store := NewUserStoreWithDB(db)
	uow := NewTxManager(db)

	require.NoError(t, users.ApplySeed(ctx, uow, store, users.DefaultSeed()))
	require.NoError(t, users.ApplySeed(ctx, uow, store, users.DefaultSeed()))

	da, err := store.Get(ctx, users.DefaultDAID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), da.UserFriendlyID)

	u := sampleUser()
	u.DistrictID = users.DefaultDistrictID
	u.Name = users.Name{First: "A", Last: "B"}
	require.NoError(t, store.Create(ctx, u))

	dup := sampleUser()
	dup.ID = "u2"
	dup.Email = "ANN@example.com"
	dup.DistrictID = users.DefaultDistrictID
	assert.ErrorIs(t, store.Create(ctx, dup), users.ErrEmailTaken)

	list, total, err := store.List(ctx, users.Filter{
		Roles:      []rbac.Role{rbac.RoleDistrictAdministrator, rbac.RoleClassTeacher},
		DistrictID: users.DefaultDistrictID,
		Sort:       users.Sort{Field: users.SortLastName},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "u1", list[0].ID)

	// rollback leaves nothing behind
	boom := errors.New("boom")
	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		other := sampleUser()
		other.ID, other.Email, other.DistrictID = "u3", "u3@example.com", users.DefaultDistrictID
		require.NoError(t, store.Create(ctx, other))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = store.Get(ctx, "u3")
	assert.ErrorIs(t, err, users.ErrNotFound)

	u.Status = auth.StatusActive
	require.NoError(t, store.Update(ctx, u))
	counts, err := store.CountByRole(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, counts)

	require.NoError(t, store.Delete(ctx, "u1"))
	assert.ErrorIs(t, store.Delete(ctx, "u1"), users.ErrNotFound)
}
