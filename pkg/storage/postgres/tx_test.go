package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

func sampleUser() *users.User {
	now := time.Date(2021, 6, 19, 0, 0, 0, 0, time.UTC)
	return &users.User{
		ID:         "u1",
		Email:      "ann@example.com",
		Name:       users.Name{First: "Ann", Last: "Teacher"},
		Role:       rbac.RoleClassTeacher,
		Status:     auth.StatusPending,
		DistrictID: "d1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestTxManager_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").WillReturnRows(sqlmock.NewRows([]string{"user_friendly_id"}).AddRow(1))
	mock.ExpectCommit()

	m := NewTxManager(db)
	store := NewUserStoreWithDB(db)
	var hookRan bool

	err = m.RunInTx(context.Background(), func(ctx context.Context) error {
		storage.AfterCommit(ctx, func(context.Context) { hookRan = true })
		assert.False(t, hookRan)
		return store.Create(ctx, sampleUser())
	})

	require.NoError(t, err)
	assert.True(t, hookRan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RollbackReturnsHandlerError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	handlerErr := apierrors.Upstream("identity provider failed", errors.New("503"))
	var hookRan bool
	err = NewTxManager(db).RunInTx(context.Background(), func(ctx context.Context) error {
		storage.AfterCommit(ctx, func(context.Context) { hookRan = true })
		return handlerErr
	})

	assert.Same(t, handlerErr, err)
	assert.False(t, hookRan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_PanicRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = NewTxManager(db).RunInTx(context.Background(), func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_BeginAndCommitFailures(t *testing.T) {
	t.Run("begin", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectBegin().WillReturnError(errors.New("no connection"))

		called := false
		err = NewTxManager(db).RunInTx(context.Background(), func(context.Context) error {
			called = true
			return nil
		})
		assert.Equal(t, apierrors.KindInternal, apierrors.KindOf(err))
		assert.False(t, called)
	})

	t.Run("commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		var hookRan bool
		err = NewTxManager(db).RunInTx(context.Background(), func(ctx context.Context) error {
			storage.AfterCommit(ctx, func(context.Context) { hookRan = true })
			return nil
		})
		assert.Equal(t, apierrors.KindInternal, apierrors.KindOf(err))
		assert.False(t, hookRan)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTxManager_NestedJoinsOuter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM users").WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := NewTxManager(db)
	store := NewUserStoreWithDB(db)
	err = m.RunInTx(context.Background(), func(ctx context.Context) error {
		return m.RunInTx(ctx, func(ctx context.Context) error {
			return store.Delete(ctx, "u1")
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
