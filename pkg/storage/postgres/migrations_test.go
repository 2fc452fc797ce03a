package postgres

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

func TestMigrations_Ordered(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestRunMigrations_AppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(2, "Create users table").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var buf bytes.Buffer
	ran, err := RunMigrations(context.Background(), db, observability.NewLogger(observability.InfoLevel, &buf))
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Contains(t, buf.String(), "Create users table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_NothingPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))

	ran, err := RunMigrations(context.Background(), db, observability.NewLogger(observability.InfoLevel, &bytes.Buffer{}))
	require.NoError(t, err)
	assert.Zero(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_FailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS districts").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	ran, err := RunMigrations(context.Background(), db, observability.NewLogger(observability.InfoLevel, &bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1")
	assert.Zero(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_TrackingTableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnError(errors.New("read only"))

	_, err = RunMigrations(context.Background(), db, observability.NewLogger(observability.InfoLevel, &bytes.Buffer{}))
	assert.ErrorContains(t, err, "migrations table")
}
