package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema migrations in version order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create districts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS districts (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_districts_name ON districts(name);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					user_friendly_id BIGSERIAL NOT NULL UNIQUE,
					email TEXT NOT NULL,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					role TEXT NOT NULL,
					status TEXT NOT NULL,
					district_id TEXT NOT NULL REFERENCES districts(id),
					school_id TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users(lower(email));
				CREATE INDEX IF NOT EXISTS idx_users_district_role ON users(district_id, role);
				CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
			`,
		},
	}
}

// RunMigrations applies every pending migration, each in its own
// transaction, and returns how many ran
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}
		log := logger.WithField("version", migration.Version).WithField("description", migration.Description)
		log.Info("running migration")

		if err := apply(ctx, db, migration); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}
