package db

import (
	"context"
	"database/sql"
	"embed"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// MigratePostgres applies the embedded postgres migrations through the pool.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, logger *zap.SugaredLogger) error {
	if err := pool.Ping(ctx); err != nil {
		return errors.Wrap(err, "failed to ping database")
	}

	// The driver pins one pool connection; closing it releases that
	// connection and the sql.DB wrapper, never the pool itself.
	sqlDB := stdlib.OpenDBFromPool(pool)
	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return errors.Wrap(err, "failed to create postgres migration driver")
	}
	defer func() {
		if cerr := driver.Close(); cerr != nil && logger != nil {
			logger.Warnw("Failed to release migration connection", "error", cerr)
		}
	}()
	return runMigrations("migrations/postgres", "pgx5", driver, logger)
}

// MigrateSQLite applies the embedded sqlite migrations. The caller keeps ownership of sqlDB.
func MigrateSQLite(sqlDB *sql.DB, logger *zap.SugaredLogger) error {
	driver, err := sqlitemigrate.WithInstance(sqlDB, &sqlitemigrate.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create sqlite migration driver")
	}
	return runMigrations("migrations/sqlite", "sqlite3", driver, logger)
}

// runMigrations leaves the driver open; callers decide whether closing it is safe.
func runMigrations(dir, driverName string, driver database.Driver, logger *zap.SugaredLogger) error {
	source, err := iofs.New(migrationFiles, dir)
	if err != nil {
		return errors.Wrapf(err, "failed to open migrations in %s", dir)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return errors.Wrap(err, "failed to initialise migrations")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if logger != nil {
				logger.Infow("Schema already up to date", "driver", driverName)
			}
			return nil
		}
		return errors.Wrapf(err, "failed to apply %s migrations", driverName)
	}

	if logger != nil {
		version, dirty, verr := m.Version()
		if verr == nil {
			logger.Infow("Applied migrations", "driver", driverName, "version", version, "dirty", dirty)
		}
	}
	return nil
}
