package commands

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/db"
	"github.com/rpattn/sheetpipe/internal/logger"
	"github.com/rpattn/sheetpipe/internal/repository"
)

// openStore connects the configured backend, optionally migrating it first.
// The returned func releases the connection.
func openStore(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, migrate bool) (repository.OutcomeLogRepository, func(), error) {
	log = log.Named("store")
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to postgres")
		}
		if migrate {
			if err := db.MigratePostgres(ctx, conn.Pool, log); err != nil {
				conn.Close()
				return nil, nil, err
			}
		}
		log.Infow("Using postgres outcome log store", logger.FieldDriver, cfg.Store.Driver,
			"host", cfg.Database.Host, "dbname", cfg.Database.DBName)
		return repository.NewPostgresOutcomeLogRepository(conn.Pool), conn.Close, nil

	case config.StoreDriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := db.MigrateSQLite(sqlDB, log); err != nil {
				_ = sqlDB.Close()
				return nil, nil, err
			}
		}
		log.Infow("Using sqlite outcome log store", logger.FieldDriver, cfg.Store.Driver, "path", cfg.Store.SQLitePath)
		return repository.NewSQLiteOutcomeLogRepository(sqlDB), func() { _ = sqlDB.Close() }, nil

	default:
		return nil, nil, errors.Newf("unsupported store driver %q", cfg.Store.Driver)
	}
}
