package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/rpattn/sheetpipe/internal/domain"
)

type sqliteOutcomeLogRepository struct {
	db *sql.DB
}

// NewSQLiteOutcomeLogRepository wires a repository backed by database/sql and go-sqlite3.
// The schema is expected to exist already (see db.MigrateSQLite).
func NewSQLiteOutcomeLogRepository(sqlDB *sql.DB) OutcomeLogRepository {
	return &sqliteOutcomeLogRepository{db: sqlDB}
}

func (r *sqliteOutcomeLogRepository) Begin(ctx context.Context) (OutcomeLogTx, error) {
	if r.db == nil {
		return nil, errors.New("outcome log repository not initialized")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin outcome log transaction")
	}
	return &sqliteOutcomeLogTx{tx: tx}, nil
}

func (r *sqliteOutcomeLogRepository) Get(ctx context.Context, id uuid.UUID) (domain.OutcomeLog, error) {
	if r.db == nil {
		return domain.OutcomeLog{}, errors.New("outcome log repository not initialized")
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+outcomeLogColumns+`
		 FROM outcome_logs
		 WHERE uuid = ?
		 ORDER BY created_date DESC, id DESC
		 LIMIT 1`,
		id.String(),
	)
	record, err := scanSQLiteOutcomeLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OutcomeLog{}, errors.Wrapf(ErrNotFound, "uuid %s", id)
		}
		return domain.OutcomeLog{}, errors.Wrap(err, "failed to get outcome log")
	}
	return record, nil
}

func (r *sqliteOutcomeLogRepository) List(ctx context.Context, order SortOrder) ([]domain.OutcomeLog, error) {
	if r.db == nil {
		return nil, errors.New("outcome log repository not initialized")
	}

	direction := order.sql()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outcomeLogColumns+`
		 FROM outcome_logs
		 ORDER BY created_date `+direction+`, id `+direction,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list outcome logs")
	}
	defer rows.Close()

	logs := []domain.OutcomeLog{}
	for rows.Next() {
		record, scanErr := scanSQLiteOutcomeLog(rows)
		if scanErr != nil {
			return nil, errors.Wrap(scanErr, "failed to scan outcome log")
		}
		logs = append(logs, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Wrap(rowsErr, "failed to iterate outcome logs")
	}
	return logs, nil
}

func (r *sqliteOutcomeLogRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	if r.db == nil {
		return 0, errors.New("outcome log repository not initialized")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM outcome_logs WHERE uuid = ?`, id.String())
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete outcome logs")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted outcome logs")
	}
	return affected, nil
}

type sqliteOutcomeLogTx struct {
	tx *sql.Tx
}

func (t *sqliteOutcomeLogTx) Create(ctx context.Context, record domain.OutcomeLog) (domain.OutcomeLog, error) {
	record, err := prepareRecord(record)
	if err != nil {
		return domain.OutcomeLog{}, err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO outcome_logs (`+outcomeLogColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.UUID.String(),
		record.CreatedAt,
		record.FileName,
		string(record.Status),
		record.Message,
		string(record.ErrorKind),
	)
	if err != nil {
		return domain.OutcomeLog{}, errors.Wrap(err, "failed to insert outcome log")
	}
	return record, nil
}

func (t *sqliteOutcomeLogTx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit outcome log")
	}
	return nil
}

func (t *sqliteOutcomeLogTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(err, "failed to roll back outcome log")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOutcomeLog(row rowScanner) (domain.OutcomeLog, error) {
	var (
		record    domain.OutcomeLog
		rawID     string
		createdAt time.Time
		status    string
		kind      string
	)
	if err := row.Scan(&rawID, &createdAt, &record.FileName, &status, &record.Message, &kind); err != nil {
		return domain.OutcomeLog{}, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return domain.OutcomeLog{}, errors.Wrapf(err, "stored uuid %q", rawID)
	}
	record.UUID = id
	record.CreatedAt = createdAt.UTC()
	record.Status = domain.OutcomeStatus(status)
	record.ErrorKind = domain.ErrorKind(kind)
	return record, nil
}
