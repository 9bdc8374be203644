package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/sheetpipe/internal/domain"
)

const outcomeLogColumns = `uuid, created_date, filename, status, log, error_type`

type postgresOutcomeLogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOutcomeLogRepository wires a repository backed by pgxpool.
func NewPostgresOutcomeLogRepository(pool *pgxpool.Pool) OutcomeLogRepository {
	return &postgresOutcomeLogRepository{pool: pool}
}

func (r *postgresOutcomeLogRepository) Begin(ctx context.Context) (OutcomeLogTx, error) {
	if r.pool == nil {
		return nil, errors.New("outcome log repository not initialized")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin outcome log transaction")
	}
	return &postgresOutcomeLogTx{tx: tx}, nil
}

func (r *postgresOutcomeLogRepository) Get(ctx context.Context, id uuid.UUID) (domain.OutcomeLog, error) {
	if r.pool == nil {
		return domain.OutcomeLog{}, errors.New("outcome log repository not initialized")
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+outcomeLogColumns+`
		 FROM outcome_logs
		 WHERE uuid = $1
		 ORDER BY created_date DESC, id DESC
		 LIMIT 1`,
		id,
	)
	record, err := scanPostgresOutcomeLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OutcomeLog{}, errors.Wrapf(ErrNotFound, "uuid %s", id)
		}
		return domain.OutcomeLog{}, errors.Wrap(err, "failed to get outcome log")
	}
	return record, nil
}

func (r *postgresOutcomeLogRepository) List(ctx context.Context, order SortOrder) ([]domain.OutcomeLog, error) {
	if r.pool == nil {
		return nil, errors.New("outcome log repository not initialized")
	}

	direction := order.sql()
	rows, err := r.pool.Query(ctx,
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
		record, scanErr := scanPostgresOutcomeLog(rows)
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

func (r *postgresOutcomeLogRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	if r.pool == nil {
		return 0, errors.New("outcome log repository not initialized")
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM outcome_logs WHERE uuid = $1`, id)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete outcome logs")
	}
	return tag.RowsAffected(), nil
}

type postgresOutcomeLogTx struct {
	tx pgx.Tx
}

func (t *postgresOutcomeLogTx) Create(ctx context.Context, record domain.OutcomeLog) (domain.OutcomeLog, error) {
	record, err := prepareRecord(record)
	if err != nil {
		return domain.OutcomeLog{}, err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO outcome_logs (`+outcomeLogColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.UUID,
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

func (t *postgresOutcomeLogTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit outcome log")
	}
	return nil
}

func (t *postgresOutcomeLogTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return errors.Wrap(err, "failed to roll back outcome log")
	}
	return nil
}

func scanPostgresOutcomeLog(row pgx.Row) (domain.OutcomeLog, error) {
	var (
		record    domain.OutcomeLog
		createdAt pgtype.Timestamptz
		status    string
		kind      string
	)
	if err := row.Scan(&record.UUID, &createdAt, &record.FileName, &status, &record.Message, &kind); err != nil {
		return domain.OutcomeLog{}, err
	}
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time.UTC()
	}
	record.Status = domain.OutcomeStatus(status)
	record.ErrorKind = domain.ErrorKind(kind)
	return record, nil
}
