package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/rpattn/sheetpipe/internal/domain"
)

// ErrNotFound is returned when no record matches the requested identifier.
var ErrNotFound = errors.New("outcome log not found")

// SortOrder selects how List orders records by creation time.
type SortOrder string

const (
	SortDescending SortOrder = "desc"
	SortAscending  SortOrder = "asc"
)

// ParseSortOrder maps query values onto a SortOrder; empty means newest first.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch SortOrder(raw) {
	case "", SortDescending:
		return SortDescending, nil
	case SortAscending:
		return SortAscending, nil
	default:
		return "", errors.Newf("unknown sort order %q", raw)
	}
}

func (o SortOrder) sql() string {
	if o == SortAscending {
		return "ASC"
	}
	return "DESC"
}

// OutcomeLogRepository defines persistence for outcome logs.
// Records are keyed by a surrogate id, so the same uuid may appear more than once.
type OutcomeLogRepository interface {
	Begin(ctx context.Context) (OutcomeLogTx, error)
	Get(ctx context.Context, id uuid.UUID) (domain.OutcomeLog, error)
	List(ctx context.Context, order SortOrder) ([]domain.OutcomeLog, error)
	// Delete removes every record for id and reports how many were removed.
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

// OutcomeLogTx is a unit of work holding one store connection.
// Rollback after Commit is a no-op, so callers may always defer it.
type OutcomeLogTx interface {
	Create(ctx context.Context, record domain.OutcomeLog) (domain.OutcomeLog, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
