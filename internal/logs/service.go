// Package logs exposes outcome log lookups to the HTTP and CLI surfaces.
package logs

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/sheetpipe/internal/domain"
	"github.com/rpattn/sheetpipe/internal/logger"
	"github.com/rpattn/sheetpipe/internal/repository"
)

// ErrInvalidID is returned for identifiers that are not UUIDs. It is distinct
// from repository.ErrNotFound, which means a well-formed id has no record.
var ErrInvalidID = errors.New("invalid uuid")

// ParseID parses the textual form of a UUID.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, errors.Wrapf(ErrInvalidID, "%q", raw)
	}
	return id, nil
}

// Service reads, creates and deletes outcome logs on top of a repository.
type Service struct {
	repo   repository.OutcomeLogRepository
	logger *zap.SugaredLogger
}

func NewService(repo repository.OutcomeLogRepository, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{repo: repo, logger: log.Named("logs")}
}

// GetLog returns the most recent record for id.
func (s *Service) GetLog(ctx context.Context, id uuid.UUID) (domain.OutcomeLog, error) {
	return s.repo.Get(ctx, id)
}

// Lookup parses raw and returns the most recent record for it.
func (s *Service) Lookup(ctx context.Context, raw string) (domain.OutcomeLog, error) {
	id, err := ParseID(raw)
	if err != nil {
		return domain.OutcomeLog{}, err
	}
	return s.GetLog(ctx, id)
}

// GetLogs returns every record, newest first unless order is ascending.
func (s *Service) GetLogs(ctx context.Context, order repository.SortOrder) ([]domain.OutcomeLog, error) {
	if order == "" {
		order = repository.SortDescending
	}
	return s.repo.List(ctx, order)
}

// CreateLog inserts record. It is not idempotent: the same uuid appends another record.
func (s *Service) CreateLog(ctx context.Context, record domain.OutcomeLog) (domain.OutcomeLog, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return domain.OutcomeLog{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := tx.Create(ctx, record)
	if err != nil {
		return domain.OutcomeLog{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.OutcomeLog{}, err
	}
	return created, nil
}

// DeleteLog removes every record for id. Deleting an unknown id is not an error.
func (s *Service) DeleteLog(ctx context.Context, id uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Infow("Deleted outcome logs", logger.FieldTaskID, id, logger.FieldCount, removed)
	return nil
}
