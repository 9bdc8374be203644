package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/rpattn/sheetpipe/internal/domain"
)

var errTxFinished = errors.New("outcome log transaction already finished")

type memoryEntry struct {
	seq    int64
	record domain.OutcomeLog
}

// MemoryOutcomeLogRepository keeps records in process memory. It backs the
// `process` command and tests.
type MemoryOutcomeLogRepository struct {
	mu      sync.RWMutex
	nextSeq int64
	entries []memoryEntry
}

var _ OutcomeLogRepository = (*MemoryOutcomeLogRepository)(nil)

func NewMemoryOutcomeLogRepository() *MemoryOutcomeLogRepository {
	return &MemoryOutcomeLogRepository{}
}

func (r *MemoryOutcomeLogRepository) Begin(ctx context.Context) (OutcomeLogTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to begin outcome log transaction")
	}
	return &memoryOutcomeLogTx{repo: r}, nil
}

func (r *MemoryOutcomeLogRepository) Get(_ context.Context, id uuid.UUID) (domain.OutcomeLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		latest domain.OutcomeLog
		found  bool
	)
	for _, entry := range r.entries {
		if entry.record.UUID != id {
			continue
		}
		// entries are in insertion order, so ties on created_date resolve to the later insert
		if !found || !entry.record.CreatedAt.Before(latest.CreatedAt) {
			latest = entry.record
			found = true
		}
	}
	if !found {
		return domain.OutcomeLog{}, errors.Wrapf(ErrNotFound, "uuid %s", id)
	}
	return latest, nil
}

func (r *MemoryOutcomeLogRepository) List(_ context.Context, order SortOrder) ([]domain.OutcomeLog, error) {
	r.mu.RLock()
	entries := make([]memoryEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.record.CreatedAt.Equal(b.record.CreatedAt) {
			if order == SortAscending {
				return a.record.CreatedAt.Before(b.record.CreatedAt)
			}
			return a.record.CreatedAt.After(b.record.CreatedAt)
		}
		if order == SortAscending {
			return a.seq < b.seq
		}
		return a.seq > b.seq
	})

	logs := make([]domain.OutcomeLog, 0, len(entries))
	for _, entry := range entries {
		logs = append(logs, entry.record)
	}
	return logs, nil
}

func (r *MemoryOutcomeLogRepository) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	var removed int64
	for _, entry := range r.entries {
		if entry.record.UUID == id {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	r.entries = kept
	return removed, nil
}

func (r *MemoryOutcomeLogRepository) append(records []domain.OutcomeLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range records {
		r.nextSeq++
		r.entries = append(r.entries, memoryEntry{seq: r.nextSeq, record: record})
	}
}

type memoryOutcomeLogTx struct {
	repo     *MemoryOutcomeLogRepository
	pending  []domain.OutcomeLog
	finished bool
}

func (t *memoryOutcomeLogTx) Create(_ context.Context, record domain.OutcomeLog) (domain.OutcomeLog, error) {
	if t.finished {
		return domain.OutcomeLog{}, errTxFinished
	}
	record, err := prepareRecord(record)
	if err != nil {
		return domain.OutcomeLog{}, err
	}
	t.pending = append(t.pending, record)
	return record, nil
}

func (t *memoryOutcomeLogTx) Commit(context.Context) error {
	if t.finished {
		return errTxFinished
	}
	t.finished = true
	t.repo.append(t.pending)
	t.pending = nil
	return nil
}

func (t *memoryOutcomeLogTx) Rollback(context.Context) error {
	t.finished = true
	t.pending = nil
	return nil
}
