// Package pipeline runs one upload through validation, transformation and
// outcome logging.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/domain"
	"github.com/rpattn/sheetpipe/internal/ingestion"
	"github.com/rpattn/sheetpipe/internal/logger"
	"github.com/rpattn/sheetpipe/internal/repository"
	"github.com/rpattn/sheetpipe/internal/transformations"
)

// Submission is everything a run needs; it is fully buffered before the run starts.
type Submission struct {
	TaskID      uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
}

// StateObserver is notified on every run state transition.
type StateObserver func(taskID uuid.UUID, state domain.RunState)

// Driver runs submissions through the validator chain and transformer and
// records one outcome log per run. It is safe for concurrent use.
type Driver struct {
	chain       *ingestion.Chain
	transformer *transformations.Transformer
	store       repository.OutcomeLogRepository
	logger      *zap.SugaredLogger
	observe     StateObserver
	reader      ingestion.Reader
}

// Option configures a Driver.
type Option func(*Driver)

// WithReader replaces the spreadsheet reader used by the validator chain.
func WithReader(reader ingestion.Reader) Option {
	return func(d *Driver) {
		if reader != nil {
			d.reader = reader
		}
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(d *Driver) {
		if log != nil {
			d.logger = log
		}
	}
}

func WithStateObserver(observe StateObserver) Option {
	return func(d *Driver) {
		d.observe = observe
	}
}

func NewDriver(cfg config.ExcelConfig, store repository.OutcomeLogRepository, opts ...Option) *Driver {
	d := &Driver{
		transformer: transformations.NewTransformer(cfg),
		store:       store,
		logger:      zap.NewNop().Sugar(),
		reader:      ingestion.WorkbookReader{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.chain = ingestion.NewChain(cfg, d.reader)
	d.logger = d.logger.Named("pipeline")
	return d
}

// OutputPath is where a successful run for taskID leaves its workbook.
func (d *Driver) OutputPath(taskID uuid.UUID) string {
	return transformations.OutputPath(d.transformer.OutputDir(), taskID)
}

type run struct {
	sub     Submission
	state   domain.RunState
	observe StateObserver
	defect  error
}

func (r *run) advance(next domain.RunState) error {
	if !r.state.CanTransition(next) {
		return errors.AssertionFailedf("illegal run transition %s -> %s", r.state, next)
	}
	r.state = next
	if r.observe != nil {
		r.observe(r.sub.TaskID, next)
	}
	return nil
}

// Process runs sub to completion and writes exactly one outcome log.
// Validation failures are recorded and return a nil error. Defects are
// recorded as OTHER and returned, as are failures to write the log itself.
func (d *Driver) Process(ctx context.Context, sub Submission) (domain.OutcomeLog, error) {
	started := time.Now()
	r := &run{sub: sub, state: domain.RunStateReceived, observe: d.observe}
	if r.observe != nil {
		r.observe(sub.TaskID, r.state)
	}

	staged, failure, defect := d.evaluate(ctx, r)
	r.defect = defect

	var record domain.OutcomeLog
	switch {
	case defect != nil:
		record = otherLog(sub, defect)
	case failure != nil:
		record = domain.NewFailureLog(sub.TaskID, sub.FileName, *failure)
	default:
		record = domain.NewSuccessLog(sub.TaskID, sub.FileName)
	}

	// The log is written even when the run's deadline has passed.
	record, err := d.finish(context.WithoutCancel(ctx), r, record, staged)

	fields := []any{
		logger.FieldTaskID, sub.TaskID,
		logger.FieldFileName, sub.FileName,
		logger.FieldStatus, record.Status,
		logger.FieldErrorType, record.ErrorKind,
		logger.FieldDurationMS, time.Since(started).Milliseconds(),
	}
	switch {
	case err != nil:
		d.logger.Errorw("Failed to record outcome", append(fields, logger.FieldError, err)...)
		return record, err
	case r.defect != nil:
		d.logger.Errorw("Run failed with defect", append(fields, logger.FieldError, fmt.Sprintf("%+v", r.defect))...)
		return record, r.defect
	case record.Succeeded():
		d.logger.Infow("Run succeeded", fields...)
	default:
		d.logger.Infow("Run rejected by validation", fields...)
	}
	return record, nil
}

// evaluate moves the run through validation and transformation. A panic
// anywhere in here becomes a defect carrying the panic site's stack.
func (d *Driver) evaluate(ctx context.Context, r *run) (staged *transformations.StagedOutput, failure *domain.Failure, defect error) {
	defer func() {
		if rec := recover(); rec != nil {
			if staged != nil {
				_ = staged.Discard()
			}
			staged, failure = nil, nil
			defect = errors.Newf("panic while processing task %s: %v", r.sub.TaskID, rec)
		}
	}()

	if err := r.advance(domain.RunStateValidating); err != nil {
		return nil, nil, err
	}
	table, failure := d.chain.Validate(r.sub.ContentType, r.sub.Data)
	if failure != nil {
		return nil, failure, nil
	}

	if err := r.advance(domain.RunStateTransforming); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "run aborted before transformation")
	}
	series, err := d.transformer.Transform(table)
	if err != nil {
		return nil, nil, errors.Wrap(err, "transform table")
	}
	staged, err = d.transformer.Stage(r.sub.TaskID, series)
	if err != nil {
		return nil, nil, errors.Wrap(err, "stage output file")
	}
	return staged, nil, nil
}

// finish is the single exit: promote any staged output, then create and
// commit the log in one transaction. A promoted file is reverted when the
// log cannot be committed, which restores the output of an earlier run.
func (d *Driver) finish(ctx context.Context, r *run, record domain.OutcomeLog, staged *transformations.StagedOutput) (domain.OutcomeLog, error) {
	discard := func() {
		if staged == nil {
			return
		}
		if err := staged.Discard(); err != nil {
			d.logger.Warnw("Failed to discard staged output", logger.FieldTaskID, r.sub.TaskID, logger.FieldError, err)
		}
	}
	revert := func() {
		if err := staged.Revert(); err != nil {
			d.logger.Errorw("Failed to revert promoted output", logger.FieldTaskID, r.sub.TaskID, logger.FieldError, err)
		}
	}

	if err := r.advance(domain.RunStateLogged); err != nil {
		discard()
		return record, err
	}

	tx, err := d.store.Begin(ctx)
	if err != nil {
		discard()
		return record, errors.Wrap(err, "open outcome log transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	promoted := false
	if staged != nil && record.Succeeded() {
		if err := staged.Promote(); err != nil {
			discard()
			r.defect = err
			record = otherLog(r.sub, err)
		} else {
			promoted = true
		}
	} else {
		discard()
	}

	created, err := tx.Create(ctx, record)
	if err != nil {
		if promoted {
			revert()
		}
		return record, errors.Wrap(err, "create outcome log")
	}
	if err := tx.Commit(ctx); err != nil {
		if promoted {
			revert()
		}
		return created, errors.Wrap(err, "commit outcome log")
	}
	if promoted {
		if err := staged.Commit(); err != nil {
			d.logger.Warnw("Failed to remove replaced output", logger.FieldTaskID, r.sub.TaskID, logger.FieldError, err)
		}
	}
	return created, nil
}

func otherLog(sub Submission, defect error) domain.OutcomeLog {
	return domain.NewFailureLog(sub.TaskID, sub.FileName, domain.Failure{
		Status:  domain.OutcomeStatusFailed,
		Message: fmt.Sprintf("%+v", defect),
		Kind:    domain.ErrorKindOther,
	})
}
