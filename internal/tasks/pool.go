// Package tasks queues pipeline runs and tracks their coarse status.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/logger"
)

// Status is the queue-level state of a task. It says nothing about whether
// the upload passed validation; the outcome log does.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrStopped   = errors.New("task queue is stopped")
)

// Job is the unit of work for one task.
type Job func(ctx context.Context) error

// Orchestrator accepts work and reports its status. Unknown ids are PENDING.
type Orchestrator interface {
	Submit(ctx context.Context, id uuid.UUID, job Job) (Status, error)
	Status(ctx context.Context, id uuid.UUID) (Status, error)
}

type queuedJob struct {
	id  uuid.UUID
	run Job
}

// Pool runs jobs on a fixed number of worker goroutines fed by a bounded channel.
type Pool struct {
	workers    int
	jobTimeout time.Duration
	logger     *zap.SugaredLogger

	jobs chan queuedJob
	wg   sync.WaitGroup

	mu       sync.RWMutex
	active   map[uuid.UUID]Status
	finished *expirable.LRU[uuid.UUID, Status]
	started  bool
	stopped  bool
}

var _ Orchestrator = (*Pool)(nil)

func NewPool(cfg config.QueueConfig, log *zap.SugaredLogger) *Pool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	maxFinished := cfg.MaxFinished
	if maxFinished < 0 {
		maxFinished = 0
	}
	return &Pool{
		workers:    workers,
		jobTimeout: cfg.JobTimeout,
		logger:     log.Named("tasks"),
		jobs:       make(chan queuedJob, capacity),
		active:     make(map[uuid.UUID]Status),
		finished:   expirable.NewLRU[uuid.UUID, Status](maxFinished, nil, cfg.StatusTTL),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Infow("Task pool started", "workers", p.workers, "capacity", cap(p.jobs))
}

// Stop refuses new work, lets queued jobs drain and waits for the workers
// or for ctx to end, whichever comes first.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Infow("Task pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warnw("Task pool stop timed out, workers still running")
		return errors.Wrap(ctx.Err(), "wait for task workers")
	}
}

// Submit enqueues job under id without blocking.
func (p *Pool) Submit(_ context.Context, id uuid.UUID, job Job) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return "", ErrStopped
	}
	select {
	case p.jobs <- queuedJob{id: id, run: job}:
		p.active[id] = StatusPending
		return StatusPending, nil
	default:
		return "", errors.Wrapf(ErrQueueFull, "capacity %d", cap(p.jobs))
	}
}

// Status reports the coarse state of id. Queued and running tasks are
// tracked until they finish; finished ones until they expire or are
// evicted. Unknown ids are PENDING.
func (p *Pool) Status(_ context.Context, id uuid.UUID) (Status, error) {
	p.mu.RLock()
	status, ok := p.active[id]
	p.mu.RUnlock()
	if ok {
		return status, nil
	}
	if status, ok := p.finished.Get(id); ok {
		return status, nil
	}
	return StatusPending, nil
}

func (p *Pool) setStatus(id uuid.UUID, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == StatusSucceeded || status == StatusFailed {
		delete(p.active, id)
		p.finished.Add(id, status)
		return
	}
	p.active[id] = status
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.execute(n, job)
	}
}

func (p *Pool) execute(worker int, job queuedJob) {
	p.setStatus(job.id, StatusRunning)
	started := time.Now()

	ctx := context.Background()
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	err := runRecovered(ctx, job)
	elapsed := time.Since(started).Milliseconds()
	if err != nil {
		p.setStatus(job.id, StatusFailed)
		p.logger.Errorw("Task failed",
			logger.FieldTaskID, job.id,
			"worker", worker,
			logger.FieldDurationMS, elapsed,
			logger.FieldError, err)
		return
	}
	p.setStatus(job.id, StatusSucceeded)
	p.logger.Infow("Task finished",
		logger.FieldTaskID, job.id,
		"worker", worker,
		logger.FieldDurationMS, elapsed)
}

func runRecovered(ctx context.Context, job queuedJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("panic in task %s: %v", job.id, rec)
		}
	}()
	return job.run(ctx)
}
