package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Offer when the buffer has no room.
var ErrQueueFull = errors.New("queue full")

// ErrQueueClosed is returned by Offer before Start or after Stop.
var ErrQueueClosed = errors.New("queue not accepting jobs")

// Job wraps a payload with delivery bookkeeping.
type Job[T any] struct {
	ID       string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A non-nil error schedules a retry.
type Handler[T any] func(context.Context, Job[T]) error

// Config sizes the worker pool. Zero values fall back to defaults.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is multiplied by the attempt number before each retry.
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Stats counts job outcomes since Start.
type Stats struct {
	Processed uint64
	Retried   uint64
	Failed    uint64
	Dropped   uint64
}

const (
	stateIdle int = iota
	stateRunning
	stateStopped
)

// Queue is an in-memory, fire-and-forget worker pool. Stop drains jobs that
// were already buffered; pending retries are dropped.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	cfg     Config
	logger  *zap.SugaredLogger

	jobs   chan Job[T]
	mu     sync.RWMutex
	state  int
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New builds a queue named for logging.
func New[T any](name string, handler Handler[T], cfg Config) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.Sugar().With("queue", name),
		jobs:    make(chan Job[T], cfg.BufferSize),
	}
}

// Start launches the workers. Jobs are handled with a context detached from
// ctx cancellation so buffered work survives shutdown.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateIdle {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	handlerCtx := context.WithoutCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(handlerCtx)
	}
	q.state = stateRunning
	q.logger.Infow("queue started", "workers", q.cfg.Workers, "buffer", q.cfg.BufferSize)
}

// Stop refuses new jobs, handles what is buffered and waits for the workers.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return
	}
	q.state = stateStopped
	q.cancel()
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	stats := q.Stats()
	q.logger.Infow("queue stopped",
		"processed", stats.Processed, "failed", stats.Failed, "dropped", stats.Dropped)
}

// Offer buffers a job without blocking.
func (q *Queue[T]) Offer(job Job[T]) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	if err := q.push(job); err != nil {
		return fmt.Errorf("%s: %w", q.name, err)
	}
	return nil
}

// Stats returns a snapshot of the outcome counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Processed: q.processed.Load(),
		Retried:   q.retried.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue[T]) push(job Job[T]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state != stateRunning {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue[T]) worker(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		if err := q.handler(ctx, job); err != nil {
			q.retry(job, err)
			continue
		}
		q.processed.Add(1)
	}
}

func (q *Queue[T]) retry(job Job[T], cause error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.failed.Add(1)
		q.logger.Errorw("job exceeded retries", "job_id", job.ID, "attempts", job.Attempt, "error", cause)
		return
	}
	q.retried.Add(1)
	delay := q.cfg.RetryDelay * time.Duration(job.Attempt)
	q.logger.Warnw("job failed, retrying", "job_id", job.ID, "attempt", job.Attempt, "delay", delay, "error", cause)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.dropped.Add(1)
		case <-timer.C:
			if err := q.push(job); err != nil {
				q.dropped.Add(1)
				q.logger.Errorw("failed to requeue job", "job_id", job.ID, "error", err)
			}
		}
	}()
}
