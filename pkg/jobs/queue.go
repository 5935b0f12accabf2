package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned by Enqueue before Start.
	ErrNotStarted = errors.New("queue not started")
	// ErrClosed is returned by Enqueue after Stop.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned when the buffer is saturated. Enqueue never blocks
	// the caller.
	ErrFull = errors.New("queue full")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-memory job dispatcher backed by goroutines. Failed jobs are
// retried by the same worker with a linear backoff; Stop drains whatever is
// still buffered.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
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
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop refuses new jobs and waits for buffered ones to finish. When ctx
// expires first, in-flight handlers are cancelled and ctx.Err is returned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.closed {
		q.closed = true
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("queue stopped", zap.String("queue", q.name))
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("queue stopped before drain", zap.String("queue", q.name), zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Enqueue pushes a job onto the queue without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue %s: %w", q.name, ErrClosed)
	}
	if !q.started {
		return fmt.Errorf("queue %s: %w", q.name, ErrNotStarted)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrFull)
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(workerID, job)
	}
}

func (q *Queue) process(workerID int, job Job) {
	for {
		err := q.handler(q.ctx, job)
		if err == nil {
			return
		}
		job.Attempt++
		fields := []zap.Field{
			zap.String("queue", q.name),
			zap.Int("worker", workerID),
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		}
		if job.Attempt > q.maxRetries {
			q.logger.Error("job exceeded retries", fields...)
			return
		}
		q.logger.Warn("job failed, retrying", fields...)

		timer := time.NewTimer(q.retryDelay * time.Duration(job.Attempt))
		select {
		case <-q.ctx.Done():
			timer.Stop()
			q.logger.Error("job abandoned", fields...)
			return
		case <-timer.C:
		}
	}
}
