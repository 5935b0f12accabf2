package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/jobs"
)

const auditJobType = "audit.append"

type auditAppender interface {
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// AuditServiceConfig tunes background delivery.
type AuditServiceConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// AuditService records audit rows in the support store off the request path.
// An audit row is written after the academic transaction it describes has
// committed; a failed append is retried and then dropped, never rolled into
// the academic outcome.
type AuditService struct {
	store   auditAppender
	queue   *jobs.Queue
	retries int
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs AuditService and its worker queue.
func NewAuditService(store auditAppender, metrics *MetricsService, logger *zap.Logger, cfg AuditServiceConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{store: store, retries: cfg.Retries, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("audit", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for queued rows to be delivered or ctx to expire.
func (s *AuditService) Stop(ctx context.Context) error {
	return s.queue.Stop(ctx)
}

// Record queues entry for delivery. It never blocks and never fails the
// caller; undeliverable rows are logged and counted.
func (s *AuditService) Record(entry models.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	job := jobs.Job{ID: uuid.NewString(), Type: auditJobType, Payload: entry}
	if err := s.queue.Enqueue(job); err != nil {
		s.metrics.RecordAuditDelivery("dropped")
		s.logger.Warn("audit entry dropped",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err))
	}
}

func (s *AuditService) deliver(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.metrics.RecordAuditDelivery("failed")
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	if err := s.store.AppendAuditLog(ctx, &entry); err != nil {
		if job.Attempt >= s.retries {
			s.metrics.RecordAuditDelivery("failed")
		}
		return err
	}
	s.metrics.RecordAuditDelivery("appended")
	return nil
}
