package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records/internal/models"
)

type flakyAppender struct {
	mu       sync.Mutex
	failures int
	calls    int
	entries  []models.AuditLog
}

func (f *flakyAppender) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *flakyAppender) snapshot() (int, []models.AuditLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]models.AuditLog(nil), f.entries...)
}

func newAuditService(store auditAppender, metrics *MetricsService, retries int) *AuditService {
	return NewAuditService(store, metrics, nil, AuditServiceConfig{Workers: 1, Retries: retries, RetryDelay: time.Millisecond})
}

func TestAuditServiceDeliversAfterRetry(t *testing.T) {
	store := &flakyAppender{failures: 1}
	metrics := NewMetricsService()
	svc := newAuditService(store, metrics, 2)
	svc.Start(context.Background())

	ref := models.UserRef(1)
	svc.Record(models.AuditLog{UserID: &ref, Action: models.AuditActionEnroll, Resource: models.AuditResourceEnrollment})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	calls, entries := store.snapshot()
	assert.Equal(t, 2, calls)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].CreatedAt.IsZero())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.auditDeliveries.WithLabelValues("appended")))
}

func TestAuditServiceGivesUp(t *testing.T) {
	store := &flakyAppender{failures: 100}
	metrics := NewMetricsService()
	svc := newAuditService(store, metrics, 1)
	svc.Start(context.Background())

	svc.Record(models.AuditLog{Action: models.AuditActionUnenroll, Resource: models.AuditResourceEnrollment})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	calls, entries := store.snapshot()
	assert.Equal(t, 2, calls)
	assert.Empty(t, entries)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.auditDeliveries.WithLabelValues("failed")))
}

func TestAuditServiceDropsWhenStopped(t *testing.T) {
	store := &flakyAppender{}
	metrics := NewMetricsService()
	svc := newAuditService(store, metrics, 0)

	svc.Record(models.AuditLog{Action: models.AuditActionEnroll})

	calls, _ := store.snapshot()
	assert.Zero(t, calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.auditDeliveries.WithLabelValues("dropped")))
}
