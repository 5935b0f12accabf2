package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "audit"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	require.NoError(t, q.Stop(context.Background()))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.NoError(t, q.Stop(context.Background()))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 10})

	q.Start(context.Background())
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	require.NoError(t, q.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, seen)
}

func TestQueueEnqueueStates(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	assert.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrNotStarted)

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	// Worker holds job 1 or the buffer holds it; either way two more cannot fit.
	err1 := q.Enqueue(Job{ID: "2"})
	err2 := q.Enqueue(Job{ID: "3"})
	assert.True(t, errors.Is(err1, ErrFull) || errors.Is(err2, ErrFull))

	close(block)
	require.NoError(t, q.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrClosed)
}

func TestQueueStopHonoursDeadline(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: time.Hour})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "stuck"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Stop(ctx), context.DeadlineExceeded)
}
