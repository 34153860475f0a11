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

type generationRequest struct {
	TermID string
	Async  bool
}

func TestQueueDeliversTypedPayload(t *testing.T) {
	var mu sync.Mutex
	var seen []generationRequest
	done := make(chan struct{})

	q := NewQueue("test", func(_ context.Context, job Job[generationRequest]) error {
		mu.Lock()
		seen = append(seen, job.Payload)
		mu.Unlock()
		if len(seen) == 2 {
			close(done)
		}
		return nil
	}, QueueConfig{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[generationRequest]{ID: "j1", Type: "generate", Payload: generationRequest{TermID: "2026-fall"}}))
	require.NoError(t, q.Enqueue(Job[generationRequest]{ID: "j2", Type: "generate", Payload: generationRequest{TermID: "2027-spring", Async: true}}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw both jobs")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "2026-fall", seen[0].TermID)
	assert.Equal(t, "2027-spring", seen[1].TermID)
	assert.True(t, seen[1].Async)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})

	q := NewQueue("test", func(_ context.Context, job Job[generationRequest]) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[generationRequest]{ID: "j1", Payload: generationRequest{TermID: "2026-fall"}}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never retried")
	}
	assert.EqualValues(t, 2, attempts.Load())
}

func TestQueueRejectsEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(_ context.Context, _ Job[generationRequest]) error {
		return nil
	}, QueueConfig{})

	err := q.Enqueue(Job[generationRequest]{ID: "j1"})
	assert.ErrorContains(t, err, "not started")
}

func TestQueueStampsEnqueueTime(t *testing.T) {
	received := make(chan Job[generationRequest], 1)
	q := NewQueue("test", func(_ context.Context, job Job[generationRequest]) error {
		received <- job
		return nil
	}, QueueConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[generationRequest]{ID: "j1"}))
	select {
	case job := <-received:
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job never delivered")
	}
}
