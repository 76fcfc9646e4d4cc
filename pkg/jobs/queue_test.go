package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan Job[string], 1)
	q := New("test", func(ctx context.Context, job Job[string]) error {
		done <- job
		return nil
	}, Config{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Offer(Job[string]{ID: "1", Payload: "hello"}))

	select {
	case job := <-done:
		assert.Equal(t, "1", job.ID)
		assert.Equal(t, "hello", job.Payload)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(time.Second):
		t.Fatal("job not processed")
	}
	require.Eventually(t, func() bool { return q.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := New("retry", func(ctx context.Context, job Job[int]) error {
		if atomic.AddInt32(&calls, 1) < 2 {
			return errors.New("boom")
		}
		assert.Equal(t, 1, job.Attempt)
		close(done)
		return nil
	}, Config{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Offer(Job[int]{ID: "r"}))

	select {
	case <-done:
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	case <-time.After(time.Second):
		t.Fatal("job not retried")
	}
	assert.Equal(t, uint64(1), q.Stats().Retried)
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q := New("exhaust", func(ctx context.Context, job Job[int]) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}, Config{Workers: 1, MaxRetries: 1, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Offer(Job[int]{ID: "x"}))

	require.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOfferOutsideRunningStateFails(t *testing.T) {
	q := New("idle", func(context.Context, Job[int]) error { return nil }, Config{})
	assert.ErrorIs(t, q.Offer(Job[int]{ID: "x"}), ErrQueueClosed)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Offer(Job[int]{ID: "y"}), ErrQueueClosed)
}

func TestOfferReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q := New("full", func(ctx context.Context, job Job[int]) error {
		started <- struct{}{}
		<-block
		return nil
	}, Config{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	// first job occupies the worker, second fills the buffer
	require.NoError(t, q.Offer(Job[int]{ID: "a"}))
	<-started
	require.NoError(t, q.Offer(Job[int]{ID: "b"}))
	assert.ErrorIs(t, q.Offer(Job[int]{ID: "c"}), ErrQueueFull)
}

func TestStopDrainsBufferedJobs(t *testing.T) {
	var handled int32
	release := make(chan struct{})
	q := New("drain", func(ctx context.Context, job Job[int]) error {
		<-release
		assert.NoError(t, ctx.Err())
		atomic.AddInt32(&handled, 1)
		return nil
	}, Config{Workers: 1, BufferSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Offer(Job[int]{Payload: i}))
	}
	cancel()
	close(release)
	q.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
	assert.Equal(t, uint64(3), q.Stats().Processed)
}
