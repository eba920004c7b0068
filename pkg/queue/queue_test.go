package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New(Config{ProcessingTimeout: 5 * time.Second})
	defer q.Close()

	var mu sync.Mutex
	var started []int
	outs := make([]<-chan Outcome, 0, 10)

	for i := 0; i < 10; i++ {
		i := i
		out, err := q.Add("agent", "world", func(context.Context) (any, error) {
			mu.Lock()
			started = append(started, i)
			mu.Unlock()
			return i, nil
		})
		require.NoError(t, err)
		outs = append(outs, out)
	}

	for i, out := range outs {
		o := <-out
		require.NoError(t, o.Err)
		assert.Equal(t, i, o.Value)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range started {
		assert.Equal(t, i, v, "task %d started out of order", i)
	}
}

func TestQueueFullRejectsBeforeWork(t *testing.T) {
	q := New(Config{ProcessingTimeout: 5 * time.Second})
	defer q.Close()

	// Occupy the worker so pending calls accumulate.
	block := make(chan struct{})
	_, err := q.Add("a", "w", func(context.Context) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	// Wait until the blocker has been popped off the pending list.
	require.Eventually(t, func() bool {
		return q.Status().Processing
	}, time.Second, 5*time.Millisecond)

	executed := make(chan struct{}, MaxQueueSize+1)
	for i := 0; i < MaxQueueSize; i++ {
		_, err := q.Add("a", "w", func(context.Context) (any, error) {
			executed <- struct{}{}
			return nil, nil
		})
		require.NoError(t, err)
	}

	_, err = q.Add("a", "w", func(context.Context) (any, error) {
		executed <- struct{}{}
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Empty(t, executed, "rejected call must not start")

	close(block)
}

func TestQueueTimeout(t *testing.T) {
	q := New(Config{ProcessingTimeout: time.Second})
	defer q.Close()

	start := time.Now()
	out, err := q.Add("slow-agent", "w", func(ctx context.Context) (any, error) {
		select {
		case <-time.After(2 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	require.NoError(t, err)

	o := <-out
	elapsed := time.Since(start)
	assert.ErrorIs(t, o.Err, ErrTimeout)
	assert.Less(t, elapsed, 1800*time.Millisecond, "timeout should fire at ~1s")

	// Queue advances past the timed-out call.
	next, err := q.Add("a", "w", func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	o = <-next
	require.NoError(t, o.Err)
	assert.Equal(t, "ok", o.Value)
}

func TestQueueMinimumTimeout(t *testing.T) {
	q := New(Config{ProcessingTimeout: time.Millisecond})
	defer q.Close()

	// 1ms is raised to the 1s floor, so a 20ms task must succeed.
	out, err := q.Add("a", "w", func(context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "done", nil
	})
	require.NoError(t, err)
	o := <-out
	require.NoError(t, o.Err)
	assert.Equal(t, "done", o.Value)
}

func TestQueueClear(t *testing.T) {
	q := New(Config{ProcessingTimeout: 5 * time.Second})
	defer q.Close()

	block := make(chan struct{})
	defer close(block)
	_, err := q.Add("busy", "w", func(context.Context) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Status().Processing }, time.Second, 5*time.Millisecond)

	var outs []<-chan Outcome
	for i := 0; i < 3; i++ {
		out, err := q.Add("a", "w", func(context.Context) (any, error) { return nil, nil })
		require.NoError(t, err)
		outs = append(outs, out)
	}

	assert.Equal(t, 3, q.Clear())
	for _, out := range outs {
		o := <-out
		assert.ErrorIs(t, o.Err, ErrQueueCleared)
	}
	assert.Equal(t, 0, q.Status().Length)
}

func TestQueueStatus(t *testing.T) {
	q := New(Config{ProcessingTimeout: 5 * time.Second})
	defer q.Close()

	st := q.Status()
	assert.Equal(t, 0, st.Length)
	assert.False(t, st.Processing)
	assert.Equal(t, MaxQueueSize, st.MaxQueueSize)

	block := make(chan struct{})
	defer close(block)
	_, err := q.Add("busy", "w1", func(context.Context) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)
	_, err = q.Add("next-agent", "next-world", func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.Status().Processing }, time.Second, 5*time.Millisecond)
	st = q.Status()
	assert.Equal(t, 1, st.Length)
	assert.Equal(t, "next-agent", st.NextAgent)
	assert.Equal(t, "next-world", st.NextWorld)
}

func TestQueueCloseRejectsPendingAndNewCalls(t *testing.T) {
	q := New(Config{ProcessingTimeout: 5 * time.Second})

	out, err := q.Add("a", "w", func(context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	o := <-out
	require.NoError(t, o.Err)

	q.Close()
	q.Close() // idempotent

	_, err = q.Add("a", "w", func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueTaskContextCancelledOnTimeout(t *testing.T) {
	q := New(Config{ProcessingTimeout: time.Second})
	defer q.Close()

	cancelled := make(chan struct{})
	out, err := q.Add("a", "w", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	<-out
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled on timeout")
	}
}
