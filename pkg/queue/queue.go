// Package queue provides the process-global FIFO queue that serializes LLM
// provider calls across all worlds. Exactly one call executes at a time;
// every call gets a warning timer at half the processing timeout and a hard
// timeout that cancels its context. The queue is transport-agnostic: callers
// enqueue a Task closure that performs the actual provider dispatch.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agent-world/agentworld/pkg/metrics"
)

const (
	// MaxQueueSize bounds the number of pending calls.
	MaxQueueSize = 100

	// DefaultProcessingTimeout is the hard per-call deadline.
	DefaultProcessingTimeout = 15 * time.Minute

	// MinProcessingTimeout is the lowest configurable deadline.
	MinProcessingTimeout = time.Second
)

// Task is one unit of LLM work. The context is cancelled when the call times
// out or the queue shuts down; tasks must respect it.
type Task func(ctx context.Context) (any, error)

// Outcome is the settled result of a queued call.
type Outcome struct {
	Value any
	Err   error
}

// Status is a point-in-time snapshot of the queue.
type Status struct {
	Length       int    `json:"length"`
	Processing   bool   `json:"processing"`
	NextAgent    string `json:"nextAgent,omitempty"`
	NextWorld    string `json:"nextWorld,omitempty"`
	MaxQueueSize int    `json:"maxQueueSize"`
}

// Config parameterizes a Queue.
type Config struct {
	// ProcessingTimeout is the hard per-call deadline. Values below
	// MinProcessingTimeout are raised to it; zero selects the default.
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
}

type call struct {
	id      string
	agentID string
	worldID string
	task    Task
	out     chan Outcome
}

func (c *call) settle(o Outcome) {
	// Buffered channel of capacity 1; every call settles exactly once.
	c.out <- o
}

// Queue is the serialized LLM call queue. Construct with New and inject it;
// never share through package state, so tests get fresh instances.
type Queue struct {
	timeout time.Duration

	mu         sync.Mutex
	pending    []*call
	processing bool
	current    *call
	closed     bool

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a queue and starts its worker goroutine.
func New(cfg Config) *Queue {
	timeout := cfg.ProcessingTimeout
	if timeout == 0 {
		timeout = DefaultProcessingTimeout
	}
	if timeout < MinProcessingTimeout {
		slog.Warn("LLM queue timeout below minimum, raising",
			"configured", timeout, "minimum", MinProcessingTimeout)
		timeout = MinProcessingTimeout
	}

	q := &Queue{
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Add enqueues a call and returns the channel its outcome will arrive on.
// The channel is buffered; the caller may abandon it without blocking the
// queue. Fails immediately with ErrQueueFull or ErrClosed.
func (q *Queue) Add(agentID, worldID string, task Task) (<-chan Outcome, error) {
	c := &call{
		id:      fmt.Sprintf("%s/%s/%d", worldID, agentID, time.Now().UnixNano()),
		agentID: agentID,
		worldID: worldID,
		task:    task,
		out:     make(chan Outcome, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if len(q.pending) >= MaxQueueSize {
		q.mu.Unlock()
		slog.Warn("LLM queue full, rejecting call",
			"agent_id", agentID, "world_id", worldID, "max", MaxQueueSize)
		return nil, ErrQueueFull
	}
	q.pending = append(q.pending, c)
	depth := len(q.pending)
	q.mu.Unlock()
	metrics.QueueDepth.Set(float64(depth))

	slog.Debug("LLM call enqueued",
		"call_id", c.id, "agent_id", agentID, "world_id", worldID, "depth", depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return c.out, nil
}

// Clear rejects every pending call with ErrQueueCleared and returns how many
// were removed. The in-flight call, if any, is left to finish.
func (q *Queue) Clear() int {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	q.mu.Unlock()
	metrics.QueueDepth.Set(0)

	for _, c := range cleared {
		c.settle(Outcome{Err: fmt.Errorf("%w: call %s", ErrQueueCleared, c.id)})
	}
	if len(cleared) > 0 {
		slog.Info("LLM queue cleared", "rejected", len(cleared))
	}
	return len(cleared)
}

// Status returns a snapshot of queue depth and the head call's owner.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Status{
		Length:       len(q.pending),
		Processing:   q.processing,
		MaxQueueSize: MaxQueueSize,
	}
	if len(q.pending) > 0 {
		st.NextAgent = q.pending[0].agentID
		st.NextWorld = q.pending[0].worldID
	}
	return st
}

// Close stops the worker, rejects all pending calls and waits for the
// in-flight call to settle. Safe to call more than once.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.stopCh)
	})
	q.wg.Wait()
	q.Clear()
}

// run is the single worker loop: pop the head call, execute it under the
// warning and hard timers, settle, repeat.
func (q *Queue) run() {
	defer q.wg.Done()
	slog.Debug("LLM queue worker started", "timeout", q.timeout)

	for {
		c := q.pop()
		if c == nil {
			select {
			case <-q.wake:
				continue
			case <-q.stopCh:
				slog.Debug("LLM queue worker stopping")
				return
			}
		}
		q.execute(c)

		select {
		case <-q.stopCh:
			slog.Debug("LLM queue worker stopping")
			return
		default:
		}
	}
}

func (q *Queue) pop() *call {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	c := q.pending[0]
	q.pending = q.pending[1:]
	q.processing = true
	q.current = c
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return c
}

// execute runs one call. Both timers are stopped before returning — leaked
// timers would keep the process alive after shutdown.
func (q *Queue) execute(c *call) {
	start := time.Now()
	log := slog.With("call_id", c.id, "agent_id", c.agentID, "world_id", c.worldID)
	log.Debug("LLM call started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		v, err := c.task(ctx)
		done <- Outcome{Value: v, Err: err}
	}()

	warnTimer := time.NewTimer(q.timeout / 2)
	hardTimer := time.NewTimer(q.timeout)
	defer warnTimer.Stop()
	defer hardTimer.Stop()

	var out Outcome
settled:
	for {
		select {
		case out = <-done:
			break settled
		case <-warnTimer.C:
			log.Warn("LLM call running long",
				"elapsed_ms", time.Since(start).Milliseconds(),
				"timeout", q.timeout)
		case <-hardTimer.C:
			cancel()
			out = Outcome{Err: fmt.Errorf("%w after %v", ErrTimeout, q.timeout)}
			break settled
		case <-q.stopCh:
			cancel()
			out = Outcome{Err: fmt.Errorf("%w: shutting down", ErrQueueCleared)}
			break settled
		}
	}

	q.mu.Lock()
	q.processing = false
	q.current = nil
	q.mu.Unlock()

	c.settle(out)
	if out.Err != nil {
		log.Warn("LLM call failed",
			"duration_ms", time.Since(start).Milliseconds(), "error", out.Err)
		return
	}
	log.Debug("LLM call finished", "duration_ms", time.Since(start).Milliseconds())
}
