package queue

import "errors"

var (
	// ErrQueueFull is returned by Add when the queue already holds
	// MaxQueueSize pending calls. The call is rejected before any work
	// starts.
	ErrQueueFull = errors.New("llm queue full")

	// ErrQueueCleared rejects pending calls removed by Clear.
	ErrQueueCleared = errors.New("llm queue cleared")

	// ErrTimeout is returned when a call exceeds the processing timeout.
	ErrTimeout = errors.New("llm call timed out")

	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("llm queue closed")
)
