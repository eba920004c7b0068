package storage

import "errors"

var (
	// ErrNotFound is returned when a world, agent, chat or snapshot does not
	// exist. Callers wrap it into their own typed errors.
	ErrNotFound = errors.New("storage: not found")

	// ErrUnavailable is returned by a backend whose initialization failed.
	// Construction defers the failure so the runtime can start and surface
	// the problem on first use.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: closed")
)
