package world

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the world runtime.
var (
	ErrWorldNotFound = errors.New("world not found")
	ErrAgentNotFound = errors.New("agent not found")
	ErrChatNotFound  = errors.New("chat not found")

	// ErrWorldProcessing rejects entity mutation while an agent is
	// processing in the world.
	ErrWorldProcessing = errors.New("world is processing")

	ErrDuplicate = errors.New("already exists")
)

// NotFoundError carries the kind and the resolved reference of a failed
// lookup. Unwraps to the matching sentinel.
type NotFoundError struct {
	Kind string // "world", "agent" or "chat"
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "agent":
		return ErrAgentNotFound
	case "chat":
		return ErrChatNotFound
	default:
		return ErrWorldNotFound
	}
}

// DuplicateError reports a create colliding with an existing entity.
type DuplicateError struct {
	Kind string
	ID   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }
