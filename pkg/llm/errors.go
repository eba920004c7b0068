package llm

import (
	"errors"
	"fmt"

	"github.com/agent-world/agentworld/pkg/models"
)

// ErrUnsupportedProvider is returned by ClientFor when the provider falls
// outside the known partition.
var ErrUnsupportedProvider = errors.New("unsupported llm provider")

// ProviderError wraps a failure from a provider client with the provider
// identity and, when the SDK exposes one, the HTTP status code.
type ProviderError struct {
	Provider   models.Provider
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
