package mcp

import (
	"context"
	"fmt"
)

// Ping probes a registered server and records the result. Used by the health
// endpoint; successful tool calls also refresh LastHealthCheck.
func (r *Registry) Ping(ctx context.Context, serverID string) error {
	r.mu.Lock()
	inst, ok := r.servers[serverID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("server %q not registered", serverID)
	}
	client := inst.client
	r.mu.Unlock()

	if client == nil {
		return fmt.Errorf("server %q is not running", serverID)
	}
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("ping %q: %w", serverID, err)
	}
	r.touchHealth(serverID)
	return nil
}
