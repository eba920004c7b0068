package world

import (
	"context"
	"sync"
)

// ProcessControl tracks cancel functions for in-flight agent processing runs,
// keyed by worldID/chatID. The message editor uses it to abort processing for
// a chat before rewriting its history.
type ProcessControl struct {
	mu      sync.Mutex
	entries map[string]*controlEntry
}

type controlEntry struct {
	cancel context.CancelFunc
}

func NewProcessControl() *ProcessControl {
	return &ProcessControl{entries: make(map[string]*controlEntry)}
}

func controlKey(worldID, chatID string) string {
	return worldID + "/" + chatID
}

// Begin derives a cancellable context for a processing run and registers its
// cancel func. An earlier run on the same key is cancelled first. The
// returned done func deregisters and cancels; call it when the run settles.
func (pc *ProcessControl) Begin(ctx context.Context, worldID, chatID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	key := controlKey(worldID, chatID)
	entry := &controlEntry{cancel: cancel}

	pc.mu.Lock()
	if old, ok := pc.entries[key]; ok {
		old.cancel()
	}
	pc.entries[key] = entry
	pc.mu.Unlock()

	done := func() {
		pc.mu.Lock()
		if pc.entries[key] == entry {
			delete(pc.entries, key)
		}
		pc.mu.Unlock()
		cancel()
	}
	return ctx, done
}

// Stop cancels the active run for (worldID, chatID), if any, and reports
// whether one was found.
func (pc *ProcessControl) Stop(worldID, chatID string) bool {
	key := controlKey(worldID, chatID)

	pc.mu.Lock()
	entry, ok := pc.entries[key]
	if ok {
		delete(pc.entries, key)
	}
	pc.mu.Unlock()

	if ok {
		entry.cancel()
	}
	return ok
}

// Active reports whether a run is registered for (worldID, chatID).
func (pc *ProcessControl) Active(worldID, chatID string) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, ok := pc.entries[controlKey(worldID, chatID)]
	return ok
}
