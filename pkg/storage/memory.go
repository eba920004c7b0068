package storage

import (
	"sort"

	"github.com/agent-world/agentworld/pkg/models"
)

// EnsureMessageIDs backfills missing message ids in place and returns how
// many it assigned. Messages that already carry an id are left untouched, so
// repeated calls assign nothing new.
func EnsureMessageIDs(msgs []models.AgentMessage) int {
	filled := 0
	for i := range msgs {
		if msgs[i].MessageID == "" {
			msgs[i].MessageID = models.NewMessageID()
			filled++
		}
	}
	return filled
}

// FilterByChat returns the subset of msgs belonging to chatID, preserving
// order.
func FilterByChat(msgs []models.AgentMessage, chatID string) []models.AgentMessage {
	var out []models.AgentMessage
	for _, m := range msgs {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// MergeTranscript merges per-agent message slices into a single chat
// transcript: sorted by creation time (stable, so same-timestamp messages
// keep their per-agent insertion order) and de-duplicated by message id,
// keeping the first occurrence. Backends share this so the transcript shape
// is identical regardless of where the rows came from.
func MergeTranscript(perAgent ...[]models.AgentMessage) []models.AgentMessage {
	var all []models.AgentMessage
	for _, msgs := range perAgent {
		all = append(all, msgs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	seen := make(map[string]struct{}, len(all))
	out := all[:0]
	for _, m := range all {
		if m.MessageID != "" {
			if _, dup := seen[m.MessageID]; dup {
				continue
			}
			seen[m.MessageID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}
