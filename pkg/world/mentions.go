package world

import (
	"strings"

	"github.com/agent-world/agentworld/pkg/models"
)

// Mentions is the result of scanning a message for @-mentions.
type Mentions struct {
	// All holds every mentioned token in order of first occurrence,
	// normalized with KebabCase.
	All []string

	// ParagraphStart holds the subset whose mention begins a paragraph.
	ParagraphStart []string
}

// Has reports whether token (normalized) was mentioned.
func (m Mentions) Has(token string) bool {
	norm := models.KebabCase(token)
	for _, t := range m.All {
		if t == norm {
			return true
		}
	}
	return false
}

// ExtractMentions scans content for tokens of the form @agent-id-or-name.
// Duplicates keep their first occurrence. A mention "begins a paragraph" when
// only whitespace precedes it on its line and the line follows a blank line
// or starts the message.
func ExtractMentions(content string) Mentions {
	var out Mentions
	seen := make(map[string]struct{})
	seenPara := make(map[string]struct{})

	paragraphStart := true
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			paragraphStart = true
			continue
		}

		atLineStart := true
		fields := strings.Fields(trimmed)
		for _, field := range fields {
			token, ok := mentionToken(field)
			if ok {
				if _, dup := seen[token]; !dup {
					seen[token] = struct{}{}
					out.All = append(out.All, token)
				}
				if paragraphStart && atLineStart {
					if _, dup := seenPara[token]; !dup {
						seenPara[token] = struct{}{}
						out.ParagraphStart = append(out.ParagraphStart, token)
					}
				}
			}
			atLineStart = false
		}
		paragraphStart = false
	}
	return out
}

// mentionToken extracts the normalized mention from one whitespace-delimited
// field, trimming trailing punctuation ("@bob," mentions bob).
func mentionToken(field string) (string, bool) {
	if !strings.HasPrefix(field, "@") || len(field) < 2 {
		return "", false
	}
	raw := strings.TrimRight(field[1:], ".,;:!?")
	norm := models.KebabCase(raw)
	if norm == "" {
		return "", false
	}
	return norm, true
}

// MentionTargets reports whether the mentions target the given agent, by id
// or name (both normalized).
func MentionTargets(m Mentions, agent *models.Agent) bool {
	return m.Has(agent.ID) || m.Has(agent.Name)
}

// StripSelfMentions removes the agent's own @-mentions from its reply so an
// agent does not appear to address itself.
func StripSelfMentions(content string, agent *models.Agent) string {
	fields := strings.Fields(content)
	kept := make([]string, 0, len(fields))
	for _, field := range fields {
		if token, ok := mentionToken(field); ok {
			if token == models.KebabCase(agent.ID) || token == models.KebabCase(agent.Name) {
				continue
			}
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}

// AutoMentionBack prepends a mention of the sender to a reply directed at
// another agent, unless the reply already mentions them. Replies to humans
// are left alone.
func AutoMentionBack(content, sender string) string {
	if models.SenderKindOf(sender) != models.SenderAgent {
		return content
	}
	if ExtractMentions(content).Has(sender) {
		return content
	}
	return "@" + sender + " " + content
}
