package models

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MessageIDLength is the length of generated message id tokens.
const MessageIDLength = 10

// NewMessageID returns a fresh 10-character message id token.
func NewMessageID() string {
	return gonanoid.Must(MessageIDLength)
}

// NewChatID returns a unique, time-ordered chat id (UUIDv7).
func NewChatID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewCallID returns an id for correlating a tool/LLM call across log lines.
func NewCallID() string {
	return uuid.NewString()
}

// KebabCase normalizes an identifier or display name: lowercase, runs of
// whitespace/underscores/dots become a single hyphen, all other punctuation is
// dropped, leading/trailing hyphens trimmed. It deliberately does not split
// camelCase — "MyWorld" normalizes to "myworld", matching how stored names
// round-trip through identifier resolution.
func KebabCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '_' || r == '.' || r == '-':
			pendingHyphen = true
		default:
			// other punctuation dropped entirely
		}
	}
	return b.String()
}
