package models

import "strings"

// Role is a message role in the provider-neutral conversation format.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsValid checks if the role is one of the four known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Provider identifies an LLM provider family.
type Provider string

const (
	// ProviderOpenAI is the OpenAI API.
	ProviderOpenAI Provider = "openai"
	// ProviderAzure is Azure-hosted OpenAI.
	ProviderAzure Provider = "azure"
	// ProviderOpenAICompatible is any endpoint speaking the OpenAI wire
	// protocol at a custom base URL.
	ProviderOpenAICompatible Provider = "openai-compatible"
	// ProviderXAI is the xAI Grok API (OpenAI-compatible).
	ProviderXAI Provider = "xai"
	// ProviderOllama is a local Ollama daemon (OpenAI-compatible).
	ProviderOllama Provider = "ollama"
	// ProviderAnthropic is the Anthropic Claude API.
	ProviderAnthropic Provider = "anthropic"
	// ProviderGoogle is the Google Gemini API.
	ProviderGoogle Provider = "google"
)

// IsValid checks if the provider is supported.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderAzure, ProviderOpenAICompatible,
		ProviderXAI, ProviderOllama, ProviderAnthropic, ProviderGoogle:
		return true
	default:
		return false
	}
}

// OpenAICompatible reports whether the provider speaks the OpenAI chat
// completions protocol.
func (p Provider) OpenAICompatible() bool {
	switch p {
	case ProviderOpenAI, ProviderAzure, ProviderOpenAICompatible, ProviderXAI, ProviderOllama:
		return true
	default:
		return false
	}
}

// AgentStatus describes an agent's lifecycle state.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
	AgentStatusError    AgentStatus = "error"
)

// SenderKind classifies who produced a message.
type SenderKind string

const (
	SenderHuman  SenderKind = "human"
	SenderAgent  SenderKind = "agent"
	SenderSystem SenderKind = "system"
)

// SenderKindOf classifies a sender string. "human", "user" and "HUMAN" count
// as human; "system" and "world" as system; everything else is treated as an
// agent id.
func SenderKindOf(sender string) SenderKind {
	switch strings.ToLower(sender) {
	case "human", "user":
		return SenderHuman
	case "system", "world":
		return SenderSystem
	default:
		return SenderAgent
	}
}
