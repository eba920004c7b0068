package models

import "time"

// Agent is an LLM-backed participant within a world.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Provider     Provider `json:"provider"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty"`

	// AutoReply controls whether this agent answers messages from other
	// agents when no mention restricts the audience. Defaults to true.
	AutoReply bool `json:"autoReply"`

	Status AgentStatus `json:"status,omitempty"`

	// LLMCallCount is the number of LLM invocations since the last memory
	// clear. Summed across all agents of a world against the turn limit.
	LLMCallCount int       `json:"llmCallCount"`
	LastActive   time.Time `json:"lastActive,omitempty"`
	LastLLMCall  time.Time `json:"lastLLMCall,omitempty"`

	// Memory holds the agent's per-chat conversation history. Persisted
	// separately from the agent configuration; never serialized with it.
	Memory []AgentMessage `json:"-"`
}

// CreateAgentParams carries the caller-supplied fields for agent creation.
// ID is derived from Name unless set explicitly. AutoReply defaults to true
// when nil.
type CreateAgentParams struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Provider     Provider `json:"provider"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty"`
	AutoReply    *bool    `json:"autoReply,omitempty"`
}

// UpdateAgentParams carries partial agent updates. Nil fields are unchanged.
type UpdateAgentParams struct {
	Name         *string      `json:"name,omitempty"`
	Type         *string      `json:"type,omitempty"`
	Provider     *Provider    `json:"provider,omitempty"`
	Model        *string      `json:"model,omitempty"`
	SystemPrompt *string      `json:"systemPrompt,omitempty"`
	Temperature  *float64     `json:"temperature,omitempty"`
	MaxTokens    *int         `json:"maxTokens,omitempty"`
	AutoReply    *bool        `json:"autoReply,omitempty"`
	Status       *AgentStatus `json:"status,omitempty"`
}

// Apply copies the set fields of p onto a.
func (p UpdateAgentParams) Apply(a *Agent) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Provider != nil {
		a.Provider = *p.Provider
	}
	if p.Model != nil {
		a.Model = *p.Model
	}
	if p.SystemPrompt != nil {
		a.SystemPrompt = *p.SystemPrompt
	}
	if p.Temperature != nil {
		a.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		a.MaxTokens = *p.MaxTokens
	}
	if p.AutoReply != nil {
		a.AutoReply = *p.AutoReply
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
}

// AgentMessage is the persisted memory record. The json field names are the
// storage wire format; role/content/tool_calls/tool_call_id form the
// provider-neutral subset sent to LLM clients.
type AgentMessage struct {
	MessageID  string     `json:"messageId"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Sender     string     `json:"sender,omitempty"`
	AgentID    string     `json:"agentId,omitempty"`
	ChatID     string     `json:"chatId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a provider-neutral tool invocation request. Arguments is the
// decoded JSON object the model produced.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
