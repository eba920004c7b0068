// Package metrics defines the Prometheus collectors the runtime exposes at
// /metrics. All collectors register on the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMCalls counts provider calls by provider and outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentworld",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "LLM provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// LLMCallDuration observes provider call latency.
	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentworld",
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "LLM provider call latency.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider"})

	// QueueDepth tracks pending calls in the global LLM queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentworld",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Pending calls in the LLM queue.",
	})

	// ToolCalls counts MCP tool executions by server and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentworld",
		Subsystem: "mcp",
		Name:      "tool_calls_total",
		Help:      "MCP tool executions by server and outcome.",
	}, []string{"server", "outcome"})

	// Reconnects counts MCP server reconnection attempts.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentworld",
		Subsystem: "mcp",
		Name:      "reconnects_total",
		Help:      "MCP server reconnection attempts by outcome.",
	}, []string{"server", "outcome"})

	// ActiveServers tracks running MCP server instances.
	ActiveServers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentworld",
		Subsystem: "mcp",
		Name:      "active_servers",
		Help:      "MCP server instances in the running state.",
	})

	// MessagesPublished counts messages published onto world buses.
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentworld",
		Subsystem: "world",
		Name:      "messages_total",
		Help:      "Messages published by sender kind.",
	}, []string{"sender_kind"})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)
