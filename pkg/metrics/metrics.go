// Package metrics provides Prometheus metrics for the agent engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agentarea"

var (
	// WorkflowRuns counts closed workflow runs by workflow name and final status.
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "durable",
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs by final status",
		},
		[]string{"workflow", "status"}, // "completed", "failed"
	)

	// WorkflowsActive tracks runs currently owned by this process.
	WorkflowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "durable",
			Name:      "workflows_active",
			Help:      "Number of workflow runs currently executing",
		},
	)

	// ActivityAttempts counts activity attempts by outcome.
	ActivityAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "durable",
			Name:      "activity_attempts_total",
			Help:      "Total number of activity attempts by outcome",
		},
		[]string{"activity", "outcome"}, // "success", "failure", "timeout", "heartbeat_timeout"
	)

	// ActivityDuration tracks the duration of single activity attempts.
	ActivityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "durable",
			Name:      "activity_duration_seconds",
			Help:      "Activity attempt duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"activity"},
	)

	// LLMCostUSD accumulates reported LLM spend by model.
	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Total LLM cost in USD by model",
		},
		[]string{"model"},
	)

	// LLMTokens accumulates token usage by model and kind.
	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total tokens by model and kind",
		},
		[]string{"model", "kind"}, // "prompt", "completion"
	)

	// ToolCalls counts tool executions by tool and result.
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total number of tool executions by tool and result",
		},
		[]string{"tool", "success"},
	)

	// TriggerExecutions counts recorded trigger executions by status.
	TriggerExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "executions_total",
			Help:      "Total number of trigger executions by status",
		},
		[]string{"status"}, // "success", "failed", "skipped", "timeout"
	)

	// TriggersDisabled counts triggers disabled by the circuit breaker.
	TriggersDisabled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "disabled_total",
			Help:      "Total number of triggers disabled after consecutive failures",
		},
	)

	// WebhooksReceived counts inbound webhook requests by response status.
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "webhooks_received_total",
			Help:      "Total number of webhook requests by HTTP status",
		},
		[]string{"status"},
	)
)
