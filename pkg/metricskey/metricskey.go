package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsModelRequests is base for counter metric for total requests sent to the backend
	StatsModelRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_requests",
		Help:         "stats_model_requests provides total requests sent to the model backend",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelRetries = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_retries",
		Help:         "stats_model_retries provides total model requests retried after a transient failure",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelFailures = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_failures",
		Help:         "stats_model_failures provides total model requests failed without recovery",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_messages_sent",
		Help:         "stats_model_messages_sent provides total history messages sent to the model backend",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_bytes_sent",
		Help:         "stats_model_bytes_sent provides total content bytes sent to the model backend",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_input_tokens",
		Help:         "stats_model_input_tokens provides total input tokens reported by the model backend",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_output_tokens",
		Help:         "stats_model_output_tokens provides total output tokens reported by the model backend",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_total_tokens",
		Help:         "stats_model_total_tokens provides total tokens reported by the model backend",
		RequiredTags: []string{"provider", "model"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsCancelled = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_cancelled",
		Help:         "stats_tool_calls_cancelled provides total tool calls resolved with a synthetic result",
		RequiredTags: []string{"tool"},
	}

	StatsTurns = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turns",
		Help:         "stats_turns provides total user turns by outcome",
		RequiredTags: []string{"provider", "outcome"},
	}

	StatsStepBudgetExceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_step_budget_exceeded",
		Help:         "stats_step_budget_exceeded provides total user turns terminated by the step budget",
		RequiredTags: []string{"provider"},
	}
)

// Perf
var (
	PerfTurn = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_turn",
		Help:         "perf_turn provides duration of a user turn",
		RequiredTags: []string{"provider"},
	}

	PerfModelRequest = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_model_request",
		Help:         "perf_model_request provides duration of a model backend request",
		RequiredTags: []string{"provider"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfModelRequest,
	&PerfToolCall,
	&PerfTurn,
	&StatsModelBytesSent,
	&StatsModelFailures,
	&StatsModelInputTokens,
	&StatsModelMessagesSent,
	&StatsModelOutputTokens,
	&StatsModelRequests,
	&StatsModelRetries,
	&StatsModelTotalTokens,
	&StatsStepBudgetExceeded,
	&StatsToolCallsCancelled,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsTurns,
}
