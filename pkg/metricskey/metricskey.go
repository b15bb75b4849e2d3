package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsAssistantRounds is base for counter metric for tool rounds executed by the loop
	StatsAssistantRounds = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_assistant_rounds",
		Help:         "stats_assistant_rounds provides total tool rounds executed by assistants",
		RequiredTags: []string{"agent"},
	}

	StatsAssistantRunsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_assistant_runs_succeeded",
		Help:         "stats_assistant_runs_succeeded provides total assistant runs that reached DONE",
		RequiredTags: []string{"agent"},
	}

	StatsAssistantRunsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_assistant_runs_failed",
		Help:         "stats_assistant_runs_failed provides total assistant runs that reached FAILED",
		RequiredTags: []string{"agent", "reason"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
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
		RequiredTags: []string{"tool", "kind"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolEventsEmitted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_events_emitted",
		Help:         "stats_tool_events_emitted provides total events emitted by tools on the context channel",
		RequiredTags: []string{"tool", "level"},
	}

	StatsToolSamples = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_samples",
		Help:         "stats_tool_samples provides total model completions requested by tools",
		RequiredTags: []string{"tool"},
	}

	StatsResourceReadsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_resource_reads_failed",
		Help:         "stats_resource_reads_failed provides total resource reads failed",
		RequiredTags: []string{"resource"},
	}
)

// Perf
var (
	PerfAssistantRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_assistant_run",
		Help:         "perf_assistant_run provides duration of assistant run",
		RequiredTags: []string{"agent"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of completion service call",
		RequiredTags: []string{"agent", "model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfResourceRead = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_resource_read",
		Help:         "perf_resource_read provides duration of resource read",
		RequiredTags: []string{"resource"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAssistantRun,
	&PerfLLMCall,
	&PerfResourceRead,
	&PerfToolCall,
	&StatsAssistantRounds,
	&StatsAssistantRunsFailed,
	&StatsAssistantRunsSucceeded,
	&StatsLLMInputTokens,
	&StatsLLMOutputTokens,
	&StatsResourceReadsFailed,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsToolEventsEmitted,
	&StatsToolSamples,
}
