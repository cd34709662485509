package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
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

	StatsLLMCacheReadTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_cache_read_tokens",
		Help:         "stats_llm_cache_read_tokens provides total tokens read from the prompt cache",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMCacheWriteTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_cache_write_tokens",
		Help:         "stats_llm_cache_write_tokens provides total tokens written to the prompt cache",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLoopIterations = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_loop_iterations",
		Help:         "stats_loop_iterations provides total agent loop iterations",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLoopCapped = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_loop_capped",
		Help:         "stats_loop_capped provides total agent loops terminated by the iteration ceiling",
		RequiredTags: []string{"agent"},
	}

	StatsLoopsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_loops_succeeded",
		Help:         "stats_loops_succeeded provides total agent loops completed",
		RequiredTags: []string{"agent"},
	}

	StatsLoopsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_loops_failed",
		Help:         "stats_loops_failed provides total agent loops failed",
		RequiredTags: []string{"agent"},
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

	StatsServerConnected = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_connected",
		Help:         "stats_server_connected provides total successful tool server connections",
		RequiredTags: []string{"server"},
	}

	StatsServerConnectFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_connect_failed",
		Help:         "stats_server_connect_failed provides total failed tool server connections",
		RequiredTags: []string{"server"},
	}

	StatsFilterToolsLoaded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_filter_tools_loaded",
		Help:         "stats_filter_tools_loaded provides total tools selected by the relevance filter",
		RequiredTags: []string{"agent"},
	}

	StatsFilterTokensSaved = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_filter_tokens_saved",
		Help:         "stats_filter_tokens_saved provides estimated schema tokens saved by the relevance filter",
		RequiredTags: []string{"agent"},
	}

	StatsRouterDecisions = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_router_decisions",
		Help:         "stats_router_decisions provides total routing decisions by tier",
		RequiredTags: []string{"tier", "rule"},
	}
)

// Perf
var (
	PerfModelCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_model_call",
		Help:         "perf_model_call provides duration of model call",
		RequiredTags: []string{"model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfLoopRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_loop_run",
		Help:         "perf_loop_run provides duration of one agent loop run",
		RequiredTags: []string{"agent"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfLoopRun,
	&PerfModelCall,
	&PerfToolCall,
	&StatsFilterTokensSaved,
	&StatsFilterToolsLoaded,
	&StatsLLMCacheReadTokens,
	&StatsLLMCacheWriteTokens,
	&StatsLLMInputTokens,
	&StatsLLMOutputTokens,
	&StatsLoopCapped,
	&StatsLoopIterations,
	&StatsLoopsFailed,
	&StatsLoopsSucceeded,
	&StatsRouterDecisions,
	&StatsServerConnectFailed,
	&StatsServerConnected,
	&StatsToolCallsFailed,
	&StatsToolCallsSucceeded,
}
