package router

import (
	"strings"

	"github.com/effective-security/agentrun/pkg/llms"
)

// Complexity scoring: a weighted sum over independent factors, each capped
// before weighting so no single factor can saturate the score. The final
// score is clamped to [0,100].

var technicalKeywords = []string{
	"kubernetes", "docker", "deployment", "architecture", "database", "schema",
	"migration", "protocol", "concurrency", "distributed", "infra", "terraform",
	"tls", "certificate", "encryption", "authentication",
}

var reasoningKeywords = []string{
	"step by step", "first", "then", "compare", "trade-off", "tradeoff",
	"analyze", "analyse", "explain why", "root cause", "investigate", "plan",
	"strategy", "multi-step",
}

var dataAnalysisKeywords = []string{
	"aggregate", "average", "median", "percentile", "correlate", "trend",
	"forecast", "statistics", "dataset", "breakdown", "sum", "group by",
}

var codegenKeywords = []string{
	"write a function", "implement", "refactor", "generate code", "script",
	"unit test", "fix the bug", "code review", "snippet", "regex", "sql query",
}

var toolKeywords = []string{
	"search", "fetch", "look up", "lookup", "create a ticket", "file a ticket",
	"list the", "check the", "pull the", "query the",
}

// factor caps and weights
const (
	lengthCap       = 20
	technicalCap    = 15
	reasoningCap    = 18
	dataCap         = 12
	codegenCap      = 15
	conversationCap = 10
	toolFactorCap   = 10
)

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// scoreComplexity estimates how demanding a query is on a 0-100 scale.
func scoreComplexity(message string, history []llms.Message, enabledTools int) int {
	text := strings.ToLower(message)

	score := 0
	score += min(len(message)/25, lengthCap)
	score += min(countMatches(text, technicalKeywords)*5, technicalCap)
	score += min(countMatches(text, reasoningKeywords)*6, reasoningCap)
	score += min(countMatches(text, dataAnalysisKeywords)*4, dataCap)
	score += min(countMatches(text, codegenKeywords)*5, codegenCap)
	score += min(len(history), conversationCap)

	toolFactor := countMatches(text, toolKeywords)*3 + min(enabledTools, 4)
	score += min(toolFactor, toolFactorCap)

	return max(0, min(score, 100))
}

// hasCodegenIntent reports whether the message matches code-generation keywords.
func hasCodegenIntent(message string) bool {
	return countMatches(strings.ToLower(message), codegenKeywords) > 0
}
