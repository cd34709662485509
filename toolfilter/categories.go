package toolfilter

import (
	"sort"
	"strings"

	"github.com/effective-security/agentrun/mcpconn"
)

// Topic categories used for query and tool classification.
const (
	CategoryIncident   = "incident"
	CategoryLogs       = "logs"
	CategoryMetrics    = "metrics"
	CategoryRepository = "repository"
	CategoryIssues     = "issues"
	CategorySearch     = "search"
	CategoryData       = "data"
	CategoryUtility    = "utility"
)

// categoryKeywords maps each topic category to the keywords that signal it
// in a user query or a tool name/description.
var categoryKeywords = map[string][]string{
	CategoryIncident: {
		"incident", "outage", "on-call", "oncall", "alert", "page", "pager",
		"escalation", "postmortem", "sev1", "sev2", "severity",
	},
	CategoryLogs: {
		"log", "logs", "logging", "trace", "traces", "stacktrace", "stack trace",
		"exception", "error message", "tail",
	},
	CategoryMetrics: {
		"metric", "metrics", "latency", "throughput", "cpu", "memory", "usage",
		"dashboard", "monitor", "monitoring", "p99", "p95", "saturation",
	},
	CategoryRepository: {
		"repo", "repository", "commit", "branch", "merge", "pull request",
		"pr ", "diff", "code review", "git",
	},
	CategoryIssues: {
		"ticket", "issue", "jira", "backlog", "sprint", "epic", "story",
		"bug report", "task",
	},
	CategorySearch: {
		"search", "find", "look up", "lookup", "query", "list", "fetch", "get",
	},
	CategoryData: {
		"report", "analytics", "chart", "table", "dataset", "sql", "aggregate",
		"count", "sum", "trend",
	},
}

// DetectCategories matches a query string against each category's keyword
// set and returns the detected categories in a deterministic order.
func DetectCategories(query string) []string {
	q := strings.ToLower(query)
	if q == "" {
		return nil
	}

	var detected []string
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(q, kw) {
				detected = append(detected, category)
				break
			}
		}
	}
	sort.Strings(detected)
	return detected
}

// CategorizeTool returns the tool's categories: the owning server's declared
// categories plus pattern matches against the tool's own name and
// description. A tool with no matches defaults to the utility category.
func CategorizeTool(d mcpconn.ToolDescriptor) []string {
	seen := make(map[string]bool, len(d.Categories)+2)
	var categories []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}

	for _, c := range d.Categories {
		add(c)
	}

	text := strings.ToLower(d.Name + " " + d.Description)
	var matched []string
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, category)
				break
			}
		}
	}
	sort.Strings(matched)
	for _, c := range matched {
		add(c)
	}

	if len(categories) == 0 {
		add(CategoryUtility)
	}
	return categories
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
