package agent

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/effective-security/x/slices"
	"github.com/tidwall/gjson"
)

const paramSummaryLimit = 160

// reduceToolContent bounds a tool payload before it is fed back to the
// model. Valid JSON is compacted first, which often brings pretty-printed
// server output back under the limit without losing data. Payloads still
// over the limit are cut at a rune boundary with an explicit truncation
// marker so the model knows data is missing.
func reduceToolContent(content string, limit int) string {
	if limit <= 0 || len(content) <= limit {
		return content
	}
	if gjson.Valid(content) {
		if ugly := gjson.Get(content, "@ugly").Raw; ugly != "" {
			if len(ugly) <= limit {
				return ugly
			}
			content = ugly
		}
	}
	truncated := content[:limit]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return fmt.Sprintf("%s\n...[truncated %d bytes]", truncated, len(content)-len(truncated))
}

// summarizeParams renders tool arguments as a short deterministic key=value
// line for stream frames and logs.
func summarizeParams(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(slices.StringUpto(fmt.Sprintf("%v", args[k]), 32))
	}
	return slices.StringUpto(sb.String(), paramSummaryLimit)
}
