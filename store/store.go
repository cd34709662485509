package store

import (
	"context"
	"time"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentrun", "store")

// ToolUsage is the usage history of one tool, keyed by qualified name.
type ToolUsage struct {
	Count    int64     `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// UsageStore records and reports tool usage statistics consumed by the
// relevance filter. Absent history is not an error; stores degrade to an
// empty snapshot.
type UsageStore interface {
	// Usage returns a snapshot of usage history by qualified tool name.
	Usage(ctx context.Context) map[string]ToolUsage
	// Record notes one successful invocation of the tool.
	Record(ctx context.Context, qualifiedName string) error
}
