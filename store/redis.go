package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the UsageStore interface using Redis as the
// backend. Usage records are kept in a single hash so the filter can fetch
// the whole snapshot in one round trip. The keys namespace is organized as:
// - `/<prefix>/toolusage` hash of qualified tool name -> ToolUsage JSON

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a usage store backed by the given Redis client.
func NewRedisStore(client *redis.Client, prefix string) UsageStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) usageKey() string {
	return path.Join(m.prefix, "toolusage")
}

func (m *redisStore) Usage(ctx context.Context) map[string]ToolUsage {
	data, err := m.client.HGetAll(ctx, m.usageKey()).Result()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "HGetAll", "err", err.Error())
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	usage := make(map[string]ToolUsage, len(data))
	for name, item := range data {
		var u ToolUsage
		if err := json.Unmarshal([]byte(item), &u); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal usage", "tool", name, "err", err.Error())
			continue
		}
		usage[name] = u
	}
	return usage
}

func (m *redisStore) Record(ctx context.Context, qualifiedName string) error {
	key := m.usageKey()

	// Read-modify-write is acceptable here: usage weights are advisory and
	// a lost increment never affects correctness.
	var usage ToolUsage
	data, err := m.client.HGet(ctx, key, qualifiedName).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "failed to get usage record")
	}
	if data != "" {
		_ = json.Unmarshal([]byte(data), &usage)
	}
	usage.Count++
	usage.LastUsed = time.Now()

	js, err := json.Marshal(usage)
	if err != nil {
		return errors.Wrap(err, "failed to marshal usage record")
	}
	if err := m.client.HSet(ctx, key, qualifiedName, string(js)).Err(); err != nil {
		return errors.Wrap(err, "failed to set usage record")
	}
	return nil
}
