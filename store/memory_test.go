package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	assert.Nil(t, s.Usage(ctx))

	require.NoError(t, s.Record(ctx, "pd__list_incidents"))
	require.NoError(t, s.Record(ctx, "pd__list_incidents"))
	require.NoError(t, s.Record(ctx, "gh__create_issue"))

	usage := s.Usage(ctx)
	require.Len(t, usage, 2)
	assert.Equal(t, int64(2), usage["pd__list_incidents"].Count)
	assert.Equal(t, int64(1), usage["gh__create_issue"].Count)
	assert.WithinDuration(t, time.Now(), usage["pd__list_incidents"].LastUsed, time.Minute)

	// Usage returns a snapshot, not the live map
	usage["pd__list_incidents"] = ToolUsage{Count: 100}
	assert.Equal(t, int64(2), s.Usage(ctx)["pd__list_incidents"].Count)
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = s.Record(ctx, "srv__tool")
				_ = s.Usage(ctx)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), s.Usage(ctx)["srv__tool"].Count)
}
