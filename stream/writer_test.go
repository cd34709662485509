package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/effective-security/agentrun/pkg/llms"
)

func TestWriterFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Send(Session("sess-1")))
	require.NoError(t, w.Send(Status(StatusThinking)))
	require.NoError(t, w.Send(Text("Hello")))
	require.NoError(t, w.Heartbeat())
	require.NoError(t, w.Send(Tool("pd__list_incidents", "running", "status=open", nil)))
	require.NoError(t, w.Send(ToolResult("pd__list_incidents", true, `{"count":2}`)))
	require.NoError(t, w.Send(Done("All clear.", 1, 2, llms.TokenUsage{InputTokens: 10, OutputTokens: 5}, []string{"gamma"})))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 7)

	// the heartbeat is a comment line, not a JSON frame
	assert.Equal(t, ": heartbeat", lines[3])

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, EventSession, ev.Type)
	assert.Equal(t, "sess-1", ev.SessionID)

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &ev))
	assert.Equal(t, EventText, ev.Type)
	assert.Equal(t, "Hello", ev.Content)
	// unset fields are omitted from the wire format
	assert.NotContains(t, lines[2], "sessionId")
	assert.NotContains(t, lines[2], "tokenUsage")

	ev = Event{}
	require.NoError(t, json.Unmarshal([]byte(lines[5]), &ev))
	assert.Equal(t, EventToolResult, ev.Type)
	require.NotNil(t, ev.Success)
	assert.True(t, *ev.Success)

	ev = Event{}
	require.NoError(t, json.Unmarshal([]byte(lines[6]), &ev))
	assert.Equal(t, EventDone, ev.Type)
	assert.Equal(t, "All clear.", ev.Response)
	assert.Equal(t, 1, ev.ToolCalls)
	assert.Equal(t, 2, ev.Iterations)
	require.NotNil(t, ev.TokenUsage)
	assert.Equal(t, int64(10), ev.TokenUsage.InputTokens)
	assert.Equal(t, []string{"gamma"}, ev.FailedServers)
}

func TestWriterError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Send(Error("model unavailable")))

	var ev Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "model unavailable", ev.Message)
}

func TestWriterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Send(Text("chunk"))
			_ = w.Heartbeat()
		}()
	}
	wg.Wait()

	// every line is either a complete JSON frame or a comment
	scanner := bufio.NewScanner(&buf)
	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		count++
		if strings.HasPrefix(line, ":") {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "line %q", line)
	}
	assert.Equal(t, 40, count)
}
