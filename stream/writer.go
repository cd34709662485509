package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
)

// Sink receives event frames from the agent loop. Implementations must be
// safe for use from multiple goroutines.
type Sink interface {
	Send(ev Event) error
	Heartbeat() error
}

// heartbeatFrame is a comment line that keeps idle connections alive without
// being a JSON frame; clients skip lines starting with ':'.
const heartbeatFrame = ": heartbeat\n"

// Writer serializes events as newline-delimited JSON onto an io.Writer,
// flushing after every frame when the underlying writer supports it.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:   w,
		enc: json.NewEncoder(w),
	}
}

// Send writes one frame followed by a newline.
func (s *Writer) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(ev); err != nil {
		return errors.WithMessage(err, "failed to encode event")
	}
	s.flush()
	return nil
}

// Heartbeat writes a comment frame to keep the connection alive.
func (s *Writer) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, heartbeatFrame); err != nil {
		return errors.WithMessage(err, "failed to write heartbeat")
	}
	s.flush()
	return nil
}

func (s *Writer) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

var _ Sink = (*Writer)(nil)
