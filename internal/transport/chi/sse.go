package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// streamMeta is the first event on a streaming response, carrying run
// metadata before any content arrives.
type streamMeta struct {
	RunID       string          `json:"run_id"`
	Query       json.RawMessage `json:"query"`
	ResultsUsed int             `json:"results_used"`
	Truncated   bool            `json:"truncated"`
}

type streamChunk struct {
	Content string `json:"content"`
}

type streamFailure struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// sseWriter emits server-sent events, flushing after every event so chunks
// reach the client as they arrive.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, f: f}, nil
}

// event writes a named event with a JSON payload.
func (s *sseWriter) event(name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	s.f.Flush()
	return nil
}

// data writes an unnamed data event with a JSON payload.
func (s *sseWriter) data(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.f.Flush()
	return nil
}

// done writes the terminal sentinel.
func (s *sseWriter) done() {
	_, _ = fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.f.Flush()
}
