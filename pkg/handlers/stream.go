package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/askdb/askdb-engine/pkg/llm"
)

// Stream event types, one JSON object per line.
const (
	streamProgress = "progress"
	streamResult   = "result"
	streamError    = "error"
)

type streamEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// ndjsonStream writes newline-delimited JSON events and flushes after each one.
// It doubles as the ProgressObserver for the request it serves.
type ndjsonStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
	err     error
}

func newNDJSONStream(w http.ResponseWriter) *ndjsonStream {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &ndjsonStream{w: w, enc: json.NewEncoder(w), flusher: flusher}
}

// send writes one event. After the first write failure (client gone) later
// events are dropped.
func (s *ndjsonStream) send(ev streamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := s.enc.Encode(ev); err != nil {
		s.err = err
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *ndjsonStream) progress(message string) {
	s.send(streamEvent{Type: streamProgress, Message: message})
}

func (s *ndjsonStream) result(data any) {
	s.send(streamEvent{Type: streamResult, Data: data})
}

func (s *ndjsonStream) fail(apiErr apiError) {
	s.send(streamEvent{Type: streamError, Error: apiErr.Code, Message: apiErr.Message, Status: apiErr.Status})
}

// OnProgress implements llm.ProgressObserver.
func (s *ndjsonStream) OnProgress(_ context.Context, ev llm.ProgressEvent) {
	s.send(streamEvent{Type: streamProgress, Message: ev.Message, Stage: string(ev.Stage)})
}

var _ llm.ProgressObserver = (*ndjsonStream)(nil)
