package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/benithors/domhaul/internal/search"
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	log     *slog.Logger
	broken  bool
}

// newSSE writes the event-stream headers. It answers 500 and returns false
// when the connection cannot stream.
func newSSE(w http.ResponseWriter, log *slog.Logger) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher, log: log}, true
}

// send writes one event frame. After the first write error further events
// are dropped; the request context is cancelled by then anyway.
func (s *sseWriter) send(ev search.Event) {
	if s.broken {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		s.broken = true
		s.log.Debug("client went away", "error", err)
		return
	}
	s.flusher.Flush()
}
