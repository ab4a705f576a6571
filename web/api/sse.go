package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// handleGlobalEvents streams every execution's events over SSE
func (s *Server) handleGlobalEvents(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.bus.SubscribeAll()
	defer cancel()
	s.streamSSE(w, r, ch)
}

// handleExecutionEvents streams one execution's events over SSE
func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.bus.Subscribe(chi.URLParam(r, "executionID"))
	defer cancel()
	s.streamSSE(w, r, ch)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, ch <-chan domain.BatchEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", event.EventType)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
