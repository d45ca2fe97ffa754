package api

import (
	"fmt"
	"net/http"
	"time"
)

// handleStreamEvents streams an engine's reset state transitions as SSE.
// The stream stays open until the client disconnects; an engine can be
// reset any number of times and every transition is forwarded.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := s.engineID(r)
	if id < 0 {
		s.writeError(w, http.StatusNotFound, "engine not found")
		return
	}
	eng := s.ctrl.Engines()[id]

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	ch, unsub := s.broker.Subscribe(eng.Name)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case state, ok := <-ch:
			if !ok {
				// Broker shut down with the server.
				_ = writeSSEEvent(w, "done", "stream closed")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEData(w, state); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSEData writes one SSE data event.
func writeSSEData(w http.ResponseWriter, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
