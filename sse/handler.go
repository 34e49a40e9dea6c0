package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/tilekit/logger"
)

// ConnectedEvent is the first event sent on a new connection.
type ConnectedEvent struct {
	ClientID string `json:"client_id"`
	RunID    string `json:"run_id,omitempty"`
}

// ServeProgress streams run progress to one HTTP client until it
// disconnects or the hub shuts down.
func ServeProgress(hub *Hub, w http.ResponseWriter, r *http.Request, clientID, runID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE connections outlive the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Get("sse").Warn("Could not disable write deadline", map[string]interface{}{
			"client_id": clientID,
			"error":     err.Error(),
		})
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := NewClient(clientID, runID)
	hub.Register(client)
	defer hub.Unregister(client)

	connected, _ := json.Marshal(ConnectedEvent{ClientID: clientID, RunID: runID})
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventTypeConnected, connected)
	flusher.Flush()

	// Keep-alive comments hold the connection open through proxies.
	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-client.Events():
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}
