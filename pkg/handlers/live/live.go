package live

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openmomo/ledgerd/pkg/bus"
	"github.com/openmomo/ledgerd/pkg/metrics"
)

// LiveHandler streams change signals to dashboards over Server-Sent Events.
type LiveHandler struct {
	Bus    *bus.Broadcaster
	Logger *slog.Logger
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(b *bus.Broadcaster, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{Bus: b, Logger: logger}
}

// Events serves one SSE connection. Signals carry only names and small
// payloads; clients re-query the REST API for actual data.
func (h *LiveHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: hello\ndata: {\"ok\":true}\n\n")
	flusher.Flush()

	sub := h.Bus.Subscribe()
	defer h.Bus.Unsubscribe(sub)

	metrics.LiveSubscribers.Inc()
	defer metrics.LiveSubscribers.Dec()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				// Broadcaster shut down or this subscriber was
				// evicted for falling behind.
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data); err != nil {
				h.Logger.Warn("live stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
