package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AleksandrSemykin/reflow-ocr/internal/events"
)

// HandleEvents streams session progress over Server-Sent Events. The stream
// opens with a connected greeting, then relays bus events until the client
// disconnects, with periodic heartbeats keeping proxies from closing the
// connection.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := h.store.Get(sessionID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.bus.Subscribe(sessionID)
	defer sub.Close()

	writeEvent(w, events.Event{
		Type:      events.Connected,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.C:
			writeEvent(w, ev)
			flusher.Flush()
		case <-heartbeat.C:
			writeEvent(w, events.Event{
				Type:      events.Heartbeat,
				SessionID: sessionID,
				Timestamp: time.Now().UTC(),
			})
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
