package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/identity"
)

const (
	streamBufferSize  = 100
	heartbeatInterval = 30 * time.Second
)

// EventsStreamHandler streams the caller's events as Server-Sent Events
type EventsStreamHandler struct {
	eventBus  *events.Bus
	states    StateSource
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler. states may be
// nil, which disables ?state=true pushes.
func NewEventsStreamHandler(eventBus *events.Bus, states StateSource, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:  eventBus,
		states:    states,
		heartbeat: heartbeatInterval,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// parseEventTypes reads the comma separated ?types= filter. An empty filter
// selects every event type.
func parseEventTypes(raw string) ([]events.EventType, error) {
	if strings.TrimSpace(raw) == "" {
		return events.AllEventTypes, nil
	}
	known := make(map[events.EventType]bool, len(events.AllEventTypes))
	for _, t := range events.AllEventTypes {
		known[t] = true
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		t := events.EventType(strings.ToUpper(strings.TrimSpace(part)))
		if t == "" {
			continue
		}
		if !known[t] {
			return nil, fmt.Errorf("unknown event type: %s", t)
		}
		out = append(out, t)
	}
	return out, nil
}

// subscribeUser subscribes to types and forwards the events visible to userID
// into a buffered channel. Slow consumers lose events instead of blocking
// publishers. The returned function removes every subscription.
func subscribeUser(bus *events.Bus, userID string, types []events.EventType, log zerolog.Logger) (<-chan *events.Event, func()) {
	ch := make(chan *events.Event, streamBufferSize)
	handler := func(event *events.Event) {
		if !event.VisibleTo(userID) {
			return
		}
		select {
		case ch <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Str("user_id", userID).
				Msg("Event channel full, dropping event")
		}
	}

	ids := make([]events.SubscriptionID, 0, len(types))
	for _, t := range types {
		ids = append(ids, bus.Subscribe(t, handler))
	}
	return ch, func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}

// ServeHTTP handles GET /api/events/stream?types=TRADE_EXECUTED,PRICE_UPDATED[&state=true].
// With state=true the caller's valued portfolio is pushed on connect and
// after every change to it.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	types, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, h.log)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// The server write timeout would cut the stream
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug().Err(err).Msg("Could not clear write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan, unsubscribe := subscribeUser(h.eventBus, userID, types, h.log)
	defer unsubscribe()
	stateChan, stopWatch := watchState(h.states, r, userID)
	defer stopWatch()

	h.log.Info().Str("user_id", userID).Int("types", len(types)).Bool("state", stateChan != nil).Msg("Client connected to event stream")

	h.send(w, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	})
	if stateChan != nil {
		h.sendState(r.Context(), w, userID)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Str("user_id", userID).Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			h.send(w, map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			})
			flusher.Flush()

		case _, ok := <-stateChan:
			if !ok {
				stateChan = nil
				continue
			}
			h.sendState(r.Context(), w, userID)
			flusher.Flush()

		case <-heartbeat.C:
			h.send(w, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) sendState(ctx context.Context, w http.ResponseWriter, userID string) {
	valued, err := h.states.GetValuation(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load state for stream")
		return
	}
	h.send(w, map[string]interface{}{
		"type":      stateMessageType,
		"timestamp": time.Now().Format(time.RFC3339),
		"state":     valued,
	})
}

// send writes one SSE message
func (h *EventsStreamHandler) send(w http.ResponseWriter, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
