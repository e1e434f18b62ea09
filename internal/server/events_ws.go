package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/identity"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

// wsMessage is the frame pushed to WebSocket clients
type wsMessage struct {
	Type      string                 `json:"type"`
	Module    string                 `json:"module,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
	State     *portfolio.ValuedState `json:"state,omitempty"`
}

// EventsWSHandler pushes the caller's events over a WebSocket. With
// ?state=true it also pushes the valued portfolio on connect and after every
// change, so clients need not re-read it over REST.
type EventsWSHandler struct {
	eventBus     *events.Bus
	states       StateSource
	pingInterval time.Duration
	log          zerolog.Logger
}

// NewEventsWSHandler creates a new WebSocket events handler. states may be nil.
func NewEventsWSHandler(eventBus *events.Bus, states StateSource, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		eventBus:     eventBus,
		states:       states,
		pingInterval: heartbeatInterval,
		log:          log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws?types=...
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	types, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, h.log)
		return
	}

	// Hijacked connections keep the server deadlines
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Origin is checked by the gateway, like CORS
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusGoingAway, "stream closed")

	subscriber := uuid.NewString()
	log := h.log.With().Str("user_id", userID).Str("subscriber", subscriber).Logger()

	eventChan, unsubscribe := subscribeUser(h.eventBus, userID, types, log)
	defer unsubscribe()
	stateChan, stopWatch := watchState(h.states, r, userID)
	defer stopWatch()

	// Clients only listen; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	log.Info().Int("types", len(types)).Msg("WebSocket client connected")
	if err := h.write(ctx, conn, wsMessage{Type: "connected", Timestamp: time.Now()}); err != nil {
		return
	}
	if stateChan != nil {
		if err := h.writeState(ctx, conn, userID); err != nil {
			return
		}
	}

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("WebSocket client disconnected")
			return

		case event := <-eventChan:
			msg := wsMessage{
				Type:      string(event.Type),
				Module:    event.Module,
				Timestamp: event.Timestamp,
				Data:      event.Data,
			}
			if err := h.write(ctx, conn, msg); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed, closing")
				return
			}

		case _, ok := <-stateChan:
			if !ok {
				stateChan = nil
				continue
			}
			if err := h.writeState(ctx, conn, userID); err != nil {
				log.Debug().Err(err).Msg("WebSocket state push failed, closing")
				return
			}

		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("WebSocket ping failed, closing")
				return
			}
		}
	}
}

func (h *EventsWSHandler) write(ctx context.Context, conn *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// writeState pushes the caller's valued portfolio. A failed read is logged
// and skipped; only write errors end the connection.
func (h *EventsWSHandler) writeState(ctx context.Context, conn *websocket.Conn, userID string) error {
	valued, err := h.states.GetValuation(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load state for WebSocket")
		return nil
	}
	return h.write(ctx, conn, wsMessage{Type: stateMessageType, Timestamp: time.Now(), State: &valued})
}
