package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager stamps typed event data into events, publishes them on the bus
// and traces them at debug level.
type Manager struct {
	bus *Bus
	log zerolog.Logger
	now func() time.Time
}

// NewManager creates a manager publishing on bus
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
		now: time.Now,
	}
}

// Bus returns the underlying bus for subscribers
func (m *Manager) Bus() *Bus {
	return m.bus
}

// EmitTyped publishes data from module. Data that belongs to a user is only
// delivered to that user's subscribers; everything else is broadcast.
func (m *Manager) EmitTyped(module string, data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Module:    module,
		Timestamp: m.now(),
		Data:      convertEventDataToMap(data),
	}
	if scoped, ok := data.(userScoped); ok {
		event.UserID = scoped.Owner()
	}

	m.bus.Publish(event)

	if e := m.log.Debug(); e.Enabled() {
		payload, _ := json.Marshal(event.Data)
		e.Str("event_type", string(event.Type)).
			Str("module", module).
			Str("user_id", event.UserID).
			RawJSON("data", payload).
			Msg("Event emitted")
	}
}

// EmitError broadcasts an ERROR_OCCURRED event carrying err
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.EmitTyped(module, &ErrorEventData{Error: err.Error(), Context: context})
}
