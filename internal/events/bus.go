package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run on the publisher's goroutine
// and must not block.
type Handler func(*Event)

// SubscriptionID identifies a handler registration
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is an in-process publish/subscribe hub keyed by event type
type Bus struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   map[EventType][]subscription
	log    zerolog.Logger
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for eventType and returns its id
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscription{id: b.nextID, handler: handler})
	return b.nextID
}

// Unsubscribe removes a registration. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, list := range b.subs {
		for i, s := range list {
			if s.id == id {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit publishes an event built from the arguments
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	b.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	})
}

// Publish delivers event to every handler subscribed to its type
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event.Type]))
	for _, s := range b.subs[event.Type] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}

// SubscriberCount returns the number of handlers registered for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
