package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventOfferAccepted   = "offer_accepted"
	EventOfferDeclined   = "offer_declined"
	EventOfferExpired    = "offer_expired"
	EventAcceptUndone    = "offer_accept_undone"
	EventOffersRefreshed = "offers_refreshed"
	EventActionQueued    = "sync_action_queued"
	EventActionSynced    = "sync_action_synced"
	EventActionDropped   = "sync_action_dropped"
)

// OfferEventPayload describes a status change for event consumers.
type OfferEventPayload struct {
	OfferID    string     `json:"offer_id"`
	Status     string     `json:"status"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	At         time.Time  `json:"at"`
}

// ActionEventPayload describes a sync queue entry for event consumers.
type ActionEventPayload struct {
	ActionID   string    `json:"action_id"`
	Type       string    `json:"type"`
	OfferID    string    `json:"offer_id"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
