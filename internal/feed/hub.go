// Package feed broadcasts subject status changes to connected admin clients.
package feed

import (
	"log/slog"
	"sync"
	"time"
)

// Subject kinds carried on events.
const (
	KindReceipt = "receipt"
	KindOrder   = "order"
)

// Event is a single status change of a receipt or order.
type Event struct {
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subject_id"`
	Status    string    `json:"status"`
	Points    int       `json:"points,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}

const defaultBuffer = 32

type subscriber struct {
	ch chan Event
}

// Hub fans events out to subscribers. Slow subscribers lose events rather
// than blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	buffer int
	closed bool
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]*subscriber),
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber under id and returns its event channel and
// a function that removes it. Registering an id twice replaces the previous
// subscriber and closes its channel.
func (h *Hub) Subscribe(id string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if existing, ok := h.subs[id]; ok {
		close(existing.ch)
		h.logger.Info("Feed subscriber replaced", "subscriber_id", id)
	}
	h.subs[id] = sub
	h.mu.Unlock()

	h.logger.Info("Feed subscriber registered", "subscriber_id", id)
	return sub.ch, func() { h.unsubscribe(id, sub) }
}

func (h *Hub) unsubscribe(id string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.subs[id]; ok && current == sub {
		delete(h.subs, id)
		close(sub.ch)
		h.logger.Info("Feed subscriber unregistered", "subscriber_id", id)
	}
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("Feed subscriber lagging, event dropped",
				"subscriber_id", id, "kind", ev.Kind, "subject_id", ev.SubjectID)
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscriber. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
