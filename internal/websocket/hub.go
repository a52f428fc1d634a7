package websocket

import (
	"errors"
	"sync"

	"github.com/chamahq/chama-backend/internal/event"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed client
var ErrClientClosed = errors.New("client is closed")

// Subscriber is a live-feed consumer scoped to one fund
type Subscriber interface {
	ID() string
	FundID() uuid.UUID
	Send(data []byte) error
	Close() error
}

// Hub routes domain events to the subscribers of the fund they belong to.
// It is safe for concurrent use.
type Hub struct {
	// subscribers maps fund ID to a map of subscriber ID to subscriber
	subscribers map[uuid.UUID]map[string]Subscriber
	mu          sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]map[string]Subscriber),
	}
}

// Register adds a subscriber to its fund's feed
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fundID := sub.FundID()
	if h.subscribers[fundID] == nil {
		h.subscribers[fundID] = make(map[string]Subscriber)
	}
	h.subscribers[fundID][sub.ID()] = sub

	log.Debug().
		Str("fund_id", fundID.String()).
		Str("subscriber_id", sub.ID()).
		Msg("Feed subscriber registered")
}

// Unregister removes a subscriber from its fund's feed
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fundID := sub.FundID()
	subs, ok := h.subscribers[fundID]
	if !ok {
		return
	}
	if _, exists := subs[sub.ID()]; !exists {
		return
	}
	delete(subs, sub.ID())
	if len(subs) == 0 {
		delete(h.subscribers, fundID)
	}

	log.Debug().
		Str("fund_id", fundID.String()).
		Str("subscriber_id", sub.ID()).
		Msg("Feed subscriber unregistered")
}

// Broadcast delivers the event to every subscriber of its fund. The envelope
// is serialized once; sends never block, a slow subscriber just drops the
// message.
func (h *Hub) Broadcast(e event.Event) {
	data, err := e.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Str("fund_id", e.FundID.String()).
			Str("event_type", string(e.Type)).
			Msg("Failed to serialize event")
		return
	}

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subscribers[e.FundID]))
	for _, sub := range h.subscribers[e.FundID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(data); err != nil {
			log.Warn().
				Err(err).
				Str("fund_id", e.FundID.String()).
				Str("subscriber_id", sub.ID()).
				Msg("Failed to send to subscriber")
		}
	}
}

// SubscriberCount returns the number of subscribers on one fund's feed
func (h *Hub) SubscriberCount(fundID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[fundID])
}

// TotalSubscriberCount returns the number of subscribers across all funds
func (h *Hub) TotalSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}
