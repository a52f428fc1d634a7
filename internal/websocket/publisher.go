package websocket

import (
	"context"

	"github.com/chamahq/chama-backend/internal/event"
)

// Publisher fans domain events out to the live feed of the fund they
// belong to. It implements event.Publisher so services stay unaware of
// the transport.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates a Publisher over the hub
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

var _ event.Publisher = (*Publisher)(nil)

// Publish broadcasts the event to every client watching its fund. Delivery
// is best-effort; slow or closed clients are dropped by the hub.
func (p *Publisher) Publish(ctx context.Context, e event.Event) error {
	p.hub.Broadcast(e)
	return nil
}
