package audit

import (
	"context"
	"time"
)

// Store is the audit sink contract. Append-only; listing exists for the
// administrative surface and tests.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySlip(ctx context.Context, slipID string) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// store for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, slipID string) ([]Event, error) {
	return p.store.ListBySlip(ctx, slipID)
}
