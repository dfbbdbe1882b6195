package booking

import (
	"context"
	"fmt"
	"sync"

	"slipgate/pkg/sentinel"
)

// StaticProvider serves bookings from memory. Used in development and tests
// where no reservation system is reachable.
type StaticProvider struct {
	mu       sync.RWMutex
	bookings map[string]*Booking
}

func NewStaticProvider(bookings ...*Booking) *StaticProvider {
	p := &StaticProvider{bookings: make(map[string]*Booking, len(bookings))}
	for _, b := range bookings {
		p.bookings[b.ID] = b
	}
	return p
}

// Add registers or replaces a booking.
func (p *StaticProvider) Add(b *Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bookings[b.ID] = b
}

func (p *StaticProvider) Booking(_ context.Context, bookingID string) (*Booking, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", bookingID, sentinel.ErrNotFound)
	}
	return b, nil
}
