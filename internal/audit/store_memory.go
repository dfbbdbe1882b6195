package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps events in process memory. Default sink for single-node
// deployments and tests; Kafka-backed fan-out layers on top via KafkaPublisher.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListBySlip(_ context.Context, slipID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.SlipID == slipID {
			out = append(out, e)
		}
	}
	return out, nil
}
