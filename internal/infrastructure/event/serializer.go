package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/domain/shift"
)

// EventSerializer encodes events as JSON for the outbox and decodes them
// back into their concrete types. Only registered types are accepted in
// either direction, so nothing lands in the outbox that cannot be delivered.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// Register makes eventType decodable into *E.
func Register[E any, P interface {
	*E
	shared.DomainEvent
}](s *EventSerializer, eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = func() shared.DomainEvent { return P(new(E)) }
}

// NewRegisteredSerializer knows every event the engine writes.
func NewRegisteredSerializer() *EventSerializer {
	s := NewEventSerializer()
	Register[sales.SaleCompletedEvent](s, sales.EventTypeSaleCompleted)
	Register[sales.SaleReversedEvent](s, sales.EventTypeSaleReversed)
	Register[shift.ShiftClosedEvent](s, shift.EventTypeShiftClosed)
	return s
}

func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}

func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("unregistered event type %q", event.EventType())
	}
	return json.Marshal(event)
}

func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unregistered event type %q", eventType)
	}
	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return event, nil
}
