package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/retailcore/internal/domain/shared"
	"go.uber.org/zap"
)

// InMemoryEventBus calls subscribed handlers synchronously. Every handler
// sees the event even if an earlier one fails; the joined error goes back
// to the outbox processor, which schedules a retry.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	wildcard []shared.EventHandler
	logger   *zap.Logger
}

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{byType: make(map[string][]shared.EventHandler), logger: logger}
}

func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		b.wildcard = append(b.wildcard, handler)
	}
	for _, t := range eventTypes {
		b.byType[t] = append(b.byType[t], handler)
	}
	b.logger.Debug("Handler subscribed", zap.Strings("event_types", eventTypes))
}

func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]shared.EventHandler, 0, len(b.byType[eventType])+len(b.wildcard))
	out = append(out, b.byType[eventType]...)
	return append(out, b.wildcard...)
}

func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, ev := range events {
		for _, h := range b.handlersFor(ev.EventType()) {
			if err := deliver(ctx, h, ev); err != nil {
				b.logger.Error("Event handler failed",
					zap.String("event_type", ev.EventType()),
					zap.Stringer("event_id", ev.EventID()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, h shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked on %s: %v", ev.EventType(), r)
		}
	}()
	return h.Handle(ctx, ev)
}

// Start and Stop are no-ops; dispatch happens on the publisher's goroutine.
func (b *InMemoryEventBus) Start(context.Context) error { return nil }
func (b *InMemoryEventBus) Stop(context.Context) error  { return nil }

var _ shared.EventBus = (*InMemoryEventBus)(nil)
