package event

import (
	"context"
	"testing"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type panickingHandler struct{}

func (panickingHandler) EventTypes() []string { return nil }

func (panickingHandler) Handle(context.Context, shared.DomainEvent) error {
	panic("boom")
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	reversed := &recordingHandler{types: []string{sales.EventTypeSaleReversed}}
	completed := &recordingHandler{types: []string{sales.EventTypeSaleCompleted}}
	all := &recordingHandler{}
	bus.Subscribe(reversed)
	bus.Subscribe(completed)
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(), reversedEvent()))

	assert.Equal(t, 1, reversed.count())
	assert.Equal(t, 0, completed.count())
	assert.Equal(t, 1, all.count(), "handlers without types receive every event")
}

func TestInMemoryEventBus_ReturnsHandlerErrors(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := &recordingHandler{failOn: 1}
	healthy := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), reversedEvent())

	require.Error(t, err)
	assert.Equal(t, 1, healthy.count(), "later handlers still run")
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandlerTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recordingHandler{types: []string{sales.EventTypeSaleCompleted}}
	bus.Subscribe(h, sales.EventTypeSaleReversed)

	require.NoError(t, bus.Publish(context.Background(), reversedEvent()))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(panickingHandler{})

	err := bus.Publish(context.Background(), reversedEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}
