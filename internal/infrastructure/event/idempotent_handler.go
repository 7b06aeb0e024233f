package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultIdempotencyTTL is how long a handled delivery is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyMetrics counts deliveries by outcome.
type IdempotencyMetrics struct {
	EventsProcessed atomic.Int64
	EventsDuplicate atomic.Int64
	EventsFailed    atomic.Int64
}

// IdempotentHandler makes an at-least-once handler effectively exactly once.
// The outbox may redeliver an event after a crash between delivery and
// MarkSent; the mark in the store turns the second delivery into a no-op.
// A failed delivery releases its mark so the retry is not taken for a duplicate.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics IdempotencyMetrics
}

type IdempotentHandlerOption func(*IdempotentHandler)

func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if config.TTL <= 0 {
			config.TTL = DefaultIdempotencyTTL
		}
		h.config = config
	}
}

func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.IdempotencyConfig{TTL: DefaultIdempotencyTTL, Enabled: true},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	key := h.key(event)
	claimed, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	if err != nil {
		// store outage: deliver anyway, the handler tolerates duplicates
		h.logger.Warn("Idempotency check failed, processing anyway",
			zap.Stringer("event_id", event.EventID()), zap.Error(err))
	} else if !claimed {
		h.metrics.EventsDuplicate.Add(1)
		h.logger.Debug("Duplicate event skipped",
			zap.Stringer("event_id", event.EventID()), zap.String("event_type", event.EventType()))
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.metrics.EventsFailed.Add(1)
		if ferr := h.store.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			h.logger.Warn("Failed to release idempotency mark", zap.String("key", key), zap.Error(ferr))
		}
		return err
	}
	h.metrics.EventsProcessed.Add(1)
	return nil
}

// key is scoped per wrapped handler so two handlers of one event do not
// shadow each other.
func (h *IdempotentHandler) key(event shared.DomainEvent) string {
	name := "handler"
	if n, ok := h.handler.(interface{ Name() string }); ok {
		name = n.Name()
	}
	return name + ":" + event.EventID().String()
}

func (h *IdempotentHandler) Metrics() *IdempotencyMetrics {
	return &h.metrics
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
