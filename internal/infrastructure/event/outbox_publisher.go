package event

import (
	"context"
	"fmt"

	"github.com/erp/retailcore/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher turns domain events into outbox rows inside the caller's
// transaction, so events commit or roll back with the state that raised them.
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

type OutboxPublisherOption func(*OutboxPublisher)

// WithMaxRetries sets the delivery budget of new entries.
func WithMaxRetries(n int) OutboxPublisherOption {
	return func(p *OutboxPublisher) { p.maxRetries = n }
}

func NewOutboxPublisher(serializer *EventSerializer, opts ...OutboxPublisherOption) *OutboxPublisher {
	p := &OutboxPublisher{serializer: serializer, maxRetries: shared.DefaultMaxRetries}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, ev := range events {
		payload, err := p.serializer.Serialize(ev)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", ev.EventType(), err)
		}
		entries = append(entries, shared.NewOutboxEntry(ev, payload, p.maxRetries))
	}
	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}

// Writer binds the publisher to tx.
func (p *OutboxPublisher) Writer(tx *gorm.DB) *TxEventWriter {
	return &TxEventWriter{publisher: p, tx: tx}
}

// TxEventWriter writes events into one transaction's outbox.
type TxEventWriter struct {
	publisher *OutboxPublisher
	tx        *gorm.DB
}

func (w *TxEventWriter) Write(ctx context.Context, events ...shared.DomainEvent) error {
	return w.publisher.PublishWithTx(ctx, w.tx, events...)
}
