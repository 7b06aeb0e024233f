package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry.
//
//	PENDING -> PROCESSING -> SENT
//	             |-> FAILED -> PROCESSING ...
//	             |-> DEAD -> PENDING (manual retry)
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// DefaultMaxRetries is the delivery budget of a new entry.
const DefaultMaxRetries = 5

// OutboxEntry is a domain event written in the same transaction as the
// records that produced it, awaiting delivery to the event bus.
type OutboxEntry struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus `gorm:"type:varchar(20);index"`
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (OutboxEntry) TableName() string {
	return "outbox_events"
}

// NewOutboxEntry wraps a serialized event. maxRetries <= 0 selects DefaultMaxRetries.
func NewOutboxEntry(event DomainEvent, payload []byte, maxRetries ...int) *OutboxEntry {
	budget := DefaultMaxRetries
	if len(maxRetries) > 0 && maxRetries[0] > 0 {
		budget = maxRetries[0]
	}
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    budget,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery. The entry is retried after delay
// until its budget is spent, then it goes to the dead letter queue.
func (e *OutboxEntry) MarkFailed(reason string, delay time.Duration) {
	now := time.Now()
	e.RetryCount++
	e.LastError = reason
	e.UpdatedAt = now
	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(delay)
	e.NextRetryAt = &next
}

// ResetForRetry puts a dead entry back in the queue with a fresh budget.
func (e *OutboxEntry) ResetForRetry() error {
	if e.Status != OutboxStatusDead {
		return ErrInvalidState.WithMessage("only dead letter entries can be retried")
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository persists outbox entries.
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// FindDue returns pending entries and failed entries whose retry time
	// has passed, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// Claim moves the given entries to PROCESSING and returns those this
	// caller won. Entries claimed concurrently elsewhere are left out.
	Claim(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// PurgeSent deletes entries delivered before the cutoff.
	PurgeSent(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
