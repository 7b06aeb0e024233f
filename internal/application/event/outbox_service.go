// Package event holds the operator-facing side of the event outbox: the
// dead letter queue and delivery statistics.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxDeadPageSize = 100

// OutboxService lets an operator inspect entries that exhausted their
// delivery budget and hand them back to the processor.
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{repo: repo, logger: logger.Named("outbox_admin")}
}

// OutboxEntryView is the API shape of an outbox entry. The payload is omitted.
type OutboxEntryView struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateType string     `json:"aggregate_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"retry_count"`
	MaxAttempts   int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func newOutboxEntryView(e *shared.OutboxEntry) OutboxEntryView {
	return OutboxEntryView{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Status:        string(e.Status),
		Attempts:      e.RetryCount,
		MaxAttempts:   e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

type DeadLetterQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type DeadLetterPage struct {
	Entries  []OutboxEntryView
	Total    int64
	Page     int
	PageSize int
}

// OutboxStats counts entries per status.
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

func (s *OutboxService) ListDead(ctx context.Context, q DeadLetterQuery) (*DeadLetterPage, error) {
	f := shared.Filter{Page: max(q.Page, 1), PageSize: q.PageSize}
	size := min(f.Limit(), maxDeadPageSize)

	entries, total, err := s.repo.FindDead(ctx, f.Page, size)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	page := &DeadLetterPage{Entries: make([]OutboxEntryView, len(entries)), Total: total, Page: f.Page, PageSize: size}
	for i, e := range entries {
		page.Entries[i] = newOutboxEntryView(e)
	}
	return page, nil
}

func (s *OutboxService) Get(ctx context.Context, id uuid.UUID) (*OutboxEntryView, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := newOutboxEntryView(entry)
	return &view, nil
}

// Requeue puts one dead entry back in the delivery queue with a fresh budget.
func (s *OutboxService) Requeue(ctx context.Context, id uuid.UUID) (*OutboxEntryView, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requeue(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("Dead letter requeued", zap.Stringer("id", id), zap.String("event_type", entry.EventType))
	view := newOutboxEntryView(entry)
	return &view, nil
}

// RequeueAll requeues every dead entry. Requeued entries leave the dead set,
// so it keeps reading the first page until the set is empty or a pass makes
// no progress.
func (s *OutboxService) RequeueAll(ctx context.Context) (int64, error) {
	var requeued int64
	for {
		entries, _, err := s.repo.FindDead(ctx, 1, maxDeadPageSize)
		if err != nil {
			return requeued, fmt.Errorf("list dead letters: %w", err)
		}
		progressed := false
		for _, e := range entries {
			if err := s.requeue(ctx, e); err != nil {
				s.logger.Error("Failed to requeue dead letter", zap.Stringer("id", e.ID), zap.Error(err))
				continue
			}
			requeued++
			progressed = true
		}
		if !progressed {
			break
		}
	}
	s.logger.Info("Dead letters requeued", zap.Int64("count", requeued))
	return requeued, nil
}

func (s *OutboxService) Stats(ctx context.Context) (*OutboxStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count outbox entries: %w", err)
	}
	stats := &OutboxStats{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *OutboxService) requeue(ctx context.Context, entry *shared.OutboxEntry) error {
	if err := entry.ResetForRetry(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return fmt.Errorf("requeue outbox entry %s: %w", entry.ID, err)
	}
	return nil
}

func (s *OutboxService) load(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrNotFound.WithMessage("outbox entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load outbox entry %s: %w", id, err)
	}
	return entry, nil
}
