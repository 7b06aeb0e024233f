package event

import (
	"context"
	"testing"
	"time"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryOutboxRepo struct {
	entries map[uuid.UUID]*shared.OutboxEntry
}

func newMemoryOutboxRepo() *memoryOutboxRepo {
	return &memoryOutboxRepo{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *memoryOutboxRepo) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *memoryOutboxRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return r.byStatus(shared.OutboxStatusPending), nil
}

func (r *memoryOutboxRepo) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	dead := r.byStatus(shared.OutboxStatusDead)
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, int64(len(dead)), nil
	}
	end := min(start+pageSize, len(dead))
	return dead[start:end], int64(len(dead)), nil
}

func (r *memoryOutboxRepo) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryOutboxRepo) Claim(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memoryOutboxRepo) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	r.entries[entry.ID] = entry
	return nil
}

func (r *memoryOutboxRepo) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *memoryOutboxRepo) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *memoryOutboxRepo) byStatus(status shared.OutboxStatus) []*shared.OutboxEntry {
	var out []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func deadEntry(t *testing.T) *shared.OutboxEntry {
	t.Helper()
	doc := &sales.SaleDocument{}
	doc.ID = uuid.New()
	entry := shared.NewOutboxEntry(sales.NewSaleReversedEvent(doc), []byte(`{}`))
	for !entry.IsDead() {
		entry.MarkFailed("warranty store unavailable", time.Second)
	}
	return entry
}

func TestOutboxService_DeadLetters(t *testing.T) {
	repo := newMemoryOutboxRepo()
	svc := NewOutboxService(repo, zap.NewNop())
	ctx := context.Background()

	dead := deadEntry(t)
	pending := shared.NewOutboxEntry(sales.NewSaleReversedEvent(&sales.SaleDocument{}), []byte(`{}`))
	require.NoError(t, repo.Save(ctx, dead, pending))

	t.Run("lists dead entries", func(t *testing.T) {
		result, err := svc.ListDead(ctx, DeadLetterQuery{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Total)
		assert.Equal(t, 20, result.PageSize)
		require.Len(t, result.Entries, 1)
		assert.Equal(t, sales.EventTypeSaleReversed, result.Entries[0].EventType)
		assert.Equal(t, "warranty store unavailable", result.Entries[0].LastError)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Dead)
		assert.Equal(t, int64(1), stats.Pending)
		assert.Equal(t, int64(2), stats.Total)
	})

	t.Run("requeue only dead entries", func(t *testing.T) {
		_, err := svc.Requeue(ctx, pending.ID)
		assert.ErrorIs(t, err, shared.ErrInvalidState)

		dto, err := svc.Requeue(ctx, dead.ID)
		require.NoError(t, err)
		assert.Equal(t, string(shared.OutboxStatusPending), dto.Status)
		assert.Zero(t, dto.Attempts)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := svc.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestOutboxService_RequeueAll(t *testing.T) {
	repo := newMemoryOutboxRepo()
	svc := NewOutboxService(repo, zap.NewNop())
	ctx := context.Background()

	for range 3 {
		require.NoError(t, repo.Save(ctx, deadEntry(t)))
	}

	count, err := svc.RequeueAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Empty(t, repo.byStatus(shared.OutboxStatusDead))
	assert.Len(t, repo.byStatus(shared.OutboxStatusPending), 3)
}

func TestOutboxService_RequeueAllSpansPages(t *testing.T) {
	repo := newMemoryOutboxRepo()
	svc := NewOutboxService(repo, zap.NewNop())
	ctx := context.Background()

	for range maxDeadPageSize + 5 {
		require.NoError(t, repo.Save(ctx, deadEntry(t)))
	}
	count, err := svc.RequeueAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(maxDeadPageSize+5), count)
}
