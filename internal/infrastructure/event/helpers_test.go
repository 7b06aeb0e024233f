package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type recordingHandler struct {
	mu     sync.Mutex
	name   string
	types  []string
	seen   []shared.DomainEvent
	failOn int // fail the first failOn calls
	calls  int
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.failOn {
		return errors.New("handler unavailable")
	}
	h.seen = append(h.seen, event)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func reversedEvent() *sales.SaleReversedEvent {
	doc := &sales.SaleDocument{
		Status: sales.StatusReversed,
		Reason: "customer changed mind",
	}
	doc.ID = uuid.New()
	return sales.NewSaleReversedEvent(doc)
}

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&shared.OutboxEntry{}))
	return db
}
