package audit

import (
	"context"
	"time"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
)

// OperationStatus is the state of a step-logged operation
type OperationStatus string

const (
	// OperationPending is written before the protocol's transaction starts
	OperationPending OperationStatus = "PENDING"
	// OperationCommitted is written inside the protocol's transaction, so it
	// becomes visible exactly when the protocol's effects do
	OperationCommitted OperationStatus = "COMMITTED"
	// OperationFailed marks a protocol that was rolled back with a known error
	OperationFailed OperationStatus = "FAILED"
	// OperationAbandoned marks a stale PENDING operation resolved by the reconciler
	OperationAbandoned OperationStatus = "ABANDONED"
)

// Operation kinds
const (
	OpCreateSale    = "CREATE_SALE"
	OpUpdateSale    = "UPDATE_SALE"
	OpReverseSale   = "REVERSE_SALE"
	OpProcessReturn = "PROCESS_RETURN"
	OpOpenShift     = "OPEN_SHIFT"
	OpCloseShift    = "CLOSE_SHIFT"
	OpForceClose    = "FORCE_CLOSE_SHIFT"
	OpCancelShift   = "CANCEL_SHIFT"
	OpAdjustCash    = "ADJUST_SHIFT_CASH"
)

// Operation is the step log of one multi-record protocol. A PENDING row
// whose protocol transaction never committed is what a crash or timeout
// leaves behind.
type Operation struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Kind           string          `gorm:"type:varchar(30);not null;index" json:"kind"`
	IdempotencyKey *string         `gorm:"type:varchar(100);uniqueIndex" json:"idempotency_key,omitempty"`
	Status         OperationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ResultID       *uuid.UUID      `gorm:"type:uuid" json:"result_id,omitempty"`
	Error          string          `gorm:"type:varchar(1000)" json:"error,omitempty"`
	StartedAt      time.Time       `gorm:"not null;index" json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// TableName returns the table name for GORM
func (Operation) TableName() string {
	return "operations"
}

// NewOperation starts a step log entry. An empty key means no idempotency.
func NewOperation(kind, key string) *Operation {
	op := &Operation{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    OperationPending,
		StartedAt: time.Now(),
	}
	if key != "" {
		op.IdempotencyKey = &key
	}
	return op
}

// Commit marks the operation as applied with its result
func (o *Operation) Commit(resultID uuid.UUID) {
	now := time.Now()
	o.Status = OperationCommitted
	o.ResultID = &resultID
	o.FinishedAt = &now
}

// Fail marks the operation as rolled back
func (o *Operation) Fail(err error) {
	now := time.Now()
	o.Status = OperationFailed
	o.Error = truncate(err.Error(), 1000)
	o.FinishedAt = &now
}

// Abandon marks a stale pending operation as never applied
func (o *Operation) Abandon(note string) {
	now := time.Now()
	o.Status = OperationAbandoned
	o.Error = truncate(note, 1000)
	o.FinishedAt = &now
}

// IsStale reports whether a pending operation has outlived maxAge
func (o *Operation) IsStale(now time.Time, maxAge time.Duration) bool {
	return o.Status == OperationPending && now.Sub(o.StartedAt) > maxAge
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// OperationRepository persists step log entries
type OperationRepository interface {
	Create(ctx context.Context, op *Operation) error
	Save(ctx context.Context, op *Operation) error
	FindByID(ctx context.Context, id uuid.UUID) (*Operation, error)
	FindByKey(ctx context.Context, key string) (*Operation, error)
	FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]Operation, error)
	List(ctx context.Context, status OperationStatus, filter shared.Filter) ([]Operation, int64, error)
}
