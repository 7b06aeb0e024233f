package unitofwork

import (
	"context"
	"errors"
	"time"

	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/infrastructure/logger"
	"github.com/erp/retailcore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Protocol is one multi-record operation. It returns the id of the record
// it produced, which the step log stores as the operation result.
type Protocol func(ctx context.Context, repos Repositories) (uuid.UUID, error)

// Result is the outcome of a step-logged protocol
type Result struct {
	OperationID uuid.UUID
	ResultID    uuid.UUID
	// Replayed is true when an idempotency key matched an already committed operation
	Replayed bool
}

// Runner executes protocols inside one transaction and keeps their step log.
//
// A PENDING entry is written before the transaction starts. The COMMITTED
// transition is written inside the transaction, so it is durable exactly when
// the protocol's effects are. A known error rolls the transaction back and
// marks the entry FAILED. A cancelled or expired context leaves the entry
// PENDING and surfaces ErrUnknownOutcome; the reconciler resolves it later.
type Runner struct {
	scope  TransactionScope
	ops    audit.OperationRepository
	logger *zap.Logger
}

// NewRunner creates a Runner. ops must not be bound to a transaction.
func NewRunner(scope TransactionScope, ops audit.OperationRepository, logger *zap.Logger) *Runner {
	return &Runner{scope: scope, ops: ops, logger: logger}
}

// Run executes fn under a new step log entry of the given kind. A non-empty
// key makes the call idempotent.
func (r *Runner) Run(ctx context.Context, kind, key string, fn Protocol) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "protocol", kind)
	defer span.End()
	if key != "" {
		telemetry.SetAttribute(span, telemetry.SpanAttrIdempotencyKey, key)
	}

	res, err := r.run(ctx, kind, key, fn)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOperationID, res.OperationID.String(),
		telemetry.SpanAttrResultID, res.ResultID.String(),
		telemetry.SpanAttrReplayed, res.Replayed,
	)
	telemetry.SetOK(span)
	return res, nil
}

func (r *Runner) run(ctx context.Context, kind, key string, fn Protocol) (*Result, error) {
	op, replay, err := r.begin(ctx, kind, key)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}
	ctx, log := logger.WithOperationID(ctx, logger.Ctx(ctx, r.logger), op.ID.String())

	var resultID uuid.UUID
	err = r.scope.Execute(ctx, func(repos Repositories) error {
		id, err := fn(ctx, repos)
		if err != nil {
			return err
		}
		resultID = id
		op.Commit(id)
		return repos.OperationRepo().Save(ctx, op)
	})
	if err == nil {
		return &Result{OperationID: op.ID, ResultID: resultID}, nil
	}

	if isInterrupted(ctx, err) {
		log.Error("Operation outcome unknown",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return nil, shared.ErrUnknownOutcome.WithDetails(map[string]any{
			"operation_id": op.ID,
			"kind":         kind,
		})
	}

	op.Fail(err)
	if saveErr := r.ops.Save(context.WithoutCancel(ctx), op); saveErr != nil {
		log.Warn("Failed to record failed operation", zap.Error(saveErr))
	}
	return nil, err
}

func (r *Runner) begin(ctx context.Context, kind, key string) (*audit.Operation, *Result, error) {
	if key != "" {
		existing, err := r.ops.FindByKey(ctx, key)
		switch {
		case err == nil:
			return r.resume(ctx, existing, kind)
		case !errors.Is(err, shared.ErrNotFound):
			return nil, nil, err
		}
	}

	op := audit.NewOperation(kind, key)
	if err := r.ops.Create(ctx, op); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, nil, shared.ErrOperationInProgress.WithDetails(map[string]any{"idempotency_key": key})
		}
		return nil, nil, err
	}
	return op, nil, nil
}

// resume handles a second call carrying a known idempotency key
func (r *Runner) resume(ctx context.Context, existing *audit.Operation, kind string) (*audit.Operation, *Result, error) {
	if existing.Kind != kind {
		return nil, nil, shared.ErrAlreadyExists.WithMessage("Idempotency key was used for a different operation").
			WithDetails(map[string]any{"operation_id": existing.ID, "kind": existing.Kind})
	}
	switch existing.Status {
	case audit.OperationCommitted:
		return nil, &Result{OperationID: existing.ID, ResultID: *existing.ResultID, Replayed: true}, nil
	case audit.OperationPending:
		return nil, nil, shared.ErrOperationInProgress.WithDetails(map[string]any{"operation_id": existing.ID})
	}
	// FAILED and ABANDONED operations never applied anything; retry under the same entry
	existing.Status = audit.OperationPending
	existing.Error = ""
	existing.ResultID = nil
	existing.FinishedAt = nil
	existing.StartedAt = time.Now()
	if err := r.ops.Save(ctx, existing); err != nil {
		return nil, nil, err
	}
	return existing, nil, nil
}

func isInterrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
