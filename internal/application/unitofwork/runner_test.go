package unitofwork_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/retailcore/internal/application/unitofwork"
	"github.com/erp/retailcore/internal/domain/accounting"
	"github.com/erp/retailcore/internal/domain/audit"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/infrastructure/logger"
	"github.com/erp/retailcore/internal/infrastructure/persistence"
	"github.com/erp/retailcore/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createAccount returns a protocol that inserts one account and counts its calls
func createAccount(calls *int, fail error) unitofwork.Protocol {
	return func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		*calls++
		acct, err := accounting.NewAccount("till", accounting.AccountTypeCash, accounting.OwnerCompany, nil)
		if err != nil {
			return uuid.Nil, err
		}
		if err := repos.AccountRepo().Create(ctx, acct); err != nil {
			return uuid.Nil, err
		}
		if fail != nil {
			return uuid.Nil, fail
		}
		return acct.ID, nil
	}
}

func operation(t *testing.T, e *testutil.Engine, id uuid.UUID) *audit.Operation {
	t.Helper()
	op, err := persistence.NewGormOperationRepository(e.DB).FindByID(context.Background(), id)
	require.NoError(t, err)
	return op
}

func countAccounts(t *testing.T, e *testutil.Engine) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.DB.Model(&accounting.Account{}).Count(&n).Error)
	return n
}

func TestRunner_CommitAndReplay(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	calls := 0

	res, err := e.Runner.Run(ctx, audit.OpCreateSale, "key-1", createAccount(&calls, nil))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.NotEqual(t, uuid.Nil, res.ResultID)

	op := operation(t, e, res.OperationID)
	assert.Equal(t, audit.OperationCommitted, op.Status)
	require.NotNil(t, op.ResultID)
	assert.Equal(t, res.ResultID, *op.ResultID)
	assert.NotNil(t, op.FinishedAt)

	again, err := e.Runner.Run(ctx, audit.OpCreateSale, "key-1", createAccount(&calls, nil))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, res.OperationID, again.OperationID)
	assert.Equal(t, res.ResultID, again.ResultID)
	assert.Equal(t, 1, calls)

	t.Run("key reused for another kind", func(t *testing.T) {
		_, err := e.Runner.Run(ctx, audit.OpCloseShift, "key-1", createAccount(&calls, nil))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assert.Equal(t, 1, calls)
	})

	t.Run("no key never replays", func(t *testing.T) {
		first, err := e.Runner.Run(ctx, audit.OpCreateSale, "", createAccount(&calls, nil))
		require.NoError(t, err)
		second, err := e.Runner.Run(ctx, audit.OpCreateSale, "", createAccount(&calls, nil))
		require.NoError(t, err)
		assert.NotEqual(t, first.OperationID, second.OperationID)
		assert.Equal(t, 3, calls)
	})
}

func TestRunner_FailureRollsBackAndRetries(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	before := countAccounts(t, e)
	calls := 0

	_, err := e.Runner.Run(ctx, audit.OpOpenShift, "key-2", createAccount(&calls, shared.ErrInvalidInput))
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Equal(t, before, countAccounts(t, e))

	failed, err := persistence.NewGormOperationRepository(e.DB).FindByKey(ctx, "key-2")
	require.NoError(t, err)
	assert.Equal(t, audit.OperationFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)

	res, err := e.Runner.Run(ctx, audit.OpOpenShift, "key-2", createAccount(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, failed.ID, res.OperationID)
	assert.False(t, res.Replayed)
	assert.Equal(t, before+1, countAccounts(t, e))

	op := operation(t, e, res.OperationID)
	assert.Equal(t, audit.OperationCommitted, op.Status)
	assert.Empty(t, op.Error)
}

func TestRunner_PendingKeyIsInProgress(t *testing.T) {
	e := testutil.NewEngine(t)
	ctx := context.Background()
	require.NoError(t, persistence.NewGormOperationRepository(e.DB).Create(ctx, audit.NewOperation(audit.OpCreateSale, "key-3")))

	calls := 0
	_, err := e.Runner.Run(ctx, audit.OpCreateSale, "key-3", createAccount(&calls, nil))
	assert.ErrorIs(t, err, shared.ErrOperationInProgress)
	assert.Zero(t, calls)
}

func TestRunner_CancelledContextLeavesOperationPending(t *testing.T) {
	e := testutil.NewEngine(t)
	before := countAccounts(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := e.Runner.Run(ctx, audit.OpReverseSale, "key-4", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		cancel()
		return uuid.Nil, ctx.Err()
	})
	require.ErrorIs(t, err, shared.ErrUnknownOutcome)

	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, audit.OpReverseSale, de.Details["kind"])

	op, err := persistence.NewGormOperationRepository(e.DB).FindByKey(context.Background(), "key-4")
	require.NoError(t, err)
	assert.Equal(t, audit.OperationPending, op.Status)
	assert.Equal(t, before, countAccounts(t, e))

	calls := 0
	_, err = e.Runner.Run(context.Background(), audit.OpReverseSale, "key-4", createAccount(&calls, nil))
	assert.ErrorIs(t, err, shared.ErrOperationInProgress)
}

func TestRunner_ProtocolContextCarriesOperationID(t *testing.T) {
	e := testutil.NewEngine(t)
	calls := 0
	var seen string

	res, err := e.Runner.Run(context.Background(), audit.OpCreateSale, "", func(ctx context.Context, repos unitofwork.Repositories) (uuid.UUID, error) {
		seen = logger.GetOperationID(ctx)
		return createAccount(&calls, nil)(ctx, repos)
	})
	require.NoError(t, err)
	assert.Equal(t, res.OperationID.String(), seen)
}
