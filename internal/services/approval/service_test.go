package approval

import (
	"context"
	"testing"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ApproveWithdrawal(ctx context.Context, p models.Principal, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, p, reference)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

func (m *MockLedger) RejectWithdrawal(ctx context.Context, p models.Principal, reference, reason string) (*models.Transaction, error) {
	args := m.Called(ctx, p, reference, reason)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

func approver() models.Principal {
	return models.Principal{
		UserID:      uuid.New(),
		Name:        "approver@bank.test",
		Role:        models.RoleApprover,
		Permissions: models.GetDefaultPermissions(models.RoleApprover),
	}
}

func customer() models.Principal {
	return models.Principal{
		UserID:      uuid.New(),
		Role:        models.RoleCustomer,
		Permissions: models.GetDefaultPermissions(models.RoleCustomer),
	}
}

func seed(t *testing.T, store *memory.Store, ref string, txType models.TransactionType, status models.TransactionStatus, flagged bool) {
	t.Helper()
	require.NoError(t, store.CreateTransaction(context.Background(), &models.Transaction{
		Reference:        ref,
		OwnerID:          uuid.New(),
		Type:             txType,
		Status:           status,
		Amount:           decimal.NewFromInt(1000),
		TotalAmount:      decimal.NewFromInt(1050),
		RequiresApproval: flagged,
	}))
}

func TestService_Pending(t *testing.T) {
	store := memory.New()
	seed(t, store, "TXN-W1", models.TransactionTypeWithdrawal, models.TransactionStatusPending, true)
	seed(t, store, "TXN-W2", models.TransactionTypeWithdrawal, models.TransactionStatusPending, true)
	seed(t, store, "TXN-W3", models.TransactionTypeWithdrawal, models.TransactionStatusProcessing, true)
	seed(t, store, "TXN-T1", models.TransactionTypeTransfer, models.TransactionStatusCompleted, true)

	svc := NewService(new(MockLedger), store, nil)

	page, err := svc.Pending(context.Background(), approver(), 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "TXN-W1", page.Items[0].Reference)
	assert.Equal(t, "TXN-W2", page.Items[1].Reference)

	flagged, err := svc.Flagged(context.Background(), approver(), 1, 20)
	require.NoError(t, err)
	require.Len(t, flagged.Items, 1)
	assert.Equal(t, "TXN-T1", flagged.Items[0].Reference)
}

func TestService_RequiresPermission(t *testing.T) {
	svc := NewService(new(MockLedger), memory.New(), nil)
	ctx := context.Background()

	_, err := svc.Pending(ctx, customer(), 1, 20)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = svc.Approve(ctx, customer(), "TXN-X")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = svc.Reject(ctx, customer(), "TXN-X", "no")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestService_ApproveAndRejectDelegate(t *testing.T) {
	ledger := new(MockLedger)
	svc := NewService(ledger, memory.New(), nil)
	ctx := context.Background()
	p := approver()

	approved := &models.Transaction{Reference: "TXN-A", Status: models.TransactionStatusProcessing}
	ledger.On("ApproveWithdrawal", ctx, p, "TXN-A").Return(approved, nil).Once()
	refund := &models.Transaction{Reference: "TXN-R", Type: models.TransactionTypeRefund}
	ledger.On("RejectWithdrawal", ctx, p, "TXN-B", "suspicious").Return(refund, nil).Once()
	ledger.On("ApproveWithdrawal", ctx, p, "TXN-C").
		Return(nil, apperrors.ErrInvalidTransactionState).Once()

	tx, err := svc.Approve(ctx, p, "TXN-A")
	require.NoError(t, err)
	assert.Equal(t, approved, tx)

	tx, err = svc.Reject(ctx, p, "TXN-B", "suspicious")
	require.NoError(t, err)
	assert.Equal(t, refund, tx)

	_, err = svc.Approve(ctx, p, "TXN-C")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransactionState)

	ledger.AssertExpectations(t)
}
