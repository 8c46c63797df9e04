package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/events"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/repositories/memory"
	"walletledger/internal/services/approval"
	"walletledger/internal/services/transaction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPin = "1234"

var system = models.SystemPrincipal("test")

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType+":"+e.Reference)
	}
	return out
}

type memoryHistoryCache struct {
	mu          sync.Mutex
	pages       map[uuid.UUID]*HistoryPage
	generations map[uuid.UUID]int64
	invalidated []uuid.UUID
}

func newMemoryHistoryCache() *memoryHistoryCache {
	return &memoryHistoryCache{pages: map[uuid.UUID]*HistoryPage{}, generations: map[uuid.UUID]int64{}}
}

func (c *memoryHistoryCache) Get(_ context.Context, id uuid.UUID) (*HistoryPage, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[id]
	return p, c.generations[id], ok
}

func (c *memoryHistoryCache) Set(_ context.Context, id uuid.UUID, generation int64, page *HistoryPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[id] != generation {
		return
	}
	c.pages[id] = page
}

func (c *memoryHistoryCache) Invalidate(_ context.Context, ids ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.generations[id]++
		delete(c.pages, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

func (c *memoryHistoryCache) cached(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pages[id]
	return ok
}

type harness struct {
	engine    *Engine
	store     *memory.Store
	publisher *recordingPublisher
	cache     *memoryHistoryCache
	seq       atomic.Int64
}

func newHarness(t *testing.T, opts ...memory.Option) *harness {
	t.Helper()
	h := &harness{
		store:     memory.New(opts...),
		publisher: &recordingPublisher{},
		cache:     newMemoryHistoryCache(),
	}
	h.engine = NewEngine(Deps{
		Repo:      h.store,
		Factory:   transaction.NewFactory(approval.NewThresholdPolicy(decimal.NewFromInt(100000))),
		Publisher: h.publisher,
		Cache:     h.cache,
		AccountNumbers: func() string {
			return fmt.Sprintf("20%08d", h.seq.Add(1))
		},
	}, Config{PinCost: bcrypt.MinCost})
	return h
}

func customerOf(acct *Account) models.Principal {
	return models.Principal{
		UserID:      acct.User.ID,
		Name:        acct.User.Email,
		Role:        acct.User.Role,
		Permissions: models.GetDefaultPermissions(acct.User.Role),
	}
}

func staff(role string) models.Principal {
	return models.Principal{
		UserID:      uuid.New(),
		Name:        role + "@bank.test",
		Role:        role,
		Permissions: models.GetDefaultPermissions(role),
	}
}

func (h *harness) open(t *testing.T, name string, balance string) (models.Principal, *models.Wallet) {
	t.Helper()
	ctx := context.Background()
	acct, err := h.engine.OpenAccount(ctx, OpenAccountRequest{
		Email: name + "@example.com",
		Name:  name,
		Pin:   testPin,
	})
	require.NoError(t, err)
	if amount := decimal.RequireFromString(balance); amount.IsPositive() {
		_, err := h.engine.Credit(ctx, system, CreditRequest{WalletID: acct.Wallet.ID, Amount: amount})
		require.NoError(t, err)
	}
	return customerOf(acct), acct.Wallet
}

func (h *harness) wallet(t *testing.T, id uuid.UUID) *models.Wallet {
	t.Helper()
	w, err := h.store.GetWallet(context.Background(), id)
	require.NoError(t, err)
	return w
}

func (h *harness) tx(t *testing.T, ref string) *models.Transaction {
	t.Helper()
	tx, err := h.store.FindTransactionByReference(context.Background(), ref)
	require.NoError(t, err)
	return tx
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

func TestTransfer_DebitsSenderAndCreditsRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")
	_, b := h.open(t, "bob", "0")

	legs, err := h.engine.Transfer(ctx, alice, TransferRequest{
		RecipientAccount: b.AccountNumber,
		Amount:           decimal.NewFromInt(500),
		Pin:              testPin,
		Narration:        "rent",
	})
	require.NoError(t, err)

	assertMoney(t, "10.00", legs.Debit.Fee)
	assertMoney(t, "510.00", legs.Debit.TotalAmount)
	assertMoney(t, "1000.00", legs.Debit.BalanceBefore)
	assertMoney(t, "490.00", legs.Debit.BalanceAfter)
	assertMoney(t, "0.00", legs.Credit.BalanceBefore)
	assertMoney(t, "500.00", legs.Credit.BalanceAfter)
	assert.Equal(t, models.TransactionTypeTransfer, legs.Debit.Type)
	assert.Equal(t, models.TransactionTypeDeposit, legs.Credit.Type)
	assert.Equal(t, legs.Credit.Reference, legs.Debit.MetaString(models.MetaCounterpartReference))
	assert.Equal(t, legs.Debit.Reference, legs.Credit.MetaString(models.MetaSenderReference))
	assert.Equal(t, legs.Debit.MetaString(models.MetaCorrelationID), legs.Credit.MetaString(models.MetaCorrelationID))
	assert.Contains(t, legs.Credit.Description, legs.Debit.Reference)

	assertMoney(t, "490.00", h.wallet(t, a.ID).Balance)
	assertMoney(t, "490.00", h.wallet(t, a.ID).LedgerBalance)
	assertMoney(t, "500.00", h.wallet(t, b.ID).Balance)

	assert.Equal(t, models.TransactionStatusCompleted, h.tx(t, legs.Debit.Reference).Status)
	assert.Contains(t, h.publisher.types(), events.TypeTransactionCreated+":"+legs.Credit.Reference)
}

func TestRequestWithdrawal_InsufficientFundsLeavesWalletUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")
	_, b := h.open(t, "bob", "0")

	_, err := h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(500), Pin: testPin})
	require.NoError(t, err)

	_, err = h.engine.RequestWithdrawal(ctx, alice, WithdrawalRequest{
		Amount:        decimal.NewFromInt(1000),
		Pin:           testPin,
		BankCode:      "058",
		BankName:      "GTBank",
		AccountNumber: "0123456789",
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	assertMoney(t, "490.00", h.wallet(t, a.ID).Balance)
	rows, _, err := h.store.ListTransactions(ctx, repositories.TransactionFilter{
		WalletID: &a.ID,
		Type:     models.TransactionTypeWithdrawal,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTransfer_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")
	_, b := h.open(t, "bob", "0")

	tests := []struct {
		name string
		req  TransferRequest
		want error
	}{
		{"wrong pin", TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(100), Pin: "9999"}, apperrors.ErrInvalidPin},
		{"unknown recipient", TransferRequest{RecipientAccount: "2099999999", Amount: decimal.NewFromInt(100), Pin: testPin}, apperrors.ErrRecipientNotFound},
		{"self transfer", TransferRequest{RecipientAccount: a.AccountNumber, Amount: decimal.NewFromInt(100), Pin: testPin}, apperrors.ErrSelfTransfer},
		{"zero amount", TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.Zero, Pin: testPin}, apperrors.ErrValidation},
		{"fee not covered", TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(10), Pin: testPin}, apperrors.ErrValidation},
		{"insufficient funds", TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(995), Pin: testPin}, apperrors.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Transfer(ctx, alice, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assertMoney(t, "1000.00", h.wallet(t, a.ID).Balance)
			assertMoney(t, "0.00", h.wallet(t, b.ID).Balance)
		})
	}
}

func TestFreeze_BlocksDebitsButNotCredits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")
	_, b := h.open(t, "bob", "0")
	admin := staff(models.RoleAdmin)

	_, err := h.engine.Freeze(ctx, alice, a.ID, "self-service")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	frozen, err := h.engine.Freeze(ctx, admin, a.ID, "chargeback investigation")
	require.NoError(t, err)
	assert.True(t, frozen.IsFrozen)

	_, err = h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(100), Pin: testPin})
	assert.ErrorIs(t, err, apperrors.ErrWalletFrozen)

	_, err = h.engine.Credit(ctx, system, CreditRequest{WalletID: a.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assertMoney(t, "1050.00", h.wallet(t, a.ID).Balance)

	_, err = h.engine.Unfreeze(ctx, admin, a.ID)
	require.NoError(t, err)
	_, err = h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(100), Pin: testPin})
	assert.NoError(t, err)
}

func TestCredit_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "0")

	_, err := h.engine.Credit(ctx, alice, CreditRequest{WalletID: a.ID, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = h.engine.Credit(ctx, system, CreditRequest{WalletID: a.ID, Amount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = h.engine.Credit(ctx, system, CreditRequest{WalletID: a.ID, Amount: decimal.NewFromInt(5), Type: models.TransactionTypeWithdrawal})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = h.engine.Credit(ctx, system, CreditRequest{WalletID: uuid.New(), Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, apperrors.ErrWalletNotFound)
}

func TestWithdrawal_ApproveCompleteAndReverse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "10000")
	approver := staff(models.RoleApprover)
	admin := staff(models.RoleAdmin)

	w, err := h.engine.RequestWithdrawal(ctx, alice, WithdrawalRequest{
		Amount:        decimal.NewFromInt(5000),
		Pin:           testPin,
		BankCode:      "058",
		BankName:      "GTBank",
		AccountNumber: "0123456789",
		AccountName:   "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, w.Status)
	assert.True(t, w.RequiresApproval)
	assertMoney(t, "5050.00", w.TotalAmount)

	held := h.wallet(t, a.ID)
	assertMoney(t, "4950.00", held.Balance)
	assertMoney(t, "10000.00", held.LedgerBalance)

	_, err = h.engine.ApproveWithdrawal(ctx, alice, w.Reference)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	approved, err := h.engine.ApproveWithdrawal(ctx, approver, w.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusProcessing, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, approver.UserID, *approved.ApprovedBy)

	_, err = h.engine.ApproveWithdrawal(ctx, approver, w.Reference)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransactionState)

	_, err = h.engine.Reverse(ctx, admin, w.Reference, "too early")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransactionState)

	done, err := h.engine.CompleteExternal(ctx, system, w.Reference, "MNFY-123")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, done.Status)
	assert.True(t, done.Posted())
	posted := h.wallet(t, a.ID)
	assertMoney(t, "4950.00", posted.Balance)
	assertMoney(t, "4950.00", posted.LedgerBalance)

	refund, err := h.engine.Reverse(ctx, admin, w.Reference, "payout bounced")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeRefund, refund.Type)
	assertMoney(t, "5050.00", refund.Amount)
	assert.Equal(t, w.Reference, refund.MetaString(models.MetaOriginalReference))
	assert.Equal(t, "payout bounced", refund.MetaString(models.MetaReason))

	restored := h.wallet(t, a.ID)
	assertMoney(t, "10000.00", restored.Balance)
	assertMoney(t, "10000.00", restored.LedgerBalance)
	assert.Equal(t, models.TransactionStatusReversed, h.tx(t, w.Reference).Status)

	_, err = h.engine.Reverse(ctx, admin, w.Reference, "again")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyReversed)
	assertMoney(t, "10000.00", h.wallet(t, a.ID).Balance)
}

func TestRejectWithdrawal_RefundsHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "2000")
	approver := staff(models.RoleApprover)
	admin := staff(models.RoleAdmin)

	w, err := h.engine.RequestWithdrawal(ctx, alice, WithdrawalRequest{
		Amount: decimal.NewFromInt(1000), Pin: testPin, BankCode: "058", AccountNumber: "0123456789",
	})
	require.NoError(t, err)
	assertMoney(t, "950.00", h.wallet(t, a.ID).Balance)

	refund, err := h.engine.RejectWithdrawal(ctx, approver, w.Reference, "name mismatch")
	require.NoError(t, err)
	assertMoney(t, "1050.00", refund.Amount)
	require.NotNil(t, refund.ReversesReference)
	assert.Equal(t, w.Reference, *refund.ReversesReference)

	after := h.wallet(t, a.ID)
	assertMoney(t, "2000.00", after.Balance)
	assertMoney(t, "2000.00", after.LedgerBalance)
	assert.Equal(t, models.TransactionStatusFailed, h.tx(t, w.Reference).Status)

	_, err = h.engine.RejectWithdrawal(ctx, approver, w.Reference, "twice")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransactionState)
	_, err = h.engine.Reverse(ctx, admin, w.Reference, "already refunded")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyReversed)
	assertMoney(t, "2000.00", h.wallet(t, a.ID).Balance)
}

func TestApproveWithdrawal_OwnWithdrawalForbidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct, err := h.engine.OpenAccount(ctx, OpenAccountRequest{Email: "ops@bank.test", Name: "Ops", Pin: testPin, Role: models.RoleApprover})
	require.NoError(t, err)
	_, err = h.engine.Credit(ctx, system, CreditRequest{WalletID: acct.Wallet.ID, Amount: decimal.NewFromInt(5000)})
	require.NoError(t, err)
	p := customerOf(acct)

	w, err := h.engine.RequestWithdrawal(ctx, p, WithdrawalRequest{Amount: decimal.NewFromInt(1000), Pin: testPin, BankCode: "058", AccountNumber: "0123456789"})
	require.NoError(t, err)
	_, err = h.engine.ApproveWithdrawal(ctx, p, w.Reference)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestExternalDebit_FailRefundsAndCompletePosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "3000")

	bill, err := h.engine.Debit(ctx, alice, DebitRequest{
		WalletID:   a.ID,
		Amount:     decimal.NewFromInt(1000),
		Fee:        decimal.NewFromInt(100),
		Type:       models.TransactionTypeElectricity,
		Settlement: SettleExternal,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusProcessing, bill.Status)
	assert.False(t, bill.Posted())
	assertMoney(t, "1900.00", h.wallet(t, a.ID).Balance)
	assertMoney(t, "3000.00", h.wallet(t, a.ID).LedgerBalance)

	_, err = h.engine.FailExternal(ctx, alice, bill.Reference, "biller down")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	refund, err := h.engine.FailExternal(ctx, system, bill.Reference, "biller down")
	require.NoError(t, err)
	assertMoney(t, "1100.00", refund.Amount)
	assertMoney(t, "3000.00", h.wallet(t, a.ID).Balance)
	assertMoney(t, "3000.00", h.wallet(t, a.ID).LedgerBalance)
	assert.Equal(t, models.TransactionStatusFailed, h.tx(t, bill.Reference).Status)

	_, err = h.engine.CompleteExternal(ctx, system, bill.Reference, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransactionState)

	airtime, err := h.engine.Debit(ctx, alice, DebitRequest{
		WalletID:   a.ID,
		Amount:     decimal.NewFromInt(500),
		Type:       models.TransactionTypeAirtime,
		Settlement: SettleExternal,
	})
	require.NoError(t, err)
	_, err = h.engine.CompleteExternal(ctx, system, airtime.Reference, "VTU-1")
	require.NoError(t, err)
	assertMoney(t, "2500.00", h.wallet(t, a.ID).Balance)
	assertMoney(t, "2500.00", h.wallet(t, a.ID).LedgerBalance)
	assert.Equal(t, "VTU-1", *h.tx(t, airtime.Reference).ExternalReference)
}

func TestDebit_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "100")
	bob, _ := h.open(t, "bob", "0")

	_, err := h.engine.Debit(ctx, bob, DebitRequest{WalletID: a.ID, Amount: decimal.NewFromInt(10), Type: models.TransactionTypeAirtime})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = h.engine.Debit(ctx, alice, DebitRequest{WalletID: a.ID, Amount: decimal.NewFromInt(10), Type: models.TransactionTypeDeposit})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = h.engine.Debit(ctx, alice, DebitRequest{WalletID: a.ID, Amount: decimal.NewFromInt(101), Type: models.TransactionTypeAirtime})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	tx, err := h.engine.Debit(ctx, alice, DebitRequest{WalletID: a.ID, Amount: decimal.NewFromInt(100), Type: models.TransactionTypeAirtime})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assertMoney(t, "0.00", h.wallet(t, a.ID).Balance)
	assertMoney(t, "0.00", h.wallet(t, a.ID).LedgerBalance)
}

func TestReverse_TransferClawsBackCreditLeg(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")
	_, b := h.open(t, "bob", "0")
	admin := staff(models.RoleAdmin)

	legs, err := h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(500), Pin: testPin})
	require.NoError(t, err)

	_, err = h.engine.Reverse(ctx, admin, legs.Credit.Reference, "wrong leg")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransactionState)

	refund, err := h.engine.Reverse(ctx, admin, legs.Debit.Reference, "sent in error")
	require.NoError(t, err)
	assertMoney(t, "510.00", refund.Amount)

	assertMoney(t, "1000.00", h.wallet(t, a.ID).Balance)
	assertMoney(t, "1000.00", h.wallet(t, a.ID).LedgerBalance)
	assertMoney(t, "0.00", h.wallet(t, b.ID).Balance)
	assertMoney(t, "0.00", h.wallet(t, b.ID).LedgerBalance)
	assert.Equal(t, models.TransactionStatusReversed, h.tx(t, legs.Debit.Reference).Status)
	assert.Equal(t, models.TransactionStatusReversed, h.tx(t, legs.Credit.Reference).Status)
}

func TestReverse_TransferFailsWhenRecipientSpent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")
	bob, b := h.open(t, "bob", "0")
	_, c := h.open(t, "carol", "0")
	admin := staff(models.RoleAdmin)

	legs, err := h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(500), Pin: testPin})
	require.NoError(t, err)
	_, err = h.engine.Transfer(ctx, bob, TransferRequest{RecipientAccount: c.AccountNumber, Amount: decimal.NewFromInt(400), Pin: testPin})
	require.NoError(t, err)

	_, err = h.engine.Reverse(ctx, admin, legs.Debit.Reference, "sent in error")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	assertMoney(t, "490.00", h.wallet(t, a.ID).Balance)
	assertMoney(t, "90.00", h.wallet(t, b.ID).Balance)
	assert.Equal(t, models.TransactionStatusCompleted, h.tx(t, legs.Debit.Reference).Status)
	assert.Equal(t, models.TransactionStatusCompleted, h.tx(t, legs.Credit.Reference).Status)
}

func TestReverse_RequiresPermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "100")

	tx, err := h.engine.Debit(ctx, alice, DebitRequest{WalletID: a.ID, Amount: decimal.NewFromInt(50), Type: models.TransactionTypeAirtime})
	require.NoError(t, err)
	_, err = h.engine.Reverse(ctx, alice, tx.Reference, "mine")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = h.engine.Reverse(ctx, staff(models.RoleAdmin), "TXN-MISSING", "x")
	assert.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
}

func TestConcurrentTransfers_ConserveMoney(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "5000")
	bob, b := h.open(t, "bob", "5000")

	const rounds = 40
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := alice, b.AccountNumber
			if i%2 == 1 {
				from, to = bob, a.AccountNumber
			}
			_, err := h.engine.Transfer(ctx, from, TransferRequest{RecipientAccount: to, Amount: decimal.NewFromInt(300), Pin: testPin})
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
		}(i)
	}
	wg.Wait()

	wa, wb := h.wallet(t, a.ID), h.wallet(t, b.ID)
	assert.False(t, wa.Balance.IsNegative())
	assert.False(t, wb.Balance.IsNegative())

	fees := decimal.NewFromInt(10).Mul(decimal.NewFromInt(succeeded.Load()))
	assertMoney(t, "10000.00", wa.Balance.Add(wb.Balance).Add(fees))

	rows, total, err := h.store.ListTransactions(ctx, repositories.TransactionFilter{Type: models.TransactionTypeTransfer})
	require.NoError(t, err)
	assert.EqualValues(t, succeeded.Load(), total)
	for _, row := range rows {
		assert.True(t, row.BalanceBefore.Sub(row.BalanceAfter).Equal(row.TotalAmount), row.Reference)
	}
}

func TestLockTimeout_SurfacesBusy(t *testing.T) {
	h := newHarness(t, memory.WithLockTimeout(50*time.Millisecond))
	ctx := context.Background()
	_, a := h.open(t, "alice", "100")

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- h.store.ExecuteInTransaction(ctx, func(r repositories.LedgerRepository) error {
			if _, err := r.LockWallets(ctx, a.ID); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	_, err := h.engine.Credit(ctx, system, CreditRequest{WalletID: a.ID, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, apperrors.ErrBusy)
	assertMoney(t, "100.00", h.wallet(t, a.ID).Balance)

	close(release)
	require.NoError(t, <-done)
}

func TestCancelledContext_TakesNoLocks(t *testing.T) {
	h := newHarness(t)
	_, a := h.open(t, "alice", "100")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Credit(ctx, system, CreditRequest{WalletID: a.ID, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acct, err := h.engine.OpenAccount(ctx, OpenAccountRequest{Email: "Dana@Example.com", Name: "Dana", Pin: testPin})
	require.NoError(t, err)
	assert.Len(t, acct.Wallet.AccountNumber, 10)
	assert.Equal(t, AccountNumberPrefix, acct.Wallet.AccountNumber[:2])
	assert.Equal(t, acct.User.ID, acct.Wallet.OwnerID)
	assert.Equal(t, "dana@example.com", acct.User.Email)
	assert.True(t, acct.Wallet.IsActive)
	assert.NotEqual(t, testPin, acct.User.PinHash)

	_, err = h.engine.OpenAccount(ctx, OpenAccountRequest{Email: "dana@example.com", Name: "Dana", Pin: testPin})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateReference)

	_, err = h.engine.OpenAccount(ctx, OpenAccountRequest{Email: "eve@example.com", Name: "Eve", Pin: "12a4"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestOpenAccount_RetriesAccountNumberCollision(t *testing.T) {
	store := memory.New()
	numbers := []string{"2000000001", "2000000001", "2000000002"}
	var calls int
	engine := NewEngine(Deps{
		Repo: store,
		AccountNumbers: func() string {
			n := numbers[calls]
			calls++
			return n
		},
	}, Config{PinCost: bcrypt.MinCost})
	ctx := context.Background()

	first, err := engine.OpenAccount(ctx, OpenAccountRequest{Email: "a@example.com", Name: "A", Pin: testPin})
	require.NoError(t, err)
	second, err := engine.OpenAccount(ctx, OpenAccountRequest{Email: "b@example.com", Name: "B", Pin: testPin})
	require.NoError(t, err)

	assert.Equal(t, "2000000001", first.Wallet.AccountNumber)
	assert.Equal(t, "2000000002", second.Wallet.AccountNumber)
	assert.Equal(t, 3, calls)
}

func TestAccountNumberFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		n := NewAccountNumber()
		assert.Regexp(t, `^20[0-9]{8}$`, n)
	}
}

func TestSetPin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, _ := h.open(t, "alice", "1000")
	_, b := h.open(t, "bob", "0")

	assert.ErrorIs(t, h.engine.SetPin(ctx, alice, "0000", "5678"), apperrors.ErrInvalidPin)
	assert.ErrorIs(t, h.engine.SetPin(ctx, alice, testPin, "56"), apperrors.ErrValidation)
	require.NoError(t, h.engine.SetPin(ctx, alice, testPin, "5678"))

	_, err := h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(100), Pin: testPin})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPin)
	_, err = h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(100), Pin: "5678"})
	assert.NoError(t, err)
}

func TestHistory_CachesFirstPageAndInvalidatesOnWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")
	bob, b := h.open(t, "bob", "0")

	page, err := h.engine.History(ctx, alice, a.ID, 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.True(t, h.cache.cached(a.ID))

	_, err = h.engine.History(ctx, bob, a.ID, 1, 0)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(100), Pin: testPin})
	require.NoError(t, err)
	assert.False(t, h.cache.cached(a.ID))

	page, err = h.engine.History(ctx, alice, a.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, models.TransactionTypeTransfer, page.Items[0].Type)

	audit, err := h.engine.History(ctx, staff(models.RoleApprover), a.ID, 1, 1)
	require.NoError(t, err)
	assert.Len(t, audit.Items, 1)
	assert.EqualValues(t, 2, audit.Total)
}

func TestFlaggedTransfer_FollowsNormalPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, _ := h.open(t, "alice", "300000")
	_, b := h.open(t, "bob", "0")

	legs, err := h.engine.Transfer(ctx, alice, TransferRequest{RecipientAccount: b.AccountNumber, Amount: decimal.NewFromInt(150000), Pin: testPin})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, legs.Debit.Status)
	assert.True(t, legs.Debit.RequiresApproval)
	assert.NotEmpty(t, legs.Debit.MetaString(models.MetaFlagReason))
	assertMoney(t, "50.00", legs.Debit.Fee)
}

func TestHistory_OutOfRangePages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")

	tests := []struct {
		name     string
		page     int
		size     int
		wantPage int
		wantRows int
	}{
		{"zero page", 0, 20, 1, 1},
		{"negative page", -5, 20, 1, 1},
		{"offset overflows int", math.MaxInt64/20 + 2, 20, repositories.MaxPage, 0},
		{"max int", math.MaxInt64, 100, repositories.MaxPage, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := h.engine.History(ctx, alice, a.ID, tt.page, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, page.Page)
			assert.Len(t, page.Items, tt.wantRows)
			assert.EqualValues(t, 1, page.Total)
		})
	}
}

// listHook runs a callback after each transaction listing, standing in for a
// commit that lands between the read and the cache write.
type listHook struct {
	repositories.LedgerRepository
	after func()
}

func (r *listHook) ListTransactions(ctx context.Context, filter repositories.TransactionFilter) ([]models.Transaction, int64, error) {
	items, total, err := r.LedgerRepository.ListTransactions(ctx, filter)
	if r.after != nil {
		r.after()
	}
	return items, total, err
}

func TestHistory_DropsPageInvalidatedDuringRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, a := h.open(t, "alice", "1000")

	hook := &listHook{LedgerRepository: h.store}
	engine := NewEngine(Deps{Repo: hook, Cache: h.cache}, Config{PinCost: bcrypt.MinCost})
	hook.after = func() {
		require.NoError(t, h.cache.Invalidate(ctx, a.ID))
	}

	page, err := engine.History(ctx, alice, a.ID, 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.False(t, h.cache.cached(a.ID))

	hook.after = nil
	_, err = engine.History(ctx, alice, a.ID, 1, 0)
	require.NoError(t, err)
	assert.True(t, h.cache.cached(a.ID))
}
