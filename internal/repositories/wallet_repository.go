package repositories

import (
	"context"
	"time"

	"walletledger/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	WalletID         *uuid.UUID
	OwnerID          *uuid.UUID
	Type             models.TransactionType
	Status           models.TransactionStatus
	RequiresApproval *bool
	HasExternalRef   *bool
	ExcludeType      models.TransactionType
	UpdatedBefore    *time.Time
	Limit            int
	Offset           int
	OldestFirst      bool
}

// MaxPage bounds page numbers so that page*size stays far from overflow.
const MaxPage = 10000

// PageOffset clamps page to [1, MaxPage] and returns it with its row offset.
func PageOffset(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	return page, (page - 1) * size
}

// UserStore persists wallet owners.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserPin(ctx context.Context, id uuid.UUID, pinHash string) error
}

// WalletStore persists wallets. Mutating balance methods require the wallet
// to have been locked by LockWallets in the same unit of work.
type WalletStore interface {
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Wallet, error)
	FindWalletByAccountNumber(ctx context.Context, accountNumber string) (*models.Wallet, error)

	// LockWallets takes exclusive row locks in ascending id order and returns
	// the locked rows keyed by id.
	LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error)
	// ApplyDelta adds delta to balance and ledgerDelta to ledger_balance. It
	// fails with ErrInsufficientFunds instead of letting balance go negative.
	ApplyDelta(ctx context.Context, id uuid.UUID, delta, ledgerDelta decimal.Decimal) (*models.Wallet, error)
	UpdateWalletStatus(ctx context.Context, wallet *models.Wallet) error
}

// TransactionStore persists ledger transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	// UpdateTransaction writes the mutable columns only: status, external
	// reference, approval fields, completed_at, metadata and updated_at.
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	LockTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	FindReversalOf(ctx context.Context, reference string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error)
}

// SettlementStore persists provider-facing records.
type SettlementStore interface {
	CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	UpdateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error

	CreateGatewayPayment(ctx context.Context, payment *models.GatewayPayment) error
	UpdateGatewayPayment(ctx context.Context, payment *models.GatewayPayment) error
	FindGatewayPayment(ctx context.Context, reference string) (*models.GatewayPayment, error)
	LockGatewayPayment(ctx context.Context, reference string) (*models.GatewayPayment, error)
	AbandonStalePayments(ctx context.Context, createdBefore time.Time) (int64, error)

	CreateBillPayment(ctx context.Context, bill *models.BillPayment) error
	UpdateBillPayment(ctx context.Context, bill *models.BillPayment) error
	// ListBillPayments returns bills in status created before the cutoff,
	// oldest first.
	ListBillPayments(ctx context.Context, status string, createdBefore time.Time, limit int) ([]models.BillPayment, error)
}

// LedgerRepository is the full ledger store. ExecuteInTransaction runs fn
// against a repository bound to one atomic unit of work: every lock taken
// inside is held until fn returns, and every write commits or none do.
type LedgerRepository interface {
	UserStore
	WalletStore
	TransactionStore
	SettlementStore

	ExecuteInTransaction(ctx context.Context, fn func(LedgerRepository) error) error
}
