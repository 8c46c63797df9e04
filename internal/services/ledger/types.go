package ledger

import (
	"context"
	"time"

	"walletledger/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementMode controls when a debit posts to LedgerBalance.
type SettlementMode int

const (
	// SettleImmediate completes the debit and posts it in the same unit.
	SettleImmediate SettlementMode = iota
	// SettleExternal holds the funds in a processing row until the
	// provider outcome arrives through CompleteExternal or FailExternal.
	SettleExternal
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Config holds engine settings.
type Config struct {
	BankName           string
	Currency           string
	PinCost            int
	AccountOpenRetries int
}

type CreditRequest struct {
	WalletID          uuid.UUID
	Amount            decimal.Decimal
	Type              models.TransactionType
	Description       string
	ExternalReference string
	Metadata          models.JSON
}

type DebitRequest struct {
	WalletID         uuid.UUID
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Type             models.TransactionType
	Description      string
	Metadata         models.JSON
	RecipientAccount string
	RecipientName    string
	RecipientBank    string
	Settlement       SettlementMode
}

type TransferRequest struct {
	// SourceWalletID is only honoured for system principals; customers
	// always send from their own wallet.
	SourceWalletID   uuid.UUID
	RecipientAccount string
	Amount           decimal.Decimal
	Pin              string
	Narration        string
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Debit  *models.Transaction `json:"debit"`
	Credit *models.Transaction `json:"credit"`
}

type WithdrawalRequest struct {
	Amount        decimal.Decimal
	Pin           string
	BankCode      string
	BankName      string
	AccountNumber string
	AccountName   string
	Narration     string
}

type OpenAccountRequest struct {
	Email string
	Name  string
	Phone string
	Pin   string
	Role  string
}

// Account is a user together with the wallet opened for them.
type Account struct {
	User   *models.User   `json:"user"`
	Wallet *models.Wallet `json:"wallet"`
}

type HistoryPage struct {
	Items []models.Transaction `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Size  int                  `json:"size"`
}

// HistoryCache stores the first page of a wallet's history. Every
// Invalidate advances the wallet's generation; Set with an older generation
// is dropped so a page read before a commit is never cached after it.
type HistoryCache interface {
	// Get returns the cached page, or the current generation on a miss.
	Get(ctx context.Context, walletID uuid.UUID) (*HistoryPage, int64, bool)
	Set(ctx context.Context, walletID uuid.UUID, generation int64, page *HistoryPage)
	Invalidate(ctx context.Context, walletIDs ...uuid.UUID) error
}

// MetricsCollector defines the metrics the engine records.
type MetricsCollector interface {
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)
	RecordTransaction(txType models.TransactionType, status models.TransactionStatus, amount decimal.Decimal)
	RecordCacheHit(view string)
	RecordCacheMiss(view string)
}
