// Package transaction builds transaction records and owns the status state
// machine. Records leave the factory fully populated; the ledger engine only
// fills in the balance snapshots it reads under lock.
package transaction

import (
	"time"

	"walletledger/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalPolicy decides whether a new transaction must be flagged for human
// review.
type ApprovalPolicy interface {
	Evaluate(txType models.TransactionType, amount decimal.Decimal) (flag bool, reason string)
}

type noApproval struct{}

func (noApproval) Evaluate(models.TransactionType, decimal.Decimal) (bool, string) { return false, "" }

// Spec describes a transaction to build.
type Spec struct {
	Wallet           *models.Wallet
	Type             models.TransactionType
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Status           models.TransactionStatus
	Description      string
	Metadata         models.JSON
	RecipientAccount string
	RecipientName    string
	RecipientBank    string
	ReversesRef      string
	RequireApproval  bool
}

type Factory struct {
	policy    ApprovalPolicy
	now       func() time.Time
	reference func() string
}

type Option func(*Factory)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// WithReferences overrides the reference generator.
func WithReferences(gen func() string) Option {
	return func(f *Factory) { f.reference = gen }
}

func NewFactory(policy ApprovalPolicy, opts ...Option) *Factory {
	if policy == nil {
		policy = noApproval{}
	}
	f := &Factory{
		policy:    policy,
		now:       time.Now,
		reference: NewTransactionReference,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Now() time.Time {
	return f.now().UTC()
}

// New builds an unsaved transaction from spec. Status defaults to pending;
// a completed status also stamps CompletedAt.
func (f *Factory) New(spec Spec) *models.Transaction {
	now := f.Now()
	meta := models.JSON{}
	for k, v := range spec.Metadata {
		meta[k] = v
	}

	status := spec.Status
	if status == "" {
		status = models.TransactionStatusPending
	}

	tx := &models.Transaction{
		ID:               uuid.New(),
		OwnerID:          spec.Wallet.OwnerID,
		Type:             spec.Type,
		Amount:           spec.Amount.Round(2),
		Fee:              spec.Fee.Round(2),
		TotalAmount:      spec.Amount.Add(spec.Fee).Round(2),
		Currency:         spec.Wallet.Currency,
		Reference:        f.reference(),
		Status:           status,
		Description:      spec.Description,
		Metadata:         meta,
		RecipientAccount: spec.RecipientAccount,
		RecipientName:    spec.RecipientName,
		RecipientBank:    spec.RecipientBank,
		RequiresApproval: spec.RequireApproval,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	walletID := spec.Wallet.ID
	tx.WalletID = &walletID
	if spec.ReversesRef != "" {
		ref := spec.ReversesRef
		tx.ReversesReference = &ref
	}
	if status == models.TransactionStatusCompleted {
		completed := now
		tx.CompletedAt = &completed
	}

	if flag, reason := f.policy.Evaluate(spec.Type, spec.Amount); flag {
		tx.RequiresApproval = true
		if reason != "" {
			meta[models.MetaFlagReason] = reason
		}
	}
	return tx
}
