package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeWithdrawal  TransactionType = "withdrawal"
	TransactionTypeTransfer    TransactionType = "transfer"
	TransactionTypePayment     TransactionType = "payment"
	TransactionTypeRefund      TransactionType = "refund"
	TransactionTypeBillPayment TransactionType = "bill_payment"
	TransactionTypeAirtime     TransactionType = "airtime"
	TransactionTypeData        TransactionType = "data"
	TransactionTypeTV          TransactionType = "tv"
	TransactionTypeElectricity TransactionType = "electricity"
)

// Inbound reports whether transactions of this type add to the wallet.
func (t TransactionType) Inbound() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypePayment, TransactionTypeRefund:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer,
		TransactionTypePayment, TransactionTypeRefund, TransactionTypeBillPayment,
		TransactionTypeAirtime, TransactionTypeData, TransactionTypeTV,
		TransactionTypeElectricity:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusReversed   TransactionStatus = "reversed"
)

func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusReversed
}

// Metadata keys shared across services.
const (
	MetaNarration            = "narration"
	MetaCorrelationID        = "correlation_id"
	MetaCounterpartReference = "counterpart_reference"
	MetaSenderReference      = "sender_reference"
	MetaOriginalReference    = "original_reference"
	MetaReason               = "reason"
	MetaFlagReason           = "flag_reason"
	MetaBankCode             = "bank_code"
	MetaPayoutStatus         = "payout_status"
	MetaPaymentReference     = "payment_reference"
)

// Transaction is one movement against one wallet. Rows are append-only in
// spirit: once terminal, only the reversal path touches them, and it does so
// by writing a new compensating row.
type Transaction struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID           uuid.UUID         `gorm:"type:uuid;index;not null" json:"owner_id"`
	WalletID          *uuid.UUID        `gorm:"type:uuid;index" json:"wallet_id,omitempty"`
	Type              TransactionType   `gorm:"size:20;index;not null" json:"type"`
	Amount            decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"amount"`
	Fee               decimal.Decimal   `gorm:"type:numeric(15,2);not null;default:0" json:"fee"`
	TotalAmount       decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"total_amount"`
	Currency          string            `gorm:"size:3;not null;default:'NGN'" json:"currency"`
	Reference         string            `gorm:"size:32;uniqueIndex;not null" json:"reference"`
	ExternalReference *string           `gorm:"size:100;index" json:"external_reference,omitempty"`
	ReversesReference *string           `gorm:"size:32;uniqueIndex" json:"reverses_reference,omitempty"`
	Status            TransactionStatus `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	Description       string            `gorm:"type:text" json:"description"`
	Metadata          JSON              `gorm:"type:jsonb" json:"metadata,omitempty"`
	RecipientAccount  string            `gorm:"size:20" json:"recipient_account,omitempty"`
	RecipientName     string            `gorm:"size:200" json:"recipient_name,omitempty"`
	RecipientBank     string            `gorm:"size:100" json:"recipient_bank,omitempty"`
	BalanceBefore     decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"balance_before"`
	BalanceAfter      decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"balance_after"`
	RequiresApproval  bool              `gorm:"index;not null;default:false" json:"requires_approval"`
	ApprovedBy        *uuid.UUID        `gorm:"type:uuid" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time        `json:"approved_at,omitempty"`
	CreatedAt         time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Posted reports whether the movement has reached LedgerBalance.
func (t *Transaction) Posted() bool {
	return t.CompletedAt != nil
}

// MetaString reads a string metadata value.
func (t *Transaction) MetaString(key string) string {
	if t.Metadata == nil {
		return ""
	}
	if v, ok := t.Metadata[key].(string); ok {
		return v
	}
	return ""
}
