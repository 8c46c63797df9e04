package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultCurrency = "NGN"

// Wallet is the balance-holding account of a user. Balance is what the owner
// can spend; LedgerBalance only moves once a movement has been posted, so the
// two differ while a withdrawal or bill payment is held.
type Wallet struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"owner_id"`
	AccountNumber string          `gorm:"size:10;uniqueIndex;not null" json:"account_number"`
	Balance       decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0;check:balance >= 0" json:"balance"`
	LedgerBalance decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"ledger_balance"`
	Currency      string          `gorm:"size:3;not null;default:'NGN'" json:"currency"`
	IsFrozen      bool            `gorm:"not null;default:false" json:"is_frozen"`
	FreezeReason  string          `gorm:"size:255" json:"freeze_reason,omitempty"`
	IsActive      bool            `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Currency == "" {
		w.Currency = DefaultCurrency
	}
	return nil
}
