package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusAbandoned  PaymentStatus = "abandoned"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccessful || s == PaymentStatusFailed || s == PaymentStatusAbandoned
}

// GatewayPayment is an inbound payment collected through an external
// provider. The wallet is credited NetAmount once the provider confirms.
type GatewayPayment struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID              uuid.UUID       `gorm:"type:uuid;index;not null" json:"owner_id"`
	WalletID             uuid.UUID       `gorm:"type:uuid;index;not null" json:"wallet_id"`
	Reference            string          `gorm:"size:32;uniqueIndex;not null" json:"reference"`
	Provider             string          `gorm:"size:50;not null" json:"provider"`
	ExternalReference    *string         `gorm:"size:100;index" json:"external_reference,omitempty"`
	Amount               decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	Fee                  decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"fee"`
	NetAmount            decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"net_amount"`
	Currency             string          `gorm:"size:3;not null;default:'NGN'" json:"currency"`
	Status               PaymentStatus   `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	CheckoutURL          string          `gorm:"type:text" json:"checkout_url,omitempty"`
	TransactionReference *string         `gorm:"size:32" json:"transaction_reference,omitempty"`
	CreatedAt            time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
}

func (p *GatewayPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// BillPayment records the outcome of one biller call. The money movement
// itself lives on the linked transaction.
type BillPayment struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID              uuid.UUID       `gorm:"type:uuid;index;not null" json:"owner_id"`
	TransactionReference string          `gorm:"size:32;index;not null" json:"transaction_reference"`
	RequestID            string          `gorm:"size:32;uniqueIndex" json:"request_id"`
	Category             string          `gorm:"size:20;not null" json:"category"`
	Provider             string          `gorm:"size:50;not null" json:"provider"`
	Amount               decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	Customer             string          `gorm:"size:50;not null" json:"customer"`
	CustomerName         string          `gorm:"size:200" json:"customer_name,omitempty"`
	PlanCode             string          `gorm:"size:50" json:"plan_code,omitempty"`
	Token                string          `gorm:"size:100" json:"token,omitempty"`
	Status               string          `gorm:"size:20;not null" json:"status"`
	ResponseData         JSON            `gorm:"type:jsonb" json:"response_data,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (b *BillPayment) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
