package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookStatus string

const (
	WebhookStatusReceived   WebhookStatus = "received"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusFailed     WebhookStatus = "failed"
	WebhookStatusInvalid    WebhookStatus = "invalid"
)

// WebhookEvent is the audit log of one provider delivery. Every delivery is
// logged, including replays and ones that fail verification.
type WebhookEvent struct {
	ID                   uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Source               string        `gorm:"size:50;index:idx_webhook_source_ref;not null" json:"source"`
	EventType            string        `gorm:"size:100;not null" json:"event_type"`
	Payload              string        `gorm:"type:text;not null" json:"payload"`
	Signature            string        `gorm:"size:512" json:"signature"`
	IPAddress            string        `gorm:"size:64" json:"ip_address,omitempty"`
	IsVerified           bool          `gorm:"not null;default:false" json:"is_verified"`
	Status               WebhookStatus `gorm:"size:20;index;not null;default:'received'" json:"status"`
	ExternalReference    *string       `gorm:"size:100;index:idx_webhook_source_ref" json:"external_reference,omitempty"`
	TransactionReference *string       `gorm:"size:32" json:"transaction_reference,omitempty"`
	ErrorMessage         string        `gorm:"type:text" json:"error_message,omitempty"`
	ReceivedAt           time.Time     `gorm:"not null" json:"received_at"`
	ProcessedAt          *time.Time    `json:"processed_at,omitempty"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
