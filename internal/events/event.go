// Package events publishes ledger events after a unit of work commits.
// Delivery is best effort: the ledger row is the source of truth and a lost
// event never changes a balance.
package events

import (
	"context"
	"time"

	"walletledger/internal/models"

	"github.com/shopspring/decimal"
)

const (
	TypeTransactionCreated = "transaction.created"
	TypeTransactionUpdated = "transaction.updated"
	TypeWalletStatus       = "wallet.status_changed"
)

type LedgerEvent struct {
	EventType       string          `json:"event_type"`
	Reference       string          `json:"reference,omitempty"`
	WalletID        string          `json:"wallet_id,omitempty"`
	OwnerID         string          `json:"owner_id,omitempty"`
	TransactionType string          `json:"transaction_type,omitempty"`
	Status          string          `json:"status,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	Currency        string          `json:"currency,omitempty"`
	Metadata        models.JSON     `json:"metadata,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// FromTransaction snapshots tx into an event of the given type.
func FromTransaction(eventType string, tx *models.Transaction) LedgerEvent {
	e := LedgerEvent{
		EventType:       eventType,
		Reference:       tx.Reference,
		OwnerID:         tx.OwnerID.String(),
		TransactionType: string(tx.Type),
		Status:          string(tx.Status),
		Amount:          tx.Amount,
		Fee:             tx.Fee,
		TotalAmount:     tx.TotalAmount,
		BalanceAfter:    tx.BalanceAfter,
		Currency:        tx.Currency,
		Metadata:        tx.Metadata.Clone(),
		Timestamp:       tx.UpdatedAt,
	}
	if tx.WalletID != nil {
		e.WalletID = tx.WalletID.String()
	}
	return e
}

// FromWallet reports a freeze or activation change.
func FromWallet(w *models.Wallet, reason string) LedgerEvent {
	status := "active"
	switch {
	case w.IsFrozen:
		status = "frozen"
	case !w.IsActive:
		status = "inactive"
	}
	e := LedgerEvent{
		EventType:    TypeWalletStatus,
		WalletID:     w.ID.String(),
		OwnerID:      w.OwnerID.String(),
		Status:       status,
		BalanceAfter: w.Balance,
		Currency:     w.Currency,
		Timestamp:    w.UpdatedAt,
	}
	if reason != "" {
		e.Metadata = models.JSON{models.MetaReason: reason}
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, events ...LedgerEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, ...LedgerEvent) error { return nil }
func (Noop) Close() error                                  { return nil }
