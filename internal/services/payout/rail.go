// Package payout sends approved withdrawals to an external bank rail.
package payout

import (
	"context"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
)

// TransferRequest is one outbound bank transfer. Reference is the ledger
// transaction reference and doubles as the idempotency key at the rail.
type TransferRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	BankCode      string
	AccountNumber string
	AccountName   string
	Narration     string
}

// Result is the rail's view of a transfer. A FAILED result is a definitive
// rejection; transport problems are returned as errors instead.
type Result struct {
	Status            Status
	ExternalReference string
	Message           string
}

// Rail submits transfers. QueryTransfer takes the ExternalReference the
// rail returned from InitiateTransfer.
type Rail interface {
	Name() string
	InitiateTransfer(ctx context.Context, req TransferRequest) (*Result, error)
	QueryTransfer(ctx context.Context, externalReference string) (*Result, error)
}
