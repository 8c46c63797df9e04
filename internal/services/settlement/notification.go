package settlement

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindPaymentSucceeded
	KindPaymentFailed
	KindPayoutSucceeded
	KindPayoutFailed
)

func (k Kind) String() string {
	switch k {
	case KindPaymentSucceeded:
		return "payment_succeeded"
	case KindPaymentFailed:
		return "payment_failed"
	case KindPayoutSucceeded:
		return "payout_succeeded"
	case KindPayoutFailed:
		return "payout_failed"
	}
	return "unknown"
}

// Notification is a provider event reduced to what settlement needs.
// Reference is our PAY- or TXN- reference. Amount is in major units and
// zero when the provider did not state one.
type Notification struct {
	Kind              Kind
	EventType         string
	Reference         string
	ExternalReference string
	Amount            decimal.Decimal
	Reason            string
}

// Parser turns a raw body into a Notification.
type Parser func(body []byte) (Notification, error)

type moniepointEvent struct {
	EventType            string          `json:"eventType"`
	TransactionReference string          `json:"transactionReference"`
	PaymentReference     string          `json:"paymentReference"`
	Reference            string          `json:"reference"`
	Amount               decimal.Decimal `json:"amount"`
	Status               string          `json:"status"`
	Message              string          `json:"message"`
}

// ParseMoniepoint reads flat Moniepoint events. Collections carry our
// reference in paymentReference, disbursements in reference; both fall
// back to transactionReference.
func ParseMoniepoint(body []byte) (Notification, error) {
	var e moniepointEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return Notification{}, fmt.Errorf("moniepoint: %w", err)
	}
	n := Notification{
		EventType:         e.EventType,
		ExternalReference: e.TransactionReference,
		Amount:            e.Amount,
		Reason:            e.Message,
	}
	switch e.EventType {
	case "SUCCESSFUL_TRANSACTION":
		n.Kind, n.Reference = KindPaymentSucceeded, firstNonEmpty(e.PaymentReference, e.TransactionReference)
	case "FAILED_TRANSACTION":
		n.Kind, n.Reference = KindPaymentFailed, firstNonEmpty(e.PaymentReference, e.TransactionReference)
	case "SUCCESSFUL_DISBURSEMENT":
		n.Kind, n.Reference = KindPayoutSucceeded, firstNonEmpty(e.Reference, e.TransactionReference)
	case "FAILED_DISBURSEMENT", "REVERSED_DISBURSEMENT":
		n.Kind, n.Reference = KindPayoutFailed, firstNonEmpty(e.Reference, e.TransactionReference)
	}
	if n.Reason == "" && n.Kind == KindPayoutFailed {
		n.Reason = strings.ToLower(firstNonEmpty(e.Status, "disbursement failed"))
	}
	return n, nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID              json.Number `json:"id"`
		Reference       string      `json:"reference"`
		TransferCode    string      `json:"transfer_code"`
		Amount          int64       `json:"amount"`
		Status          string      `json:"status"`
		GatewayResponse string      `json:"gateway_response"`
		Reason          string      `json:"reason"`
	} `json:"data"`
}

// ParsePaystack reads Paystack events. Amounts arrive in kobo.
func ParsePaystack(body []byte) (Notification, error) {
	var e paystackEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return Notification{}, fmt.Errorf("paystack: %w", err)
	}
	n := Notification{
		EventType: e.Event,
		Reference: e.Data.Reference,
		Amount:    decimal.New(e.Data.Amount, -2),
		Reason:    firstNonEmpty(e.Data.Reason, e.Data.GatewayResponse),
	}
	switch e.Event {
	case "charge.success":
		n.Kind, n.ExternalReference = KindPaymentSucceeded, e.Data.ID.String()
	case "charge.failed":
		n.Kind, n.ExternalReference = KindPaymentFailed, e.Data.ID.String()
	case "transfer.success":
		n.Kind, n.ExternalReference = KindPayoutSucceeded, e.Data.TransferCode
	case "transfer.failed", "transfer.reversed":
		n.Kind, n.ExternalReference = KindPayoutFailed, e.Data.TransferCode
		if n.Reason == "" {
			n.Reason = strings.TrimPrefix(e.Event, "transfer.")
		}
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
