package transaction

import (
	"strings"

	"github.com/google/uuid"
)

// Reference prefixes
const (
	PrefixTransaction = "TXN"
	PrefixPayment     = "PAY"
	PrefixBill        = "BILL"
)

// NewReference returns prefix-XXXX with n upper-case hex characters of
// random uuid entropy. n is capped at 32.
func NewReference(prefix string, n int) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n > len(hex) {
		n = len(hex)
	}
	return prefix + "-" + hex[:n]
}

func NewTransactionReference() string { return NewReference(PrefixTransaction, 16) }

func NewPaymentReference() string { return NewReference(PrefixPayment, 20) }

func NewBillReference() string { return NewReference(PrefixBill, 16) }
