// Package approval routes risky transactions to human review. The rule is a
// plain threshold: withdrawals always wait for an approver, and anything
// above the suspicious amount is flagged for audit when it is created.
package approval

import (
	"walletledger/internal/models"

	"github.com/shopspring/decimal"
)

var DefaultThreshold = decimal.NewFromInt(100000)

// ThresholdPolicy implements transaction.ApprovalPolicy.
type ThresholdPolicy struct {
	Threshold   decimal.Decimal
	AlwaysTypes []models.TransactionType
}

func NewThresholdPolicy(threshold decimal.Decimal) ThresholdPolicy {
	if !threshold.IsPositive() {
		threshold = DefaultThreshold
	}
	return ThresholdPolicy{
		Threshold:   threshold,
		AlwaysTypes: []models.TransactionType{models.TransactionTypeWithdrawal},
	}
}

func (p ThresholdPolicy) Evaluate(txType models.TransactionType, amount decimal.Decimal) (bool, string) {
	if amount.GreaterThan(p.Threshold) {
		return true, "amount " + amount.StringFixed(2) + " exceeds threshold " + p.Threshold.StringFixed(2)
	}
	for _, t := range p.AlwaysTypes {
		if t == txType {
			return true, ""
		}
	}
	return false, ""
}
