package approval

import (
	"testing"

	"walletledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestThresholdPolicy_Evaluate(t *testing.T) {
	policy := NewThresholdPolicy(decimal.NewFromInt(100000))

	tests := []struct {
		name       string
		txType     models.TransactionType
		amount     string
		wantFlag   bool
		wantReason bool
	}{
		{"small transfer", models.TransactionTypeTransfer, "5000", false, false},
		{"at threshold", models.TransactionTypeTransfer, "100000", false, false},
		{"above threshold", models.TransactionTypeTransfer, "100000.01", true, true},
		{"small withdrawal", models.TransactionTypeWithdrawal, "100", true, false},
		{"large withdrawal", models.TransactionTypeWithdrawal, "250000", true, true},
		{"large deposit", models.TransactionTypeDeposit, "500000", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag, reason := policy.Evaluate(tt.txType, decimal.RequireFromString(tt.amount))
			assert.Equal(t, tt.wantFlag, flag)
			assert.Equal(t, tt.wantReason, reason != "")
		})
	}
}

func TestNewThresholdPolicy_DefaultsNonPositive(t *testing.T) {
	policy := NewThresholdPolicy(decimal.Zero)
	assert.True(t, policy.Threshold.Equal(DefaultThreshold))
}
