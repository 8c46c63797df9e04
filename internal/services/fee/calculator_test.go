package fee

import (
	"testing"

	apperrors "walletledger/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculator_Fee(t *testing.T) {
	c := Default()

	tests := []struct {
		name   string
		op     Operation
		amount string
		want   string
	}{
		{"transfer low tier", OperationTransfer, "4000", "10.00"},
		{"transfer tier boundary", OperationTransfer, "5000", "10.00"},
		{"transfer just above boundary", OperationTransfer, "5000.01", "25.00"},
		{"transfer mid tier", OperationTransfer, "30000", "25.00"},
		{"transfer mid boundary", OperationTransfer, "50000", "25.00"},
		{"transfer high tier", OperationTransfer, "100000", "50.00"},
		{"withdrawal flat", OperationWithdrawal, "1000", "50.00"},
		{"gateway percentage", OperationGateway, "1000", "15.00"},
		{"gateway rounds half up", OperationGateway, "100.30", "1.50"},
		{"gateway rounds half up at third place", OperationGateway, "1.70", "0.03"},
		{"gateway capped", OperationGateway, "200000", "2000.00"},
		{"airtime free", OperationAirtime, "500", "0.00"},
		{"data free", OperationData, "1000", "0.00"},
		{"tv service fee", OperationTV, "10500", "100.00"},
		{"electricity service fee", OperationElectricity, "500", "100.00"},
		{"deposit free", OperationDeposit, "500", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Fee(tt.op, d(tt.amount))
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestCalculator_FeeIsDeterministic(t *testing.T) {
	c := Default()
	for i := 0; i < 100; i++ {
		assert.True(t, c.Fee(OperationGateway, d("123456.78")).Equal(d("1851.85")))
	}
}

func TestCalculator_Quote(t *testing.T) {
	c := Default()

	t.Run("rejects zero", func(t *testing.T) {
		_, err := c.Quote(OperationTransfer, decimal.Zero)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("rejects negative", func(t *testing.T) {
		_, err := c.Quote(OperationDeposit, d("-1"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("rejects sub-cent precision", func(t *testing.T) {
		_, err := c.Quote(OperationDeposit, d("10.001"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("rejects amount not covering fee", func(t *testing.T) {
		_, err := c.Quote(OperationTransfer, d("10"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("accepts amount above fee", func(t *testing.T) {
		fee, err := c.Quote(OperationTransfer, d("10.01"))
		require.NoError(t, err)
		assert.Equal(t, "10.00", fee.StringFixed(2))
	})

	t.Run("zero fee operations accept small amounts", func(t *testing.T) {
		fee, err := c.Quote(OperationAirtime, d("0.01"))
		require.NoError(t, err)
		assert.True(t, fee.IsZero())
	})
}
