// Package fee computes the service fee charged on each kind of ledger
// operation. It is pure: no I/O, no clock, no randomness.
package fee

import (
	apperrors "walletledger/internal/errors"

	"github.com/shopspring/decimal"
)

type Operation string

const (
	OperationTransfer    Operation = "transfer"
	OperationWithdrawal  Operation = "withdrawal"
	OperationGateway     Operation = "gateway"
	OperationAirtime     Operation = "airtime"
	OperationData        Operation = "data"
	OperationTV          Operation = "tv"
	OperationElectricity Operation = "electricity"
	OperationDeposit     Operation = "deposit"
	OperationRefund      Operation = "refund"
)

// Tier is a flat fee charged when the amount is at most UpTo.
type Tier struct {
	UpTo decimal.Decimal
	Fee  decimal.Decimal
}

// Schedule holds the fee rules. DefaultSchedule matches the published tariff.
type Schedule struct {
	TransferTiers   []Tier
	TransferMaxFee  decimal.Decimal
	WithdrawalFee   decimal.Decimal
	GatewayRate     decimal.Decimal
	GatewayCap      decimal.Decimal
	BillServiceFees map[Operation]decimal.Decimal
}

func DefaultSchedule() Schedule {
	return Schedule{
		TransferTiers: []Tier{
			{UpTo: decimal.NewFromInt(5000), Fee: decimal.NewFromInt(10)},
			{UpTo: decimal.NewFromInt(50000), Fee: decimal.NewFromInt(25)},
		},
		TransferMaxFee: decimal.NewFromInt(50),
		WithdrawalFee:  decimal.NewFromInt(50),
		GatewayRate:    decimal.RequireFromString("0.015"),
		GatewayCap:     decimal.NewFromInt(2000),
		BillServiceFees: map[Operation]decimal.Decimal{
			OperationAirtime:     decimal.Zero,
			OperationData:        decimal.Zero,
			OperationTV:          decimal.NewFromInt(100),
			OperationElectricity: decimal.NewFromInt(100),
		},
	}
}

type Calculator struct {
	schedule Schedule
}

func NewCalculator(schedule Schedule) *Calculator {
	return &Calculator{schedule: schedule}
}

// Default returns a calculator over DefaultSchedule.
func Default() *Calculator {
	return NewCalculator(DefaultSchedule())
}

// Fee returns the fee for op on amount without validating the amount.
func (c *Calculator) Fee(op Operation, amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch op {
	case OperationTransfer:
		fee = c.schedule.TransferMaxFee
		for _, tier := range c.schedule.TransferTiers {
			if amount.LessThanOrEqual(tier.UpTo) {
				fee = tier.Fee
				break
			}
		}
	case OperationWithdrawal:
		fee = c.schedule.WithdrawalFee
	case OperationGateway:
		fee = amount.Mul(c.schedule.GatewayRate)
		if fee.GreaterThan(c.schedule.GatewayCap) {
			fee = c.schedule.GatewayCap
		}
	case OperationAirtime, OperationData, OperationTV, OperationElectricity:
		fee = c.schedule.BillServiceFees[op]
	default:
		fee = decimal.Zero
	}
	// decimal.Round rounds half away from zero, which is half-up for fees.
	return fee.Round(2)
}

// Quote validates amount and returns its fee. A non-zero fee has to leave a
// positive remainder, so an amount that does not exceed its own fee is
// rejected.
func (c *Calculator) Quote(op Operation, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrValidation, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrValidation, "amount must have at most two decimal places")
	}
	fee := c.Fee(op, amount)
	if fee.IsPositive() && amount.LessThanOrEqual(fee) {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrValidation,
			"amount %s is too small to cover the %s fee of %s", amount.StringFixed(2), op, fee.StringFixed(2))
	}
	return fee, nil
}
