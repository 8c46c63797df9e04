package validation

import (
	"testing"

	apperrors "walletledger/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStruct_Transfer(t *testing.T) {
	ok := TransferRequest{
		RecipientAccount: "2012345678",
		Amount:           decimal.RequireFromString("150.25"),
		Pin:              "1234",
	}
	assert.NoError(t, Struct(ok))

	bad := TransferRequest{
		RecipientAccount: "12ab",
		Amount:           decimal.RequireFromString("1.001"),
		Pin:              "12345",
	}
	err := Struct(bad)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "recipient_account must be a 10 digit account number")
	assert.Contains(t, err.Error(), "amount must be a positive amount")
	assert.Contains(t, err.Error(), "pin must be exactly 4 digits")
}

func TestStruct_Money(t *testing.T) {
	for _, amount := range []string{"0", "-5", "0.001"} {
		err := Struct(PaymentRequest{Amount: decimal.RequireFromString(amount)})
		assert.ErrorIs(t, err, apperrors.ErrValidation, amount)
	}
	assert.NoError(t, Struct(PaymentRequest{Amount: decimal.NewFromInt(100), Provider: "paystack"}))
	assert.Error(t, Struct(PaymentRequest{Amount: decimal.NewFromInt(100), Provider: "stripe"}))
}

func TestStruct_OpenAccount(t *testing.T) {
	err := Struct(OpenAccountRequest{Email: "not-an-email", Pin: "12"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	msgs := FormatErrors(validate.Struct(OpenAccountRequest{Email: "not-an-email", Pin: "12"}))
	assert.ElementsMatch(t, []string{
		"email must be a valid email",
		"name is required",
		"pin must be exactly 4 digits",
	}, msgs)
}

func TestStruct_OptionalPin(t *testing.T) {
	assert.NoError(t, Struct(ChangePinRequest{NewPin: "4321"}))
	assert.Error(t, Struct(ChangePinRequest{OldPin: "1", NewPin: "4321"}))
}
