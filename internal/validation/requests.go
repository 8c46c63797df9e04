package validation

import "github.com/shopspring/decimal"

type OpenAccountRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
	Pin   string `json:"pin" validate:"required,pin"`
}

type TransferRequest struct {
	RecipientAccount string          `json:"recipient_account" validate:"required,account"`
	Amount           decimal.Decimal `json:"amount" validate:"money"`
	Pin              string          `json:"pin" validate:"required,pin"`
	Narration        string          `json:"narration" validate:"max=200"`
}

type WithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"money"`
	Pin           string          `json:"pin" validate:"required,pin"`
	BankCode      string          `json:"bank_code" validate:"required,max=10"`
	BankName      string          `json:"bank_name" validate:"max=100"`
	AccountNumber string          `json:"account_number" validate:"required,account"`
	AccountName   string          `json:"account_name" validate:"max=200"`
	Narration     string          `json:"narration" validate:"max=200"`
}

type BillRequest struct {
	Provider  string          `json:"provider" validate:"required,max=20"`
	Customer  string          `json:"customer" validate:"required,max=50"`
	PlanCode  string          `json:"plan_code" validate:"max=50"`
	MeterType string          `json:"meter_type" validate:"omitempty,oneof=prepaid postpaid"`
	Amount    decimal.Decimal `json:"amount"`
	Pin       string          `json:"pin" validate:"required,pin"`
}

type PaymentRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"money"`
	Provider string          `json:"provider" validate:"omitempty,oneof=paystack moniepoint"`
}

type ChangePinRequest struct {
	OldPin string `json:"old_pin" validate:"omitempty,pin"`
	NewPin string `json:"new_pin" validate:"required,pin"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type OptionalReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CreditRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"money"`
	Description string          `json:"description" validate:"max=255"`
	Reference   string          `json:"external_reference" validate:"max=100"`
}
