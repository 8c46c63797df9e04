package errors

var (
	ErrTransactionNotFound = &DomainError{
		Code:    "TRANSACTION_NOT_FOUND",
		Message: "transaction not found",
	}
	ErrAlreadyReversed = &DomainError{
		Code:    "ALREADY_REVERSED",
		Message: "transaction already reversed",
	}
	ErrInvalidTransactionState = &DomainError{
		Code:    "INVALID_TRANSACTION_STATE",
		Message: "cannot perform this operation in the current transaction state",
	}
	ErrDuplicateReference = &DomainError{
		Code:    "DUPLICATE_REFERENCE",
		Message: "reference already exists",
	}
	ErrBillFailed = &DomainError{
		Code:    "BILL_FAILED",
		Message: "bill payment failed",
	}
)

// Settlement errors
var (
	ErrInvalidSignature = &DomainError{
		Code:    "INVALID_SIGNATURE",
		Message: "invalid webhook signature",
	}
	// ErrDuplicateSettlement is informational. Callers treat it as a no-op
	// success.
	ErrDuplicateSettlement = &DomainError{
		Code:    "DUPLICATE_SETTLEMENT",
		Message: "settlement already processed",
	}
	ErrPaymentNotFound = &DomainError{
		Code:    "PAYMENT_NOT_FOUND",
		Message: "payment not found",
	}
)
