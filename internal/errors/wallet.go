package errors

var (
	ErrInsufficientFunds = &DomainError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient wallet balance",
	}
	ErrWalletFrozen = &DomainError{
		Code:    "WALLET_FROZEN",
		Message: "wallet is frozen",
	}
	ErrWalletInactive = &DomainError{
		Code:    "WALLET_INACTIVE",
		Message: "wallet is not active",
	}
	ErrWalletNotFound = &DomainError{
		Code:    "WALLET_NOT_FOUND",
		Message: "wallet not found",
	}
	ErrRecipientNotFound = &DomainError{
		Code:    "RECIPIENT_NOT_FOUND",
		Message: "recipient account not found",
	}
	ErrSelfTransfer = &DomainError{
		Code:    "SELF_TRANSFER",
		Message: "cannot transfer to the same wallet",
	}
	ErrInvalidPin = &DomainError{
		Code:    "INVALID_PIN",
		Message: "invalid transaction PIN",
	}
	ErrUserNotFound = &DomainError{
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrForbidden = &DomainError{
		Code:    "FORBIDDEN",
		Message: "principal is not allowed to perform this operation",
	}
	ErrValidation = &DomainError{
		Code:    "VALIDATION_ERROR",
		Message: "invalid request",
	}
	ErrBusy = &DomainError{
		Code:    "BUSY",
		Message: "wallet is busy, retry later",
	}
)
