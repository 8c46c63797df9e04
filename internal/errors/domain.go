// Package errors defines the domain error taxonomy shared by the ledger,
// settlement and approval services.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// DomainError is a coded error. Two DomainErrors match under errors.Is when
// their codes are equal, so wrapped variants still match their sentinel.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of base with a more specific message.
func Wrap(base *DomainError, format string, args ...interface{}) error {
	return &DomainError{
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithCause returns a copy of base carrying err as its cause.
func WithCause(base *DomainError, err error) error {
	return &DomainError{
		Code:    base.Code,
		Message: base.Message,
		Err:     err,
	}
}

// Code extracts the domain code from err, or "INTERNAL" when err is not a
// DomainError.
func Code(err error) string {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}

var statusByCode = map[string]int{
	ErrValidation.Code:              http.StatusBadRequest,
	ErrInvalidPin.Code:              http.StatusUnauthorized,
	ErrInvalidSignature.Code:        http.StatusUnauthorized,
	ErrForbidden.Code:               http.StatusForbidden,
	ErrWalletNotFound.Code:          http.StatusNotFound,
	ErrRecipientNotFound.Code:       http.StatusNotFound,
	ErrTransactionNotFound.Code:     http.StatusNotFound,
	ErrPaymentNotFound.Code:         http.StatusNotFound,
	ErrUserNotFound.Code:            http.StatusNotFound,
	ErrInsufficientFunds.Code:       http.StatusUnprocessableEntity,
	ErrWalletFrozen.Code:            http.StatusUnprocessableEntity,
	ErrWalletInactive.Code:          http.StatusUnprocessableEntity,
	ErrSelfTransfer.Code:            http.StatusUnprocessableEntity,
	ErrBillFailed.Code:              http.StatusBadGateway,
	ErrAlreadyReversed.Code:         http.StatusConflict,
	ErrInvalidTransactionState.Code: http.StatusConflict,
	ErrDuplicateReference.Code:      http.StatusConflict,
	ErrDuplicateSettlement.Code:     http.StatusOK,
	ErrBusy.Code:                    http.StatusServiceUnavailable,
}

// HTTPStatus maps err to the status code handlers respond with.
func HTTPStatus(err error) int {
	if status, ok := statusByCode[Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
