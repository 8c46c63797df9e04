package transaction

import (
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
)

var transitions = map[models.TransactionStatus][]models.TransactionStatus{
	models.TransactionStatusPending: {
		models.TransactionStatusProcessing,
		models.TransactionStatusCompleted,
		models.TransactionStatusFailed,
	},
	models.TransactionStatusProcessing: {
		models.TransactionStatusCompleted,
		models.TransactionStatusFailed,
	},
	models.TransactionStatusCompleted: {
		models.TransactionStatusReversed,
	},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to models.TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves tx to status to, stamping UpdatedAt and, on completion,
// CompletedAt. Illegal moves leave tx untouched.
func Transition(tx *models.Transaction, to models.TransactionStatus, now time.Time) error {
	if tx.Status == models.TransactionStatusReversed && to == models.TransactionStatusReversed {
		return apperrors.Wrap(apperrors.ErrAlreadyReversed, "transaction %s already reversed", tx.Reference)
	}
	if !CanTransition(tx.Status, to) {
		return apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"transaction %s cannot move from %s to %s", tx.Reference, tx.Status, to)
	}
	tx.Status = to
	tx.UpdatedAt = now
	if to == models.TransactionStatusCompleted {
		completed := now
		tx.CompletedAt = &completed
	}
	return nil
}
