package transaction

import (
	"testing"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.TransactionStatus
		want     bool
	}{
		{models.TransactionStatusPending, models.TransactionStatusProcessing, true},
		{models.TransactionStatusPending, models.TransactionStatusCompleted, true},
		{models.TransactionStatusPending, models.TransactionStatusFailed, true},
		{models.TransactionStatusProcessing, models.TransactionStatusCompleted, true},
		{models.TransactionStatusProcessing, models.TransactionStatusFailed, true},
		{models.TransactionStatusCompleted, models.TransactionStatusReversed, true},
		{models.TransactionStatusPending, models.TransactionStatusReversed, false},
		{models.TransactionStatusProcessing, models.TransactionStatusPending, false},
		{models.TransactionStatusCompleted, models.TransactionStatusFailed, false},
		{models.TransactionStatusFailed, models.TransactionStatusCompleted, false},
		{models.TransactionStatusFailed, models.TransactionStatusReversed, false},
		{models.TransactionStatusReversed, models.TransactionStatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("completion stamps completed_at", func(t *testing.T) {
		tx := &models.Transaction{Reference: "TXN-1", Status: models.TransactionStatusProcessing}
		require.NoError(t, Transition(tx, models.TransactionStatusCompleted, now))
		assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
		require.NotNil(t, tx.CompletedAt)
		assert.Equal(t, now, *tx.CompletedAt)
	})

	t.Run("illegal move is rejected and leaves record untouched", func(t *testing.T) {
		tx := &models.Transaction{Reference: "TXN-2", Status: models.TransactionStatusFailed}
		err := Transition(tx, models.TransactionStatusCompleted, now)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransactionState)
		assert.Equal(t, models.TransactionStatusFailed, tx.Status)
		assert.Nil(t, tx.CompletedAt)
	})

	t.Run("reversing twice reports already reversed", func(t *testing.T) {
		tx := &models.Transaction{Reference: "TXN-3", Status: models.TransactionStatusReversed}
		err := Transition(tx, models.TransactionStatusReversed, now)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyReversed)
	})
}
