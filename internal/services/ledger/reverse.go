package ledger

import (
	"context"
	"errors"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/services/transaction"

	"github.com/google/uuid"
)

// Reverse compensates an outbound transaction with a refund of its full
// TotalAmount. LedgerBalance is restored only if the original had posted.
// A completed original becomes reversed; a failed one keeps its status.
// Reversing a transfer debit leg also claws the credit leg back from the
// recipient, which can fail with InsufficientFunds.
func (u *Unit) Reverse(ctx context.Context, p models.Principal, reference, reason string) (*models.Transaction, error) {
	if !p.Can(models.PermissionTransactionReverse) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "reversing transactions requires %s", models.PermissionTransactionReverse)
	}

	original, err := u.repo.LockTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if original.Type.Inbound() || original.ReversesReference != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"transaction %s is a credit and cannot be reversed", reference)
	}
	if original.Status == models.TransactionStatusReversed {
		return nil, apperrors.Wrap(apperrors.ErrAlreadyReversed, "transaction %s already reversed", reference)
	}
	existing, err := u.repo.FindReversalOf(ctx, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Wrap(apperrors.ErrAlreadyReversed,
			"transaction %s already compensated by %s", reference, existing.Reference)
	}
	if original.Status != models.TransactionStatusCompleted && original.Status != models.TransactionStatusFailed {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"transaction %s is %s; only completed or failed transactions can be reversed", reference, original.Status)
	}
	if original.WalletID == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransactionState, "transaction %s has no wallet", reference)
	}

	var creditLeg *models.Transaction
	if original.Type == models.TransactionTypeTransfer && original.Status == models.TransactionStatusCompleted {
		if ref := original.MetaString(models.MetaCounterpartReference); ref != "" {
			creditLeg, err = u.repo.LockTransactionByReference(ctx, ref)
			if err != nil && !errors.Is(err, apperrors.ErrTransactionNotFound) {
				return nil, err
			}
			if creditLeg != nil && (creditLeg.Status != models.TransactionStatusCompleted || creditLeg.WalletID == nil) {
				creditLeg = nil
			}
		}
	}

	walletIDs := []uuid.UUID{*original.WalletID}
	if creditLeg != nil {
		walletIDs = append(walletIDs, *creditLeg.WalletID)
	}
	locked, err := u.repo.LockWallets(ctx, walletIDs...)
	if err != nil {
		return nil, err
	}

	now := u.engine.factory.Now()
	if creditLeg != nil {
		if err := u.clawBack(ctx, locked[*creditLeg.WalletID], creditLeg, original, reason); err != nil {
			return nil, err
		}
	}

	refund, err := u.refund(ctx, locked[*original.WalletID], original, reason, original.Posted())
	if err != nil {
		return nil, err
	}

	if original.Status == models.TransactionStatusCompleted {
		if err := transaction.Transition(original, models.TransactionStatusReversed, now); err != nil {
			return nil, err
		}
		if reason != "" {
			original.Metadata = original.Metadata.Clone()
			original.Metadata[models.MetaReason] = reason
		}
		if err := u.repo.UpdateTransaction(ctx, original); err != nil {
			return nil, err
		}
		u.recordUpdated(original)
	}
	return refund, nil
}

// clawBack debits the recipient of a reversed transfer. It ignores the
// freeze flag: the money was never the recipient's to keep.
func (u *Unit) clawBack(ctx context.Context, w *models.Wallet, creditLeg, debitLeg *models.Transaction, reason string) error {
	meta := models.JSON{
		models.MetaOriginalReference: creditLeg.Reference,
		models.MetaSenderReference:   debitLeg.Reference,
	}
	if reason != "" {
		meta[models.MetaReason] = reason
	}
	tx := u.engine.factory.New(transaction.Spec{
		Wallet:           w,
		Type:             models.TransactionTypeTransfer,
		Amount:           creditLeg.TotalAmount,
		Status:           models.TransactionStatusCompleted,
		Description:      "Reversal of transfer " + debitLeg.Reference,
		Metadata:         meta,
		RecipientAccount: creditLeg.RecipientAccount,
		ReversesRef:      creditLeg.Reference,
	})
	if err := u.post(ctx, w, tx, true); err != nil {
		return err
	}

	if err := transaction.Transition(creditLeg, models.TransactionStatusReversed, u.engine.factory.Now()); err != nil {
		return err
	}
	if reason != "" {
		creditLeg.Metadata = creditLeg.Metadata.Clone()
		creditLeg.Metadata[models.MetaReason] = reason
	}
	if err := u.repo.UpdateTransaction(ctx, creditLeg); err != nil {
		return err
	}
	u.recordUpdated(creditLeg)
	return nil
}
