package ledger

import (
	"context"
	"strings"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/services/fee"
	"walletledger/internal/services/transaction"

	"go.uber.org/zap"
)

// RequestWithdrawal holds amount plus the withdrawal fee on the caller's
// wallet and queues a pending withdrawal for approval. Only the spendable
// balance moves until the payout settles.
func (e *Engine) RequestWithdrawal(ctx context.Context, p models.Principal, req WithdrawalRequest) (tx *models.Transaction, err error) {
	defer e.observe("request_withdrawal", time.Now(), &err)

	if strings.TrimSpace(req.AccountNumber) == "" || strings.TrimSpace(req.BankCode) == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "destination bank code and account number are required")
	}
	charge, err := e.fees.Quote(fee.OperationWithdrawal, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.verifyPin(ctx, p, req.Pin); err != nil {
		return nil, err
	}
	source, err := e.repo.GetWalletByOwner(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	err = e.WithinUnit(ctx, func(u *Unit) error {
		w, err := u.lockWallet(ctx, source.ID)
		if err != nil {
			return err
		}
		if err := debitable(w); err != nil {
			return err
		}
		description := "Withdrawal to " + req.AccountNumber
		if req.BankName != "" {
			description += " (" + req.BankName + ")"
		}
		tx = e.factory.New(transaction.Spec{
			Wallet:           w,
			Type:             models.TransactionTypeWithdrawal,
			Amount:           req.Amount,
			Fee:              charge,
			Status:           models.TransactionStatusPending,
			Description:      description,
			RecipientAccount: req.AccountNumber,
			RecipientName:    req.AccountName,
			RecipientBank:    req.BankName,
			RequireApproval:  true,
			Metadata: models.JSON{
				models.MetaBankCode:  req.BankCode,
				models.MetaNarration: req.Narration,
			},
		})
		return u.post(ctx, w, tx, false)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("withdrawal requested",
		zap.String("reference", tx.Reference),
		zap.String("total", tx.TotalAmount.StringFixed(2)),
	)
	return tx, nil
}

// ApproveWithdrawal moves a pending withdrawal to processing and records the
// approver. The payout itself is submitted by the settlement dispatcher.
func (e *Engine) ApproveWithdrawal(ctx context.Context, p models.Principal, reference string) (tx *models.Transaction, err error) {
	defer e.observe("approve_withdrawal", time.Now(), &err)
	if !p.Can(models.PermissionWithdrawalApprove) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "approving withdrawals requires %s", models.PermissionWithdrawalApprove)
	}

	err = e.WithinUnit(ctx, func(u *Unit) error {
		tx, err = u.repo.LockTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		if err := pendingWithdrawal(tx); err != nil {
			return err
		}
		if !p.System && tx.OwnerID == p.UserID {
			return apperrors.Wrap(apperrors.ErrForbidden, "approvers cannot approve their own withdrawal")
		}
		now := e.factory.Now()
		if err := transaction.Transition(tx, models.TransactionStatusProcessing, now); err != nil {
			return err
		}
		tx.ApprovedBy = p.ActorID()
		tx.ApprovedAt = &now
		if err := u.repo.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		u.recordUpdated(tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("withdrawal approved",
		zap.String("reference", reference),
		zap.String("approver", p.Name),
	)
	return tx, nil
}

// RejectWithdrawal fails a pending withdrawal and refunds the held total in
// the same unit. It returns the refund row.
func (e *Engine) RejectWithdrawal(ctx context.Context, p models.Principal, reference, reason string) (refund *models.Transaction, err error) {
	defer e.observe("reject_withdrawal", time.Now(), &err)
	if !p.Can(models.PermissionWithdrawalApprove) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "rejecting withdrawals requires %s", models.PermissionWithdrawalApprove)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "rejected by approver"
	}

	err = e.WithinUnit(ctx, func(u *Unit) error {
		tx, err := u.repo.LockTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		if err := pendingWithdrawal(tx); err != nil {
			return err
		}
		refund, err = u.failAndRefund(ctx, tx, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("withdrawal rejected",
		zap.String("reference", reference),
		zap.String("reason", reason),
	)
	return refund, nil
}

func pendingWithdrawal(tx *models.Transaction) error {
	if tx.Type != models.TransactionTypeWithdrawal || tx.Status != models.TransactionStatusPending || !tx.RequiresApproval {
		return apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"transaction %s is not a withdrawal awaiting approval", tx.Reference)
	}
	return nil
}
