package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/services/fee"
	"walletledger/internal/services/transaction"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transfer moves Amount from the caller's wallet to the wallet with
// RecipientAccount. The sender pays the transfer fee. Both legs are written
// in one unit.
func (e *Engine) Transfer(ctx context.Context, p models.Principal, req TransferRequest) (result *TransferResult, err error) {
	defer e.observe("transfer", time.Now(), &err)

	charge, err := e.fees.Quote(fee.OperationTransfer, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.verifyPin(ctx, p, req.Pin); err != nil {
		return nil, err
	}

	sender, err := e.sourceWallet(ctx, p, req.SourceWalletID)
	if err != nil {
		return nil, err
	}
	recipient, err := e.repo.FindWalletByAccountNumber(ctx, strings.TrimSpace(req.RecipientAccount))
	if err != nil {
		if errors.Is(err, apperrors.ErrWalletNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrRecipientNotFound, "no wallet with account number %s", req.RecipientAccount)
		}
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, apperrors.ErrSelfTransfer
	}

	err = e.WithinUnit(ctx, func(u *Unit) error {
		locked, err := u.repo.LockWallets(ctx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		from, to := locked[sender.ID], locked[recipient.ID]
		if !p.Owns(from) {
			return apperrors.Wrap(apperrors.ErrForbidden, "wallet %s does not belong to the caller", from.AccountNumber)
		}
		if err := debitable(from); err != nil {
			return err
		}
		if !to.IsActive {
			return apperrors.Wrap(apperrors.ErrRecipientNotFound, "account %s is not active", to.AccountNumber)
		}

		senderName, recipientName := e.ownerName(ctx, u, from), e.ownerName(ctx, u, to)
		correlation := uuid.NewString()

		debit := e.factory.New(transaction.Spec{
			Wallet:           from,
			Type:             models.TransactionTypeTransfer,
			Amount:           req.Amount,
			Fee:              charge,
			Status:           models.TransactionStatusCompleted,
			Description:      transferDescription("Transfer to", recipientName, to.AccountNumber, req.Narration),
			RecipientAccount: to.AccountNumber,
			RecipientName:    recipientName,
			RecipientBank:    e.config.BankName,
			Metadata: models.JSON{
				models.MetaCorrelationID: correlation,
				models.MetaNarration:     req.Narration,
			},
		})
		credit := e.factory.New(transaction.Spec{
			Wallet:           to,
			Type:             models.TransactionTypeDeposit,
			Amount:           req.Amount,
			Status:           models.TransactionStatusCompleted,
			RecipientAccount: from.AccountNumber,
			RecipientName:    senderName,
			RecipientBank:    e.config.BankName,
			Metadata: models.JSON{
				models.MetaCorrelationID:   correlation,
				models.MetaSenderReference: debit.Reference,
				models.MetaNarration:       req.Narration,
			},
		})
		credit.Description = fmt.Sprintf("%s (ref %s)",
			transferDescription("Transfer from", senderName, from.AccountNumber, req.Narration), debit.Reference)
		debit.Metadata[models.MetaCounterpartReference] = credit.Reference
		credit.Metadata[models.MetaCounterpartReference] = debit.Reference

		if err := u.post(ctx, from, debit, true); err != nil {
			return err
		}
		if err := u.post(ctx, to, credit, true); err != nil {
			return err
		}
		result = &TransferResult{Debit: debit, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("transfer completed",
		zap.String("reference", result.Debit.Reference),
		zap.String("credit_reference", result.Credit.Reference),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	return result, nil
}

// sourceWallet resolves the wallet a principal sends from. Only system
// principals may name an arbitrary wallet.
func (e *Engine) sourceWallet(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Wallet, error) {
	if id != uuid.Nil {
		w, err := e.repo.GetWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		if !p.Owns(w) {
			return nil, apperrors.Wrap(apperrors.ErrForbidden, "wallet %s does not belong to the caller", w.AccountNumber)
		}
		return w, nil
	}
	return e.repo.GetWalletByOwner(ctx, p.UserID)
}

func (e *Engine) ownerName(ctx context.Context, u *Unit, w *models.Wallet) string {
	user, err := u.repo.GetUserByID(ctx, w.OwnerID)
	if err != nil {
		return ""
	}
	return user.Name
}

func transferDescription(prefix, name, account, narration string) string {
	party := account
	if name != "" {
		party = name + " (" + account + ")"
	}
	if narration != "" {
		return prefix + " " + party + ": " + narration
	}
	return prefix + " " + party
}
