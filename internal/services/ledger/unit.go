package ledger

import (
	"context"
	"errors"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/events"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/services/transaction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Unit is one open unit of work. Its methods lock what they touch, so they
// can be combined with caller-held record locks; the caller must take its
// own record locks before calling a method that locks wallets.
type Unit struct {
	engine  *Engine
	repo    repositories.LedgerRepository
	created []*models.Transaction
	events  []events.LedgerEvent
	touched map[uuid.UUID]struct{}
}

func newUnit(e *Engine, repo repositories.LedgerRepository) *Unit {
	return &Unit{engine: e, repo: repo, touched: make(map[uuid.UUID]struct{})}
}

// Repo is the store bound to this unit.
func (u *Unit) Repo() repositories.LedgerRepository { return u.repo }

func (u *Unit) recordCreated(tx *models.Transaction) {
	u.created = append(u.created, tx)
	u.events = append(u.events, events.FromTransaction(events.TypeTransactionCreated, tx))
	if tx.WalletID != nil {
		u.touched[*tx.WalletID] = struct{}{}
	}
}

func (u *Unit) recordUpdated(tx *models.Transaction) {
	u.events = append(u.events, events.FromTransaction(events.TypeTransactionUpdated, tx))
	if tx.WalletID != nil {
		u.touched[*tx.WalletID] = struct{}{}
	}
}

func (u *Unit) lockWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	locked, err := u.repo.LockWallets(ctx, id)
	if err != nil {
		return nil, err
	}
	return locked[id], nil
}

func debitable(w *models.Wallet) error {
	if w.IsFrozen {
		return apperrors.Wrap(apperrors.ErrWalletFrozen, "wallet %s is frozen", w.AccountNumber)
	}
	if !w.IsActive {
		return apperrors.Wrap(apperrors.ErrWalletInactive, "wallet %s is not active", w.AccountNumber)
	}
	return nil
}

// post applies tx to the locked wallet w and persists it. Outbound rows
// lower the balance by TotalAmount, inbound rows raise it. When posted is
// false LedgerBalance is left alone. w is refreshed with the new balances.
func (u *Unit) post(ctx context.Context, w *models.Wallet, tx *models.Transaction, posted bool) error {
	delta := tx.TotalAmount
	if !tx.Type.Inbound() {
		delta = delta.Neg()
		if w.Balance.LessThan(tx.TotalAmount) {
			return apperrors.Wrap(apperrors.ErrInsufficientFunds,
				"balance %s does not cover %s", w.Balance.StringFixed(2), tx.TotalAmount.StringFixed(2))
		}
	}
	ledgerDelta := decimal.Zero
	if posted {
		ledgerDelta = delta
	}

	updated, err := u.repo.ApplyDelta(ctx, w.ID, delta, ledgerDelta)
	if err != nil {
		return err
	}
	tx.BalanceBefore = w.Balance
	tx.BalanceAfter = updated.Balance
	if err := u.repo.CreateTransaction(ctx, tx); err != nil {
		return err
	}
	*w = *updated
	u.recordCreated(tx)
	return nil
}

// Credit adds Amount to a wallet as a completed inbound row with no fee.
// Frozen wallets accept credits.
func (u *Unit) Credit(ctx context.Context, p models.Principal, req CreditRequest) (*models.Transaction, error) {
	if !p.Can(models.PermissionLedgerCredit) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "crediting wallets requires %s", models.PermissionLedgerCredit)
	}
	if req.Type == "" {
		req.Type = models.TransactionTypeDeposit
	}
	if !req.Type.Inbound() {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "%s is not a credit type", req.Type)
	}
	if err := validAmount(req.Amount); err != nil {
		return nil, err
	}

	w, err := u.lockWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	tx := u.engine.factory.New(transaction.Spec{
		Wallet:      w,
		Type:        req.Type,
		Amount:      req.Amount,
		Status:      models.TransactionStatusCompleted,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if req.ExternalReference != "" {
		ext := req.ExternalReference
		tx.ExternalReference = &ext
	}
	if err := u.post(ctx, w, tx, true); err != nil {
		return nil, err
	}
	return tx, nil
}

// Debit takes Amount plus Fee out of a wallet the principal owns. In
// SettleImmediate mode the row is completed and posted; in SettleExternal
// mode it is left processing with only the spendable balance lowered.
func (u *Unit) Debit(ctx context.Context, p models.Principal, req DebitRequest) (*models.Transaction, error) {
	if req.Type == "" || req.Type.Inbound() || !req.Type.Valid() {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "%q is not a debit type", req.Type)
	}
	if err := validAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Fee.IsNegative() {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "fee cannot be negative")
	}

	w, err := u.lockWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if !p.Owns(w) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "wallet %s does not belong to the caller", w.AccountNumber)
	}
	if err := debitable(w); err != nil {
		return nil, err
	}

	status := models.TransactionStatusCompleted
	if req.Settlement == SettleExternal {
		status = models.TransactionStatusProcessing
	}
	tx := u.engine.factory.New(transaction.Spec{
		Wallet:           w,
		Type:             req.Type,
		Amount:           req.Amount,
		Fee:              req.Fee,
		Status:           status,
		Description:      req.Description,
		Metadata:         req.Metadata,
		RecipientAccount: req.RecipientAccount,
		RecipientName:    req.RecipientName,
		RecipientBank:    req.RecipientBank,
	})
	if err := u.post(ctx, w, tx, req.Settlement == SettleImmediate); err != nil {
		return nil, err
	}
	return tx, nil
}

// CompleteExternal settles a processing debit: processing -> completed, and
// the held total posts to LedgerBalance.
func (u *Unit) CompleteExternal(ctx context.Context, p models.Principal, reference, externalRef string) (*models.Transaction, error) {
	if err := requireSettlementActor(p); err != nil {
		return nil, err
	}
	tx, err := u.repo.LockTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.Type.Inbound() || tx.WalletID == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransactionState, "transaction %s is not an external debit", reference)
	}
	if err := transaction.Transition(tx, models.TransactionStatusCompleted, u.engine.factory.Now()); err != nil {
		return nil, err
	}
	if _, err := u.lockWallet(ctx, *tx.WalletID); err != nil {
		return nil, err
	}
	if _, err := u.repo.ApplyDelta(ctx, *tx.WalletID, decimal.Zero, tx.TotalAmount.Neg()); err != nil {
		return nil, err
	}
	if externalRef != "" {
		ext := externalRef
		tx.ExternalReference = &ext
	}
	if err := u.repo.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	u.recordUpdated(tx)
	return tx, nil
}

// FailExternal marks a pending or processing debit failed and returns the
// held total to the wallet in a refund row.
func (u *Unit) FailExternal(ctx context.Context, p models.Principal, reference, reason string) (*models.Transaction, error) {
	if err := requireSettlementActor(p); err != nil {
		return nil, err
	}
	tx, err := u.repo.LockTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.Type.Inbound() || tx.WalletID == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransactionState, "transaction %s is not an external debit", reference)
	}
	return u.failAndRefund(ctx, tx, reason)
}

// failAndRefund expects tx to be locked by the caller.
func (u *Unit) failAndRefund(ctx context.Context, tx *models.Transaction, reason string) (*models.Transaction, error) {
	posted := tx.Posted()
	if err := transaction.Transition(tx, models.TransactionStatusFailed, u.engine.factory.Now()); err != nil {
		return nil, err
	}
	if reason != "" {
		tx.Metadata = tx.Metadata.Clone()
		tx.Metadata[models.MetaReason] = reason
	}
	if err := u.repo.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	u.recordUpdated(tx)

	w, err := u.lockWallet(ctx, *tx.WalletID)
	if err != nil {
		return nil, err
	}
	return u.refund(ctx, w, tx, reason, posted)
}

// refund writes the compensating credit of original onto the locked wallet w.
func (u *Unit) refund(ctx context.Context, w *models.Wallet, original *models.Transaction, reason string, posted bool) (*models.Transaction, error) {
	description := "Refund for " + original.Reference
	if reason != "" {
		description += ": " + reason
	}
	meta := models.JSON{models.MetaOriginalReference: original.Reference}
	if reason != "" {
		meta[models.MetaReason] = reason
	}
	tx := u.engine.factory.New(transaction.Spec{
		Wallet:      w,
		Type:        models.TransactionTypeRefund,
		Amount:      original.TotalAmount,
		Status:      models.TransactionStatusCompleted,
		Description: description,
		Metadata:    meta,
		ReversesRef: original.Reference,
	})
	if err := u.post(ctx, w, tx, posted); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateReference) {
			return nil, apperrors.Wrap(apperrors.ErrAlreadyReversed, "transaction %s already compensated", original.Reference)
		}
		return nil, err
	}
	return tx, nil
}

// RecordExternalReference stores the provider reference of a submitted
// payout. meta is merged into the row's metadata.
func (u *Unit) RecordExternalReference(ctx context.Context, p models.Principal, reference, externalRef string, meta models.JSON) (*models.Transaction, error) {
	if err := requireSettlementActor(p); err != nil {
		return nil, err
	}
	if externalRef == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "external reference is required")
	}
	tx, err := u.repo.LockTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.TransactionStatusProcessing {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"transaction %s is %s, not processing", reference, tx.Status)
	}
	if tx.ExternalReference != nil && *tx.ExternalReference != externalRef {
		return nil, apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"transaction %s already submitted as %s", reference, *tx.ExternalReference)
	}
	ext := externalRef
	tx.ExternalReference = &ext
	tx.Metadata = tx.Metadata.Clone()
	for k, v := range meta {
		tx.Metadata[k] = v
	}
	tx.UpdatedAt = u.engine.factory.Now()
	if err := u.repo.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	u.recordUpdated(tx)
	return tx, nil
}
