package ledger

import (
	"context"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"

	"github.com/google/uuid"
)

func canRead(p models.Principal, ownerID uuid.UUID) bool {
	return p.System || (p.UserID != uuid.Nil && p.UserID == ownerID) || p.Can(models.PermissionTransactionAudit)
}

// Wallet returns a wallet to its owner or to an auditor.
func (e *Engine) Wallet(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Wallet, error) {
	w, err := e.repo.GetWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(p, w.OwnerID) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "wallet %s does not belong to the caller", id)
	}
	return w, nil
}

// WalletForOwner returns the caller's own wallet.
func (e *Engine) WalletForOwner(ctx context.Context, p models.Principal) (*models.Wallet, error) {
	return e.repo.GetWalletByOwner(ctx, p.UserID)
}

// Transaction returns one transaction by reference.
func (e *Engine) Transaction(ctx context.Context, p models.Principal, reference string) (*models.Transaction, error) {
	tx, err := e.repo.FindTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !canRead(p, tx.OwnerID) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "transaction %s does not belong to the caller", reference)
	}
	return tx, nil
}

// History lists a wallet's transactions newest first. The default first
// page is served from the history cache when present.
func (e *Engine) History(ctx context.Context, p models.Principal, walletID uuid.UUID, page, size int) (*HistoryPage, error) {
	if _, err := e.Wallet(ctx, p, walletID); err != nil {
		return nil, err
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	page, offset := repositories.PageOffset(page, size)

	cacheable := page == 1 && size == DefaultPageSize
	var generation int64
	if cacheable {
		cached, gen, ok := e.cache.Get(ctx, walletID)
		if ok {
			e.metrics.RecordCacheHit("history")
			return cached, nil
		}
		e.metrics.RecordCacheMiss("history")
		generation = gen
	}

	items, total, err := e.repo.ListTransactions(ctx, repositories.TransactionFilter{
		WalletID: &walletID,
		Limit:    size,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}
	result := &HistoryPage{Items: items, Total: total, Page: page, Size: size}
	if cacheable {
		e.cache.Set(ctx, walletID, generation, result)
	}
	return result, nil
}

// ListTransactions is the filtered listing used by back-office views.
func (e *Engine) ListTransactions(ctx context.Context, p models.Principal, filter repositories.TransactionFilter) ([]models.Transaction, int64, error) {
	if !p.Can(models.PermissionTransactionAudit) {
		return nil, 0, apperrors.Wrap(apperrors.ErrForbidden, "listing transactions requires %s", models.PermissionTransactionAudit)
	}
	if filter.Limit <= 0 || filter.Limit > MaxPageSize {
		filter.Limit = DefaultPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if last := repositories.MaxPage * filter.Limit; filter.Offset > last {
		filter.Offset = last
	}
	return e.repo.ListTransactions(ctx, filter)
}
