package ledger

import (
	"context"
	"strings"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/events"
	"walletledger/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Freeze blocks debits on a wallet. Credits keep landing.
func (e *Engine) Freeze(ctx context.Context, p models.Principal, walletID uuid.UUID, reason string) (w *models.Wallet, err error) {
	defer e.observe("freeze", time.Now(), &err)
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "a freeze reason is required")
	}
	return e.setFrozen(ctx, p, walletID, true, reason)
}

func (e *Engine) Unfreeze(ctx context.Context, p models.Principal, walletID uuid.UUID) (w *models.Wallet, err error) {
	defer e.observe("unfreeze", time.Now(), &err)
	return e.setFrozen(ctx, p, walletID, false, "")
}

func (e *Engine) setFrozen(ctx context.Context, p models.Principal, walletID uuid.UUID, frozen bool, reason string) (*models.Wallet, error) {
	if !p.Can(models.PermissionWalletFreeze) {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, "changing wallet status requires %s", models.PermissionWalletFreeze)
	}
	var w *models.Wallet
	err := e.WithinUnit(ctx, func(u *Unit) error {
		var err error
		w, err = u.lockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		if w.IsFrozen == frozen {
			return nil
		}
		w.IsFrozen = frozen
		w.FreezeReason = reason
		w.UpdatedAt = e.factory.Now()
		if err := u.repo.UpdateWalletStatus(ctx, w); err != nil {
			return err
		}
		u.events = append(u.events, events.FromWallet(w, reason))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("wallet status changed",
		zap.String("wallet_id", walletID.String()),
		zap.Bool("frozen", frozen),
		zap.String("actor", p.Name),
	)
	return w, nil
}
