package settlement

import (
	"context"
	"errors"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/services/ledger"
	"walletledger/internal/services/payout"

	"go.uber.org/zap"
)

const DefaultBatchSize = 100

// Dispatcher submits approved withdrawals to a payout rail and polls the
// rail for ones still in flight. Rail calls never run inside a unit of work.
type Dispatcher struct {
	engine    *ledger.Engine
	store     repositories.TransactionStore
	rail      payout.Rail
	actor     models.Principal
	logger    *zap.Logger
	metrics   MetricsCollector
	batchSize int
}

func NewDispatcher(engine *ledger.Engine, store repositories.TransactionStore, rail payout.Rail, logger *zap.Logger, metrics MetricsCollector) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	return &Dispatcher{
		engine:    engine,
		store:     store,
		rail:      rail,
		actor:     models.SystemPrincipal("dispatcher"),
		logger:    logger,
		metrics:   metrics,
		batchSize: DefaultBatchSize,
	}
}

// SetBatchSize caps how many rows one run picks up.
func (d *Dispatcher) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// DispatchStats counts the outcomes of one run.
type DispatchStats struct {
	Submitted int
	Completed int
	Failed    int
	Deferred  int
}

func (d *Dispatcher) inFlight(ctx context.Context, submitted bool) ([]models.Transaction, error) {
	rows, _, err := d.store.ListTransactions(ctx, repositories.TransactionFilter{
		Type:           models.TransactionTypeWithdrawal,
		Status:         models.TransactionStatusProcessing,
		HasExternalRef: &submitted,
		Limit:          d.batchSize,
		OldestFirst:    true,
	})
	return rows, err
}

// DispatchApproved submits every approved withdrawal that has not reached
// the rail yet. Transport errors leave the row for the next run.
func (d *Dispatcher) DispatchApproved(ctx context.Context) (DispatchStats, error) {
	var stats DispatchStats
	rows, err := d.inFlight(ctx, false)
	if err != nil {
		return stats, err
	}

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		tx := &rows[i]
		res, err := d.rail.InitiateTransfer(ctx, payout.TransferRequest{
			Reference:     tx.Reference,
			Amount:        tx.Amount,
			Currency:      tx.Currency,
			BankCode:      tx.MetaString(models.MetaBankCode),
			AccountNumber: tx.RecipientAccount,
			AccountName:   tx.RecipientName,
			Narration:     firstNonEmpty(tx.MetaString(models.MetaNarration), tx.Description),
		})
		if err != nil {
			stats.Deferred++
			d.metrics.RecordPayout(d.rail.Name(), "dispatch", "deferred")
			d.logger.Warn("payout submission deferred",
				zap.String("reference", tx.Reference),
				zap.Error(err),
			)
			continue
		}
		d.settle(ctx, "dispatch", tx, res, &stats)
	}
	return stats, nil
}

// Requery asks the rail about every submitted withdrawal still processing.
func (d *Dispatcher) Requery(ctx context.Context) (DispatchStats, error) {
	var stats DispatchStats
	rows, err := d.inFlight(ctx, true)
	if err != nil {
		return stats, err
	}

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		tx := &rows[i]
		res, err := d.rail.QueryTransfer(ctx, *tx.ExternalReference)
		if err != nil {
			stats.Deferred++
			d.metrics.RecordPayout(d.rail.Name(), "requery", "deferred")
			d.logger.Warn("payout requery failed",
				zap.String("reference", tx.Reference),
				zap.Error(err),
			)
			continue
		}
		if res.Status == payout.StatusPending {
			stats.Deferred++
			continue
		}
		d.settle(ctx, "requery", tx, res, &stats)
	}
	return stats, nil
}

func (d *Dispatcher) settle(ctx context.Context, stage string, tx *models.Transaction, res *payout.Result, stats *DispatchStats) {
	var err error
	outcome := "submitted"
	switch res.Status {
	case payout.StatusSuccessful:
		outcome = "completed"
		_, err = d.engine.CompleteExternal(ctx, d.actor, tx.Reference, res.ExternalReference)
	case payout.StatusFailed:
		outcome = "failed"
		_, err = d.engine.FailExternal(ctx, d.actor, tx.Reference, firstNonEmpty(res.Message, "payout rejected"))
	default:
		if res.ExternalReference == "" {
			stats.Deferred++
			d.logger.Warn("rail accepted payout without a reference", zap.String("reference", tx.Reference))
			return
		}
		_, err = d.engine.RecordExternalReference(ctx, d.actor, tx.Reference, res.ExternalReference, models.JSON{
			models.MetaPayoutStatus: string(res.Status),
			"payout_rail":           d.rail.Name(),
		})
	}

	if err != nil {
		stats.Deferred++
		if errors.Is(err, apperrors.ErrInvalidTransactionState) {
			// A webhook settled the row between the list and this call.
			d.logger.Info("payout already settled",
				zap.String("reference", tx.Reference),
				zap.String("stage", stage),
			)
			return
		}
		d.metrics.RecordPayout(d.rail.Name(), stage, "error")
		d.logger.Error("failed to record payout outcome",
			zap.String("reference", tx.Reference),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return
	}

	d.metrics.RecordPayout(d.rail.Name(), stage, outcome)
	switch outcome {
	case "completed":
		stats.Completed++
	case "failed":
		stats.Failed++
	default:
		stats.Submitted++
	}
	d.logger.Info("payout updated",
		zap.String("reference", tx.Reference),
		zap.String("stage", stage),
		zap.String("outcome", outcome),
		zap.String("external_reference", res.ExternalReference),
	)
}
