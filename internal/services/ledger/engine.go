package ledger

import (
	"context"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/events"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/services/fee"
	"walletledger/internal/services/transaction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Deps are the collaborators of an Engine. Only Repo is required.
type Deps struct {
	Repo           repositories.LedgerRepository
	Fees           *fee.Calculator
	Factory        *transaction.Factory
	Publisher      events.Publisher
	Cache          HistoryCache
	Metrics        MetricsCollector
	Logger         *zap.Logger
	AccountNumbers func() string
}

type Engine struct {
	repo           repositories.LedgerRepository
	fees           *fee.Calculator
	factory        *transaction.Factory
	publisher      events.Publisher
	cache          HistoryCache
	metrics        MetricsCollector
	logger         *zap.Logger
	accountNumbers func() string
	config         Config
}

// NewEngine creates a ledger engine
func NewEngine(deps Deps, config Config) *Engine {
	if deps.Repo == nil {
		panic("repo is required")
	}
	if deps.Fees == nil {
		deps.Fees = fee.Default()
	}
	if deps.Factory == nil {
		deps.Factory = transaction.NewFactory(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Cache == nil {
		deps.Cache = noopHistoryCache{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NoopMetricsCollector{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.AccountNumbers == nil {
		deps.AccountNumbers = NewAccountNumber
	}

	if config.BankName == "" {
		config.BankName = "GAX Bank"
	}
	if config.Currency == "" {
		config.Currency = models.DefaultCurrency
	}
	if config.PinCost == 0 {
		config.PinCost = bcrypt.DefaultCost
	}
	if config.AccountOpenRetries <= 0 {
		config.AccountOpenRetries = 5
	}

	return &Engine{
		repo:           deps.Repo,
		fees:           deps.Fees,
		factory:        deps.Factory,
		publisher:      deps.Publisher,
		cache:          deps.Cache,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		accountNumbers: deps.AccountNumbers,
		config:         config,
	}
}

// Fees exposes the calculator so callers can quote before they commit.
func (e *Engine) Fees() *fee.Calculator { return e.fees }

// BankName is the display name of this institution on transfer legs.
func (e *Engine) BankName() string { return e.config.BankName }

// WithinUnit runs fn inside one unit of work. Rows written through the Unit
// commit together; post-commit side effects run only after a successful
// commit.
func (e *Engine) WithinUnit(ctx context.Context, fn func(*Unit) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var unit *Unit
	err := e.repo.ExecuteInTransaction(ctx, func(repo repositories.LedgerRepository) error {
		unit = newUnit(e, repo)
		return fn(unit)
	})
	if err != nil {
		return err
	}
	e.afterCommit(ctx, unit)
	return nil
}

func (e *Engine) afterCommit(ctx context.Context, u *Unit) {
	for _, tx := range u.created {
		e.metrics.RecordTransaction(tx.Type, tx.Status, tx.Amount)
	}
	if len(u.events) > 0 {
		if err := e.publisher.Publish(ctx, u.events...); err != nil {
			e.logger.Warn("failed to publish ledger events",
				zap.Int("count", len(u.events)),
				zap.Error(err),
			)
		}
	}
	if len(u.touched) > 0 {
		ids := make([]uuid.UUID, 0, len(u.touched))
		for id := range u.touched {
			ids = append(ids, id)
		}
		if err := e.cache.Invalidate(ctx, ids...); err != nil {
			e.logger.Warn("failed to invalidate history cache", zap.Error(err))
		}
	}
}

// observe records duration and outcome of an operation. Call it deferred
// with a pointer to the named error result.
func (e *Engine) observe(operation string, start time.Time, errp *error) {
	e.metrics.RecordOperationDuration(operation, time.Since(start))
	result := "ok"
	if errp != nil && *errp != nil {
		result = apperrors.Code(*errp)
		e.logger.Debug("ledger operation failed",
			zap.String("operation", operation),
			zap.String("code", result),
			zap.Error(*errp),
		)
	}
	e.metrics.RecordOperationResult(operation, result)
}

// Credit adds money to a wallet. See Unit.Credit.
func (e *Engine) Credit(ctx context.Context, p models.Principal, req CreditRequest) (tx *models.Transaction, err error) {
	defer e.observe("credit", time.Now(), &err)
	err = e.WithinUnit(ctx, func(u *Unit) error {
		tx, err = u.Credit(ctx, p, req)
		return err
	})
	return tx, err
}

// Debit takes money out of a wallet. See Unit.Debit.
func (e *Engine) Debit(ctx context.Context, p models.Principal, req DebitRequest) (tx *models.Transaction, err error) {
	defer e.observe("debit", time.Now(), &err)
	err = e.WithinUnit(ctx, func(u *Unit) error {
		tx, err = u.Debit(ctx, p, req)
		return err
	})
	return tx, err
}

func (e *Engine) CompleteExternal(ctx context.Context, p models.Principal, reference, externalRef string) (tx *models.Transaction, err error) {
	defer e.observe("complete_external", time.Now(), &err)
	err = e.WithinUnit(ctx, func(u *Unit) error {
		tx, err = u.CompleteExternal(ctx, p, reference, externalRef)
		return err
	})
	return tx, err
}

// FailExternal returns the refund row written for the failed debit.
func (e *Engine) FailExternal(ctx context.Context, p models.Principal, reference, reason string) (refund *models.Transaction, err error) {
	defer e.observe("fail_external", time.Now(), &err)
	err = e.WithinUnit(ctx, func(u *Unit) error {
		refund, err = u.FailExternal(ctx, p, reference, reason)
		return err
	})
	return refund, err
}

func (e *Engine) RecordExternalReference(ctx context.Context, p models.Principal, reference, externalRef string, meta models.JSON) (tx *models.Transaction, err error) {
	defer e.observe("record_external_reference", time.Now(), &err)
	err = e.WithinUnit(ctx, func(u *Unit) error {
		tx, err = u.RecordExternalReference(ctx, p, reference, externalRef, meta)
		return err
	})
	return tx, err
}

// Reverse compensates a completed or failed outbound transaction and returns
// the refund row.
func (e *Engine) Reverse(ctx context.Context, p models.Principal, reference, reason string) (refund *models.Transaction, err error) {
	defer e.observe("reverse", time.Now(), &err)
	err = e.WithinUnit(ctx, func(u *Unit) error {
		refund, err = u.Reverse(ctx, p, reference, reason)
		return err
	})
	return refund, err
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Wrap(apperrors.ErrValidation, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.Wrap(apperrors.ErrValidation, "amount has more than two decimal places")
	}
	return nil
}

func requireSettlementActor(p models.Principal) error {
	if p.System || p.Role == models.RoleAdmin {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrForbidden, "settlement operations are restricted to system actors")
}
