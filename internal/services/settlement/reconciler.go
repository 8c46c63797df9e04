// Package settlement matches asynchronous provider notifications to ledger
// state exactly once, and pushes approved withdrawals out to a payout rail.
package settlement

import (
	"context"
	"errors"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/services/ledger"

	"go.uber.org/zap"
)

const (
	SourceMoniepoint = "moniepoint"
	SourcePaystack   = "paystack"
)

// Source describes one webhook provider.
type Source struct {
	Name     string
	Header   string
	Verifier Verifier
	Parse    Parser
}

// DefaultSources wires the two supported providers. Both sign the raw body
// with HMAC-SHA512.
func DefaultSources(moniepointSecret, paystackSecret string) []Source {
	return []Source{
		{
			Name:     SourceMoniepoint,
			Header:   "X-Moniepoint-Signature",
			Verifier: NewSHA512Verifier(moniepointSecret),
			Parse:    ParseMoniepoint,
		},
		{
			Name:     SourcePaystack,
			Header:   "X-Paystack-Signature",
			Verifier: NewSHA512Verifier(paystackSecret),
			Parse:    ParsePaystack,
		},
	}
}

type Reconciler struct {
	engine  *ledger.Engine
	log     repositories.SettlementStore
	sources map[string]Source
	actor   models.Principal
	logger  *zap.Logger
	metrics MetricsCollector
	now     func() time.Time
}

// NewReconciler builds a reconciler. Webhook log rows are written through
// log outside the settlement unit so that failed deliveries stay recorded.
func NewReconciler(engine *ledger.Engine, log repositories.SettlementStore, sources []Source, logger *zap.Logger, metrics MetricsCollector) *Reconciler {
	if engine == nil || log == nil {
		panic("settlement: engine and log store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	bySource := make(map[string]Source, len(sources))
	for _, s := range sources {
		bySource[s.Name] = s
	}
	return &Reconciler{
		engine:  engine,
		log:     log,
		sources: bySource,
		actor:   models.SystemPrincipal("settlement"),
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SignatureHeader names the header a source signs with.
func (r *Reconciler) SignatureHeader(source string) (string, bool) {
	s, ok := r.sources[source]
	return s.Header, ok
}

// HandleWebhook logs, verifies and applies one provider delivery. Replays of
// an already settled event succeed without touching balances. The returned
// event is the persisted log row.
func (r *Reconciler) HandleWebhook(ctx context.Context, source, signature, ip string, body []byte) (*models.WebhookEvent, error) {
	src, ok := r.sources[source]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "unknown webhook source %q", source)
	}

	n, parseErr := src.Parse(body)
	eventType := n.EventType
	if eventType == "" {
		eventType = "unknown"
	}
	event := &models.WebhookEvent{
		Source:     source,
		EventType:  eventType,
		Payload:    string(body),
		Signature:  signature,
		IPAddress:  ip,
		Status:     models.WebhookStatusReceived,
		ReceivedAt: r.now(),
	}
	if n.ExternalReference != "" {
		ext := n.ExternalReference
		event.ExternalReference = &ext
	}
	if err := r.log.CreateWebhookEvent(ctx, event); err != nil {
		return nil, err
	}

	if !src.Verifier.Verify(body, signature) {
		event.Status = models.WebhookStatusInvalid
		event.ErrorMessage = "invalid signature"
		r.save(ctx, event)
		r.metrics.RecordWebhook(source, "invalid")
		r.logger.Warn("webhook signature rejected",
			zap.String("source", source),
			zap.String("ip", ip),
		)
		return event, apperrors.ErrInvalidSignature
	}
	event.IsVerified = true

	if parseErr != nil || n.Kind == KindUnknown || n.Reference == "" {
		event.Status = models.WebhookStatusProcessed
		if parseErr != nil {
			event.ErrorMessage = "ignored: " + parseErr.Error()
		} else {
			event.ErrorMessage = "ignored: no handler for " + eventType
		}
		r.finish(ctx, event)
		r.metrics.RecordWebhook(source, "ignored")
		return event, nil
	}

	event.Status = models.WebhookStatusProcessing
	r.save(ctx, event)

	txRef, err := r.apply(ctx, n)
	switch {
	case errors.Is(err, apperrors.ErrDuplicateSettlement):
		r.logger.Info("duplicate webhook ignored",
			zap.String("source", source),
			zap.String("event", eventType),
			zap.String("reference", n.Reference),
		)
		r.metrics.RecordWebhook(source, "duplicate")
	case err != nil:
		event.Status = models.WebhookStatusFailed
		event.ErrorMessage = err.Error()
		r.save(ctx, event)
		r.metrics.RecordWebhook(source, "failed")
		r.logger.Error("webhook processing failed",
			zap.String("source", source),
			zap.String("event", eventType),
			zap.String("reference", n.Reference),
			zap.Error(err),
		)
		return event, err
	default:
		r.metrics.RecordWebhook(source, "processed")
		r.logger.Info("webhook settled",
			zap.String("source", source),
			zap.String("event", eventType),
			zap.String("reference", n.Reference),
			zap.String("transaction", txRef),
		)
	}

	event.Status = models.WebhookStatusProcessed
	if txRef != "" {
		event.TransactionReference = &txRef
	}
	r.finish(ctx, event)
	return event, nil
}

func (r *Reconciler) finish(ctx context.Context, event *models.WebhookEvent) {
	processed := r.now()
	event.ProcessedAt = &processed
	r.save(ctx, event)
}

// save updates the log row. The log is an audit trail; failing to write it
// never changes the settlement outcome.
func (r *Reconciler) save(ctx context.Context, event *models.WebhookEvent) {
	if err := r.log.UpdateWebhookEvent(ctx, event); err != nil {
		r.logger.Error("failed to update webhook log",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}

// apply runs the settlement in one unit and returns the reference of the
// transaction it touched. Duplicates return ErrDuplicateSettlement.
func (r *Reconciler) apply(ctx context.Context, n Notification) (string, error) {
	var txRef string
	err := r.engine.WithinUnit(ctx, func(u *ledger.Unit) error {
		var err error
		switch n.Kind {
		case KindPaymentSucceeded:
			txRef, err = r.paymentSucceeded(ctx, u, n)
		case KindPaymentFailed:
			err = r.paymentFailed(ctx, u, n)
		case KindPayoutSucceeded:
			txRef, err = r.payoutSucceeded(ctx, u, n)
		case KindPayoutFailed:
			txRef, err = r.payoutFailed(ctx, u, n)
		}
		return err
	})
	return txRef, err
}

func duplicate(format string, args ...interface{}) error {
	return apperrors.Wrap(apperrors.ErrDuplicateSettlement, format, args...)
}

func (r *Reconciler) paymentSucceeded(ctx context.Context, u *ledger.Unit, n Notification) (string, error) {
	p, err := u.Repo().LockGatewayPayment(ctx, n.Reference)
	if err != nil {
		return "", err
	}
	if p.Status.Terminal() {
		return "", duplicate("payment %s already %s", p.Reference, p.Status)
	}
	if !n.Amount.IsZero() && !n.Amount.Equal(p.Amount) {
		return "", apperrors.Wrap(apperrors.ErrValidation,
			"payment %s amount mismatch: expected %s, got %s", p.Reference, p.Amount.StringFixed(2), n.Amount.StringFixed(2))
	}

	credit, err := u.Credit(ctx, r.actor, ledger.CreditRequest{
		WalletID:          p.WalletID,
		Amount:            p.NetAmount,
		Type:              models.TransactionTypePayment,
		Description:       "Payment: " + p.Reference,
		ExternalReference: n.ExternalReference,
		Metadata: models.JSON{
			models.MetaPaymentReference: p.Reference,
		},
	})
	if err != nil {
		return "", err
	}

	paid := r.now()
	p.Status = models.PaymentStatusSuccessful
	p.PaidAt = &paid
	p.TransactionReference = &credit.Reference
	if n.ExternalReference != "" {
		ext := n.ExternalReference
		p.ExternalReference = &ext
	}
	if err := u.Repo().UpdateGatewayPayment(ctx, p); err != nil {
		return "", err
	}
	return credit.Reference, nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, u *ledger.Unit, n Notification) error {
	p, err := u.Repo().LockGatewayPayment(ctx, n.Reference)
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		return duplicate("payment %s already %s", p.Reference, p.Status)
	}
	p.Status = models.PaymentStatusFailed
	if n.ExternalReference != "" {
		ext := n.ExternalReference
		p.ExternalReference = &ext
	}
	return u.Repo().UpdateGatewayPayment(ctx, p)
}

func (r *Reconciler) lockPayout(ctx context.Context, u *ledger.Unit, n Notification) (*models.Transaction, error) {
	tx, err := u.Repo().LockTransactionByReference(ctx, n.Reference)
	if err != nil {
		return nil, err
	}
	if tx.Type.Inbound() {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "transaction %s is not a payout", tx.Reference)
	}
	if !n.Amount.IsZero() && !n.Amount.Equal(tx.Amount) {
		return nil, apperrors.Wrap(apperrors.ErrValidation,
			"payout %s amount mismatch: expected %s, got %s", tx.Reference, tx.Amount.StringFixed(2), n.Amount.StringFixed(2))
	}
	return tx, nil
}

func (r *Reconciler) payoutSucceeded(ctx context.Context, u *ledger.Unit, n Notification) (string, error) {
	tx, err := r.lockPayout(ctx, u, n)
	if err != nil {
		return "", err
	}
	switch tx.Status {
	case models.TransactionStatusProcessing:
		if _, err := u.CompleteExternal(ctx, r.actor, tx.Reference, n.ExternalReference); err != nil {
			return "", err
		}
		return tx.Reference, nil
	case models.TransactionStatusPending:
		return "", apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"payout %s reported paid before approval", tx.Reference)
	default:
		return tx.Reference, duplicate("payout %s already %s", tx.Reference, tx.Status)
	}
}

// payoutFailed refunds a processing payout. A failure reported after the
// payout completed is a bounce and is reversed instead.
func (r *Reconciler) payoutFailed(ctx context.Context, u *ledger.Unit, n Notification) (string, error) {
	tx, err := r.lockPayout(ctx, u, n)
	if err != nil {
		return "", err
	}
	reason := firstNonEmpty(n.Reason, "payout failed")
	switch tx.Status {
	case models.TransactionStatusProcessing:
		if _, err := u.FailExternal(ctx, r.actor, tx.Reference, reason); err != nil {
			return "", err
		}
		return tx.Reference, nil
	case models.TransactionStatusCompleted:
		if _, err := u.Reverse(ctx, r.actor, tx.Reference, "late payout failure: "+reason); err != nil {
			return "", err
		}
		return tx.Reference, nil
	case models.TransactionStatusPending:
		return "", apperrors.Wrap(apperrors.ErrInvalidTransactionState,
			"payout %s reported failed before approval", tx.Reference)
	default:
		return tx.Reference, duplicate("payout %s already %s", tx.Reference, tx.Status)
	}
}
