// Package payment starts inbound gateway payments. The wallet is credited
// later, by the settlement reconciler, when the provider confirms.
package payment

import (
	"context"
	"net/url"
	"strings"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/services/fee"
	"walletledger/internal/services/transaction"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultAbandonAfter = time.Hour

var minimumAmount = decimal.NewFromInt(100)

type Service struct {
	repo        repositories.LedgerRepository
	fees        *fee.Calculator
	checkoutURL string
	providers   map[string]bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a payment service. checkoutURL is the provider's
// hosted page; the payment reference is appended as a query parameter.
func NewService(repo repositories.LedgerRepository, fees *fee.Calculator, checkoutURL string, logger *zap.Logger) *Service {
	if fees == nil {
		fees = fee.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		fees:        fees,
		checkoutURL: checkoutURL,
		providers:   map[string]bool{"paystack": true, "moniepoint": true},
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Initiate quotes the gateway fee and records a pending payment for the
// caller's own wallet.
func (s *Service) Initiate(ctx context.Context, p models.Principal, amount decimal.Decimal, provider string) (*models.GatewayPayment, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "paystack"
	}
	if !s.providers[provider] {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "unsupported payment provider %q", provider)
	}
	if amount.LessThan(minimumAmount) {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "minimum payment is %s", minimumAmount.StringFixed(2))
	}
	charge, err := s.fees.Quote(fee.OperationGateway, amount)
	if err != nil {
		return nil, err
	}

	w, err := s.repo.GetWalletByOwner(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !w.IsActive {
		return nil, apperrors.Wrap(apperrors.ErrWalletInactive, "wallet %s cannot receive payments", w.AccountNumber)
	}

	ref := transaction.NewPaymentReference()
	payment := &models.GatewayPayment{
		OwnerID:     p.UserID,
		WalletID:    w.ID,
		Reference:   ref,
		Provider:    provider,
		Amount:      amount,
		Fee:         charge,
		NetAmount:   amount.Sub(charge),
		Currency:    w.Currency,
		Status:      models.PaymentStatusPending,
		CheckoutURL: s.checkout(ref),
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateGatewayPayment(ctx, payment); err != nil {
		return nil, err
	}
	s.logger.Info("gateway payment initiated",
		zap.String("reference", ref),
		zap.String("provider", provider),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("fee", charge.StringFixed(2)),
	)
	return payment, nil
}

func (s *Service) checkout(ref string) string {
	if s.checkoutURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.checkoutURL, "?") {
		sep = "&"
	}
	return s.checkoutURL + sep + "reference=" + url.QueryEscape(ref)
}

// Get returns a payment the caller owns.
func (s *Service) Get(ctx context.Context, p models.Principal, reference string) (*models.GatewayPayment, error) {
	payment, err := s.repo.FindGatewayPayment(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.OwnerID != p.UserID && !p.Can(models.PermissionTransactionAudit) {
		return nil, apperrors.ErrPaymentNotFound
	}
	return payment, nil
}

// AbandonStale marks pending payments older than age as abandoned. A late
// success for an abandoned payment is ignored by the reconciler.
func (s *Service) AbandonStale(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		age = DefaultAbandonAfter
	}
	n, err := s.repo.AbandonStalePayments(ctx, s.now().Add(-age))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("abandoned stale payments", zap.Int64("count", n))
	}
	return n, nil
}
