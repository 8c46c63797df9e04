// Package bills buys airtime, data, TV subscriptions and electricity from a
// biller, paying out of the customer's wallet.
package bills

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories"
	"walletledger/internal/services/ledger"
	"walletledger/internal/services/transaction"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	// StatusPending means the biller may or may not have delivered; the
	// debit stays in processing until Requery learns the outcome.
	StatusPending = "pending"
)

// StatusPath is the biller endpoint that reports the outcome of a request id.
const StatusPath = "/transactions/status"

type PurchaseRequest struct {
	Category  string
	Provider  string
	Customer  string
	PlanCode  string
	MeterType string
	Amount    decimal.Decimal
	Pin       string
}

type Receipt struct {
	Transaction *models.Transaction
	Bill        *models.BillPayment
}

type Service struct {
	engine  *ledger.Engine
	store   repositories.SettlementStore
	client  BillerClient
	catalog map[string]Category
	actor   models.Principal
	logger  *zap.Logger
}

func NewService(engine *ledger.Engine, store repositories.SettlementStore, client BillerClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:  engine,
		store:   store,
		client:  client,
		catalog: DefaultCatalog(),
		actor:   models.SystemPrincipal("bills"),
		logger:  logger,
	}
}

// Categories lists the category names in a stable order.
func (s *Service) Categories() []string {
	names := make([]string, 0, len(s.catalog))
	for name := range s.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type quote struct {
	category Category
	amount   decimal.Decimal
	fee      decimal.Decimal
	plan     Plan
}

func (s *Service) price(req PurchaseRequest) (*quote, error) {
	cat, ok := s.catalog[req.Category]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "unknown bill category %q", req.Category)
	}
	if _, ok := cat.Providers[req.Provider]; !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "unknown %s provider %q", cat.Name, req.Provider)
	}
	if strings.TrimSpace(req.Customer) == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "%s is required", cat.CustomerField)
	}
	if cat.Phone && !nigerianPhone.MatchString(req.Customer) {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid Nigerian phone number")
	}
	if len(cat.MeterTypes) > 0 && !contains(cat.MeterTypes, req.MeterType) {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "meter type must be one of %s", strings.Join(cat.MeterTypes, ", "))
	}

	q := &quote{category: cat, amount: req.Amount}
	if cat.PlanPriced() {
		plan, ok := cat.Plan(req.Provider, req.PlanCode)
		if !ok {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid %s plan %q", cat.Name, req.PlanCode)
		}
		q.plan, q.amount = plan, plan.Amount
	} else {
		if !cat.Min.IsZero() && q.amount.LessThan(cat.Min) {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "minimum %s amount is %s", cat.Name, cat.Min.StringFixed(2))
		}
		if !cat.Max.IsZero() && q.amount.GreaterThan(cat.Max) {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "maximum %s amount is %s", cat.Name, cat.Max.StringFixed(2))
		}
	}

	charge, err := s.engine.Fees().Quote(cat.Operation, q.amount)
	if err != nil {
		return nil, err
	}
	q.fee = charge
	return q, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Purchase debits the wallet in external mode, calls the biller, then
// settles or refunds. A biller failure returns ErrBillFailed after the
// refund has committed. When delivery is unknown the debit is kept and the
// receipt carries a pending bill.
func (s *Service) Purchase(ctx context.Context, p models.Principal, req PurchaseRequest) (*Receipt, error) {
	q, err := s.price(req)
	if err != nil {
		return nil, err
	}
	cat := q.category
	if err := s.engine.VerifyPin(ctx, p, req.Pin); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"provider":        req.Provider,
		cat.CustomerField: req.Customer,
	}
	if req.MeterType != "" {
		payload["meter_type"] = req.MeterType
	}

	customerName := ""
	if cat.Validated() {
		resp, err := s.client.Call(ctx, cat.ValidatePath, payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrBillFailed, "could not validate %s: %v", cat.CustomerField, err)
		}
		if !resp.Status {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid %s", strings.ReplaceAll(cat.CustomerField, "_", " "))
		}
		customerName = resp.CustomerName
	}

	w, err := s.engine.WalletForOwner(ctx, p)
	if err != nil {
		return nil, err
	}

	meta := models.JSON{
		"provider":        req.Provider,
		cat.CustomerField: req.Customer,
	}
	description := strings.ToUpper(cat.Name[:1]) + cat.Name[1:] + " - " + strings.ToUpper(req.Provider)
	if q.plan.Name != "" {
		meta["plan_code"] = req.PlanCode
		meta["plan_name"] = q.plan.Name
		description += " " + q.plan.Name
	}
	if customerName != "" {
		meta["customer_name"] = customerName
	}
	if req.MeterType != "" {
		meta["meter_type"] = req.MeterType
	}

	tx, err := s.engine.Debit(ctx, p, ledger.DebitRequest{
		WalletID:    w.ID,
		Amount:      q.amount,
		Fee:         q.fee,
		Type:        cat.Type,
		Description: description,
		Metadata:    meta,
		Settlement:  ledger.SettleExternal,
	})
	if err != nil {
		return nil, err
	}

	requestID := transaction.NewBillReference()
	payload["reference"] = tx.Reference
	payload["request_id"] = requestID
	if cat.PlanPriced() {
		payload["plan_code"] = req.PlanCode
	} else {
		payload["amount"] = q.amount.StringFixed(2)
	}
	payload["provider"] = cat.Providers[req.Provider]

	bill := &models.BillPayment{
		OwnerID:              p.UserID,
		TransactionReference: tx.Reference,
		RequestID:            requestID,
		Category:             cat.Name,
		Provider:             req.Provider,
		Amount:               q.amount,
		Customer:             req.Customer,
		CustomerName:         customerName,
		PlanCode:             req.PlanCode,
		CreatedAt:            time.Now().UTC(),
	}

	resp, callErr := s.client.Call(ctx, cat.PurchasePath, payload)
	if callErr == nil && resp.Status {
		bill.Status = StatusCompleted
		bill.Token = resp.Token
		bill.ResponseData = models.JSON(resp.Raw)
		settled, err := s.engine.CompleteExternal(ctx, s.actor, tx.Reference, resp.Reference)
		if err != nil {
			return nil, err
		}
		s.record(ctx, bill)
		s.logger.Info("bill paid",
			zap.String("category", cat.Name),
			zap.String("provider", req.Provider),
			zap.String("reference", tx.Reference),
			zap.String("amount", q.amount.StringFixed(2)),
		)
		return &Receipt{Transaction: settled, Bill: bill}, nil
	}

	if errors.Is(callErr, ErrDeliveryUnknown) {
		bill.Status = StatusPending
		s.record(ctx, bill)
		s.logger.Warn("bill delivery unknown, holding debit for requery",
			zap.String("category", cat.Name),
			zap.String("reference", tx.Reference),
			zap.String("request_id", requestID),
			zap.Error(callErr),
		)
		return &Receipt{Transaction: tx, Bill: bill}, nil
	}

	reason := cat.Name + " purchase failed"
	if callErr != nil {
		reason += ": " + callErr.Error()
	} else {
		if resp.Message != "" {
			reason += ": " + resp.Message
		}
		bill.ResponseData = models.JSON(resp.Raw)
	}
	bill.Status = StatusFailed
	if _, err := s.engine.FailExternal(ctx, s.actor, tx.Reference, reason); err != nil {
		s.logger.Error("failed to refund bill payment",
			zap.String("reference", tx.Reference),
			zap.Error(err),
		)
		return nil, err
	}
	s.record(ctx, bill)
	s.logger.Warn("bill payment refunded",
		zap.String("category", cat.Name),
		zap.String("reference", tx.Reference),
		zap.String("reason", reason),
	)
	return nil, apperrors.Wrap(apperrors.ErrBillFailed, "%s", reason)
}

func (s *Service) record(ctx context.Context, bill *models.BillPayment) {
	if err := s.store.CreateBillPayment(ctx, bill); err != nil {
		s.logger.Error("failed to record bill payment",
			zap.String("reference", bill.TransactionReference),
			zap.Error(err),
		)
	}
}

// RequeryStats counts the outcomes of one Requery pass.
type RequeryStats struct {
	Completed int
	Failed    int
	Pending   int
}

// Requery asks the biller about pending bills older than minAge and settles
// or refunds the ones with a definite answer. Bills the biller cannot
// account for yet stay pending.
func (s *Service) Requery(ctx context.Context, minAge time.Duration, limit int) (RequeryStats, error) {
	var stats RequeryStats
	bills, err := s.store.ListBillPayments(ctx, StatusPending, time.Now().UTC().Add(-minAge), limit)
	if err != nil {
		return stats, err
	}
	for i := range bills {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		bill := &bills[i]
		resp, err := s.client.Call(ctx, StatusPath, map[string]interface{}{
			"request_id": bill.RequestID,
			"reference":  bill.TransactionReference,
		})
		if err != nil || resp.Pending {
			stats.Pending++
			if err != nil {
				s.logger.Warn("bill status query failed",
					zap.String("reference", bill.TransactionReference),
					zap.Error(err),
				)
			}
			continue
		}
		if err := s.resolve(ctx, bill, resp); err != nil {
			s.logger.Error("failed to resolve pending bill",
				zap.String("reference", bill.TransactionReference),
				zap.Error(err),
			)
			stats.Pending++
			continue
		}
		if bill.Status == StatusCompleted {
			stats.Completed++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Service) resolve(ctx context.Context, bill *models.BillPayment, resp *BillerResponse) error {
	bill.ResponseData = models.JSON(resp.Raw)
	err := s.settle(ctx, bill, resp)
	if errors.Is(err, apperrors.ErrInvalidTransactionState) {
		// The ledger already settled; an earlier pass failed to save the bill.
		return s.syncFromLedger(ctx, bill)
	}
	if err != nil {
		return err
	}
	return s.store.UpdateBillPayment(ctx, bill)
}

func (s *Service) syncFromLedger(ctx context.Context, bill *models.BillPayment) error {
	tx, err := s.engine.Transaction(ctx, s.actor, bill.TransactionReference)
	if err != nil {
		return err
	}
	switch tx.Status {
	case models.TransactionStatusCompleted:
		bill.Status = StatusCompleted
	case models.TransactionStatusFailed:
		bill.Status = StatusFailed
	default:
		return apperrors.Wrap(apperrors.ErrInvalidTransactionState, "bill %s linked to %s transaction", bill.RequestID, tx.Status)
	}
	return s.store.UpdateBillPayment(ctx, bill)
}

func (s *Service) settle(ctx context.Context, bill *models.BillPayment, resp *BillerResponse) error {
	if resp.Status {
		if _, err := s.engine.CompleteExternal(ctx, s.actor, bill.TransactionReference, resp.Reference); err != nil {
			return err
		}
		bill.Status = StatusCompleted
		bill.Token = resp.Token
		s.logger.Info("pending bill delivered", zap.String("reference", bill.TransactionReference))
	} else {
		reason := bill.Category + " purchase failed"
		if resp.Message != "" {
			reason += ": " + resp.Message
		}
		if _, err := s.engine.FailExternal(ctx, s.actor, bill.TransactionReference, reason); err != nil {
			return err
		}
		bill.Status = StatusFailed
		s.logger.Warn("pending bill refunded",
			zap.String("reference", bill.TransactionReference),
			zap.String("reason", reason),
		)
	}
	return nil
}
