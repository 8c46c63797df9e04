package payout

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/payout"
	"go.uber.org/zap"
)

// payoutAPI is the subset of the stripe payout client used here.
type payoutAPI interface {
	New(params *stripe.PayoutParams) (*stripe.Payout, error)
	Get(id string, params *stripe.PayoutParams) (*stripe.Payout, error)
}

// StripeRail sends payouts through Stripe. The ledger reference is sent as
// the idempotency key so that a retried dispatch never pays twice.
type StripeRail struct {
	api    payoutAPI
	logger *zap.Logger
}

func NewStripeRail(secretKey string, logger *zap.Logger) *StripeRail {
	client := &payout.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
	return newStripeRail(client, logger)
}

func newStripeRail(api payoutAPI, logger *zap.Logger) *StripeRail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeRail{api: api, logger: logger}
}

func (r *StripeRail) Name() string { return "stripe" }

func (r *StripeRail) InitiateTransfer(ctx context.Context, req TransferRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(req.Amount.Shift(2).IntPart()),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Narration),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("bank_code", req.BankCode)
	params.AddMetadata("account_number", req.AccountNumber)

	po, err := r.api.New(params)
	if err != nil {
		return rejection(err)
	}
	r.logger.Info("stripe payout created",
		zap.String("reference", req.Reference),
		zap.String("payout_id", po.ID),
		zap.String("status", string(po.Status)),
	)
	return fromPayout(po), nil
}

// QueryTransfer looks up a payout by its Stripe id, which is the external
// reference recorded on the transaction.
func (r *StripeRail) QueryTransfer(ctx context.Context, reference string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &stripe.PayoutParams{}
	params.Context = ctx
	po, err := r.api.Get(reference, params)
	if err != nil {
		return rejection(err)
	}
	return fromPayout(po), nil
}

func fromPayout(po *stripe.Payout) *Result {
	res := &Result{ExternalReference: po.ID, Message: po.FailureMessage}
	switch po.Status {
	case stripe.PayoutStatusPaid:
		res.Status = StatusSuccessful
	case stripe.PayoutStatusFailed, stripe.PayoutStatusCanceled:
		res.Status = StatusFailed
	default:
		res.Status = StatusPending
	}
	return res
}

// rejection turns a 4xx Stripe error into a FAILED result and passes
// everything else through as a retryable error.
func rejection(err error) (*Result, error) {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.HTTPStatusCode >= http.StatusBadRequest && serr.HTTPStatusCode < http.StatusInternalServerError {
		return &Result{Status: StatusFailed, Message: serr.Msg}, nil
	}
	return nil, err
}
