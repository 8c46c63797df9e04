package payout

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

type MockPayoutAPI struct {
	mock.Mock
}

func (m *MockPayoutAPI) New(params *stripe.PayoutParams) (*stripe.Payout, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Payout), args.Error(1)
}

func (m *MockPayoutAPI) Get(id string, params *stripe.PayoutParams) (*stripe.Payout, error) {
	args := m.Called(id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Payout), args.Error(1)
}

func TestStripeRail_InitiateTransfer(t *testing.T) {
	api := new(MockPayoutAPI)
	api.On("New", mock.MatchedBy(func(p *stripe.PayoutParams) bool {
		return *p.Amount == 250050 &&
			*p.Currency == "ngn" &&
			p.IdempotencyKey != nil && *p.IdempotencyKey == "TXNREF" &&
			p.Metadata["reference"] == "TXNREF"
	})).Return(&stripe.Payout{ID: "po_123", Status: stripe.PayoutStatusInTransit}, nil)

	rail := newStripeRail(api, nil)
	res, err := rail.InitiateTransfer(context.Background(), TransferRequest{
		Reference: "TXNREF",
		Amount:    decimal.RequireFromString("2500.50"),
		Currency:  "NGN",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "po_123", res.ExternalReference)
	api.AssertExpectations(t)
}

func TestStripeRail_QueryTransfer(t *testing.T) {
	tests := []struct {
		status stripe.PayoutStatus
		want   Status
	}{
		{stripe.PayoutStatusPaid, StatusSuccessful},
		{stripe.PayoutStatusFailed, StatusFailed},
		{stripe.PayoutStatusCanceled, StatusFailed},
		{stripe.PayoutStatusPending, StatusPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			api := new(MockPayoutAPI)
			api.On("Get", "po_1", mock.Anything).Return(&stripe.Payout{ID: "po_1", Status: tt.status}, nil)

			res, err := newStripeRail(api, nil).QueryTransfer(context.Background(), "po_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestStripeRail_Errors(t *testing.T) {
	api := new(MockPayoutAPI)
	api.On("New", mock.Anything).Return(nil, &stripe.Error{HTTPStatusCode: 400, Msg: "insufficient platform balance"}).Once()
	api.On("New", mock.Anything).Return(nil, errors.New("connection reset")).Once()

	rail := newStripeRail(api, nil)
	req := TransferRequest{Reference: "TXN1", Amount: decimal.NewFromInt(1), Currency: "NGN"}

	res, err := rail.InitiateTransfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "insufficient platform balance", res.Message)

	_, err = rail.InitiateTransfer(context.Background(), req)
	assert.Error(t, err)
}
