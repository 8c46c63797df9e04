package payment

import (
	"context"
	"testing"
	"time"

	apperrors "walletledger/internal/errors"
	"walletledger/internal/models"
	"walletledger/internal/repositories/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, store *memory.Store) models.Principal {
	t.Helper()
	ctx := context.Background()
	user := &models.User{ID: uuid.New(), Email: "payer@example.com", Name: "Payer", Role: models.RoleCustomer}
	require.NoError(t, store.CreateUser(ctx, user))
	require.NoError(t, store.CreateWallet(ctx, &models.Wallet{
		ID:            uuid.New(),
		OwnerID:       user.ID,
		AccountNumber: "2012345678",
		Currency:      models.DefaultCurrency,
		IsActive:      true,
	}))
	return models.Principal{UserID: user.ID, Role: user.Role, Permissions: models.GetDefaultPermissions(user.Role)}
}

func TestInitiate(t *testing.T) {
	store := memory.New()
	p := seedWallet(t, store)
	svc := NewService(store, nil, "https://checkout.example.com/pay", nil)

	payment, err := svc.Initiate(context.Background(), p, decimal.NewFromInt(10000), "")
	require.NoError(t, err)
	assert.Equal(t, "paystack", payment.Provider)
	assert.Equal(t, "150.00", payment.Fee.StringFixed(2))
	assert.Equal(t, "9850.00", payment.NetAmount.StringFixed(2))
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Regexp(t, `^PAY-[0-9A-F]{20}$`, payment.Reference)
	assert.Equal(t, "https://checkout.example.com/pay?reference="+payment.Reference, payment.CheckoutURL)

	stored, err := svc.Get(context.Background(), p, payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, stored.ID)

	stranger := models.Principal{UserID: uuid.New(), Role: models.RoleCustomer}
	_, err = svc.Get(context.Background(), stranger, payment.Reference)
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)
}

func TestInitiate_FeeCap(t *testing.T) {
	store := memory.New()
	p := seedWallet(t, store)
	svc := NewService(store, nil, "", nil)

	payment, err := svc.Initiate(context.Background(), p, decimal.NewFromInt(500000), "moniepoint")
	require.NoError(t, err)
	assert.Equal(t, "2000.00", payment.Fee.StringFixed(2))
	assert.Empty(t, payment.CheckoutURL)
}

func TestInitiate_Rejections(t *testing.T) {
	store := memory.New()
	p := seedWallet(t, store)
	svc := NewService(store, nil, "", nil)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, p, decimal.NewFromInt(99), "paystack")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Initiate(ctx, p, decimal.NewFromInt(1000), "bitpay")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Initiate(ctx, p, decimal.RequireFromString("100.001"), "paystack")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Initiate(ctx, models.Principal{UserID: uuid.New()}, decimal.NewFromInt(1000), "paystack")
	assert.ErrorIs(t, err, apperrors.ErrWalletNotFound)
}

func TestAbandonStale(t *testing.T) {
	store := memory.New()
	p := seedWallet(t, store)
	svc := NewService(store, nil, "", nil)
	ctx := context.Background()

	clock := time.Now().UTC().Add(-2 * time.Hour)
	svc.now = func() time.Time { return clock }
	old, err := svc.Initiate(ctx, p, decimal.NewFromInt(1000), "paystack")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC() }
	fresh, err := svc.Initiate(ctx, p, decimal.NewFromInt(1000), "paystack")
	require.NoError(t, err)

	n, err := svc.AbandonStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.FindGatewayPayment(ctx, old.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAbandoned, got.Status)
	got, err = store.FindGatewayPayment(ctx, fresh.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
}
