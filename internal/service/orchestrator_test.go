package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/models"
)

func validRequest(provider string, amount string) *models.CreatePaymentRequest {
	return &models.CreatePaymentRequest{
		OrderID:      "order-1",
		OrderNumber:  "ORD-1",
		Amount:       decimal.RequireFromString(amount),
		ProviderCode: provider,
		Customer:     models.Customer{Name: "Aya", Phone: "01012345678"},
	}
}

func newTestOrchestrator(t *testing.T, store *mockStore, resolver *fakeResolver) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(store, resolver, nil, 0)
	require.NoError(t, err)
	return o
}

func TestCreatePaymentSuccess(t *testing.T) {
	store := newMockStore()
	gw := &stubGateway{
		kind: models.KindCardWallet,
		initRes: &interfaces.InitiateResult{
			Status:      models.StatusProcessing,
			ProviderRef: models.ProviderRef{PaymentURL: "https://pay.example/iframes/771?payment_token=key-1"},
		},
	}
	o := newTestOrchestrator(t, store, &fakeResolver{provider: activeProvider("card", models.KindCardWallet), gateway: gw})

	res, err := o.CreatePayment(context.Background(), validRequest("card", "500"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.TransactionNumber, "PAY-"))
	assert.Equal(t, models.StatusProcessing, res.Status)
	assert.Equal(t, "https://pay.example/iframes/771?payment_token=key-1", res.PaymentURL)
	assert.Equal(t, "EGP", res.Currency)
	// 2.50 fixed + 2.75% of 500
	assert.True(t, res.Fee.Equal(decimal.RequireFromString("16.25")), "fee was %s", res.Fee)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, models.StatusPending, store.inserted[0].Status)
	require.Len(t, store.updates, 1)
	assert.Equal(t, models.StatusPending, store.updates[0].from)
	assert.Equal(t, models.StatusProcessing, store.updates[0].to)
}

func TestCreatePaymentCashOnDelivery(t *testing.T) {
	store := newMockStore()
	gw := &stubGateway{
		kind:    models.KindCashOnDelivery,
		initRes: &interfaces.InitiateResult{Status: models.StatusPendingDelivery},
	}
	o := newTestOrchestrator(t, store, &fakeResolver{provider: activeProvider("cod", models.KindCashOnDelivery), gateway: gw})

	res, err := o.CreatePayment(context.Background(), validRequest("cod", "300"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingDelivery, res.Status)
	assert.Empty(t, res.PaymentURL)

	require.Len(t, store.updates, 1)
	assert.Equal(t, models.StatusPendingDelivery, store.updates[0].to)
}

func TestCreatePaymentAmountOutOfRange(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(t, store, &fakeResolver{
		provider: activeProvider("card", models.KindCardWallet),
		gateway:  &stubGateway{kind: models.KindCardWallet},
	})

	_, err := o.CreatePayment(context.Background(), validRequest("card", "5"))
	assert.ErrorIs(t, err, models.ErrAmountOutOfRange)
	assert.Empty(t, store.inserted, "no row may be created for a rejected amount")
}

func TestCreatePaymentUnknownProvider(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(t, store, &fakeResolver{err: models.ErrUnknownProvider})

	_, err := o.CreatePayment(context.Background(), validRequest("nope", "500"))
	assert.ErrorIs(t, err, models.ErrUnknownProvider)
	assert.Empty(t, store.inserted)
}

func TestCreatePaymentValidation(t *testing.T) {
	store := newMockStore()
	o := newTestOrchestrator(t, store, &fakeResolver{})

	req := validRequest("card", "500")
	req.Customer.Name = ""
	_, err := o.CreatePayment(context.Background(), req)

	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "customer.name", ve.Field)
}

func TestCreatePaymentGatewayFailure(t *testing.T) {
	store := newMockStore()
	gw := &stubGateway{
		kind:    models.KindCardWallet,
		initErr: assert.AnError,
	}
	o := newTestOrchestrator(t, store, &fakeResolver{provider: activeProvider("card", models.KindCardWallet), gateway: gw})

	res, err := o.CreatePayment(context.Background(), validRequest("card", "500"))
	require.ErrorIs(t, err, assert.AnError)

	// the caller still gets a terminal result object
	require.NotNil(t, res)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.NotEmpty(t, res.FailureReason)

	require.Len(t, store.updates, 1)
	assert.Equal(t, models.StatusFailed, store.updates[0].to)
	require.NotNil(t, store.updates[0].fields.FailureReason)
}

func TestCreatePaymentDuplicateOrder(t *testing.T) {
	store := newMockStore()
	store.insertErr = models.ErrDuplicatePayment
	gw := &stubGateway{kind: models.KindCardWallet}
	o := newTestOrchestrator(t, store, &fakeResolver{provider: activeProvider("card", models.KindCardWallet), gateway: gw})

	_, err := o.CreatePayment(context.Background(), validRequest("card", "500"))
	assert.ErrorIs(t, err, models.ErrDuplicatePayment)
	assert.Zero(t, gw.initCalls, "no gateway call for a duplicate order")
}

func TestGetPaymentStatus(t *testing.T) {
	store := newMockStore()
	store.add(&models.PaymentTransaction{
		ID:                "id-1",
		TransactionNumber: "PAY-X",
		Status:            models.StatusCompleted,
	})
	o := newTestOrchestrator(t, store, &fakeResolver{})

	res, err := o.GetPaymentStatus(context.Background(), "PAY-X")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)

	_, err = o.GetPaymentStatus(context.Background(), "PAY-MISSING")
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestQuoteFee(t *testing.T) {
	o := newTestOrchestrator(t, newMockStore(), &fakeResolver{provider: activeProvider("card", models.KindCardWallet)})

	quote, err := o.QuoteFee(context.Background(), decimal.RequireFromString("500"), "card")
	require.NoError(t, err)
	assert.True(t, quote.Fee.Equal(decimal.RequireFromString("16.25")))
	assert.True(t, quote.Total.Equal(decimal.RequireFromString("516.25")))

	_, err = o.QuoteFee(context.Background(), decimal.Zero, "card")
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}
