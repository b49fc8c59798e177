package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipay/payment-core/internal/models"
)

func cardProvider(t *testing.T, baseURL, walletIssuer string) *models.PaymentProvider {
	t.Helper()
	creds, err := json.Marshal(models.CardWalletConfig{
		BaseURL:       baseURL,
		APIKey:        "test-api-key",
		IntegrationID: "4433",
		IframeBaseURL: baseURL + "/iframes",
		IframeID:      "771",
		HMACSecret:    "hmac-secret",
		WalletIssuer:  walletIssuer,
	})
	require.NoError(t, err)
	return &models.PaymentProvider{Code: "card", Kind: models.KindCardWallet, IsActive: true, Credentials: creds}
}

func testTx(amount string) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		ID:                "6a6f9f9e-0000-0000-0000-000000000001",
		TransactionNumber: "PAY-TEST00000001",
		OrderID:           "order-1",
		OrderNumber:       "ORD-1",
		Amount:            decimal.RequireFromString(amount),
		Currency:          "EGP",
		Customer:          models.Customer{Name: "Aya", Phone: "01012345678", Email: "aya@example.com"},
		Status:            models.StatusPending,
	}
}

func TestCardInitiateThreeStepSuccess(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/auth/tokens":
			assert.Equal(t, "test-api-key", body["api_key"])
			json.NewEncoder(w).Encode(map[string]string{"token": "bearer-1"})
		case "/ecommerce/orders":
			assert.Equal(t, "bearer-1", body["auth_token"])
			assert.Equal(t, float64(50000), body["amount_cents"])
			assert.Equal(t, "PAY-TEST00000001", body["merchant_order_id"])
			json.NewEncoder(w).Encode(map[string]int64{"id": 987654})
		case "/acceptance/payment_keys":
			assert.Equal(t, float64(987654), body["order_id"])
			assert.Equal(t, "4433", body["integration_id"])
			json.NewEncoder(w).Encode(map[string]string{"token": "key-xyz"})
		default:
			t.Fatalf("unexpected call %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter, err := NewCardWalletAdapter(cardProvider(t, srv.URL, ""))
	require.NoError(t, err)

	res, err := adapter.Initiate(context.Background(), testTx("500"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, res.Status)
	assert.Equal(t, srv.URL+"/iframes/771?payment_token=key-xyz", res.ProviderRef.PaymentURL)
	assert.Equal(t, "987654", res.ProviderRef.GatewayTxID)
	assert.Equal(t, []string{"/auth/tokens", "/ecommerce/orders", "/acceptance/payment_keys"}, calls)
}

func TestCardInitiateAbortsWhenOrderRegistrationFails(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/auth/tokens":
			json.NewEncoder(w).Encode(map[string]string{"token": "bearer-1"})
		case "/ecommerce/orders":
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"detail":"upstream unavailable"}`)
		default:
			t.Fatalf("chain must abort before %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter, err := NewCardWalletAdapter(cardProvider(t, srv.URL, ""))
	require.NoError(t, err)

	res, err := adapter.Initiate(context.Background(), testTx("500"))
	assert.Nil(t, res)

	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "card", ge.Provider)
	assert.Equal(t, http.StatusBadGateway, ge.HTTPStatus)
	assert.Contains(t, ge.RawBody, "upstream unavailable")
	assert.Equal(t, []string{"/auth/tokens", "/ecommerce/orders"}, calls)
}

func TestWalletInitiatePerformsRedirectCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/tokens":
			json.NewEncoder(w).Encode(map[string]string{"token": "bearer-1"})
		case "/ecommerce/orders":
			json.NewEncoder(w).Encode(map[string]int64{"id": 11})
		case "/acceptance/payment_keys":
			json.NewEncoder(w).Encode(map[string]string{"token": "key-w"})
		case "/acceptance/payments/pay":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			source := body["source"].(map[string]any)
			assert.Equal(t, "01012345678", source["identifier"])
			assert.Equal(t, "WALLET", source["subtype"])
			json.NewEncoder(w).Encode(map[string]string{"redirect_url": "https://wallet.example/redirect/abc"})
		default:
			t.Fatalf("unexpected call %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter, err := NewCardWalletAdapter(cardProvider(t, srv.URL, "vodafone"))
	require.NoError(t, err)

	res, err := adapter.Initiate(context.Background(), testTx("120.50"))
	require.NoError(t, err)
	assert.Equal(t, "https://wallet.example/redirect/abc", res.ProviderRef.PaymentURL)
	assert.Equal(t, "https://wallet.example/redirect/abc", res.ProviderRef.DeepLink)
}

func cardWebhookBody(t *testing.T, id int64, merchantOrderID string, success, errorOccured bool) ([]byte, string) {
	t.Helper()
	payload := map[string]any{
		"type": "TRANSACTION",
		"obj": map[string]any{
			"id":            id,
			"amount_cents":  50000,
			"currency":      "EGP",
			"success":       success,
			"error_occured": errorOccured,
			"order":         map[string]string{"merchant_order_id": merchantOrderID},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	canonical := fmt.Sprintf("%d%s%d%s%t", id, merchantOrderID, 50000, "EGP", success)
	mac := hmac.New(sha512.New, []byte("hmac-secret"))
	mac.Write([]byte(canonical))
	return body, hex.EncodeToString(mac.Sum(nil))
}

func TestCardParseWebhook(t *testing.T) {
	adapter, err := NewCardWalletAdapter(cardProvider(t, "https://processor.example", ""))
	require.NoError(t, err)

	body, sig := cardWebhookBody(t, 987654, "PAY-TEST00000001", true, false)
	notice, err := adapter.ParseWebhook(body, sig)
	require.NoError(t, err)
	assert.Equal(t, "987654", notice.EventID)
	assert.Equal(t, "PAY-TEST00000001", notice.TransactionNumber)
	assert.Equal(t, models.StatusCompleted, notice.Outcome)

	body, sig = cardWebhookBody(t, 987655, "PAY-TEST00000001", false, false)
	notice, err = adapter.ParseWebhook(body, sig)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, notice.Outcome)
	assert.NotEmpty(t, notice.FailureReason)

	// processor error flags trump the success bit
	body, sig = cardWebhookBody(t, 987656, "PAY-TEST00000001", true, true)
	notice, err = adapter.ParseWebhook(body, sig)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, notice.Outcome)
}

func TestCardParseWebhookRejectsBadSignature(t *testing.T) {
	adapter, err := NewCardWalletAdapter(cardProvider(t, "https://processor.example", ""))
	require.NoError(t, err)

	body, _ := cardWebhookBody(t, 987654, "PAY-TEST00000001", true, false)
	_, err = adapter.ParseWebhook(body, "deadbeef")
	assert.ErrorIs(t, err, models.ErrInvalidSignature)
}
