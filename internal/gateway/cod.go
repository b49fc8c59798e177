package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/models"
)

type codConfig struct {
	WebhookSecret string `json:"webhook_secret"`
}

// CashOnDeliveryAdapter is the no-network rail: the payment settles when the
// courier collects cash. Initiate returns pending_delivery immediately;
// fulfillment confirms delivery through the webhook endpoint.
type CashOnDeliveryAdapter struct {
	code string
	cfg  codConfig
}

func NewCashOnDeliveryAdapter(p *models.PaymentProvider) (*CashOnDeliveryAdapter, error) {
	a := &CashOnDeliveryAdapter{code: p.Code}
	if len(p.Credentials) > 0 {
		if err := json.Unmarshal(p.Credentials, &a.cfg); err != nil {
			return nil, fmt.Errorf("provider %s: decoding cod credentials: %w", p.Code, err)
		}
	}
	return a, nil
}

func (a *CashOnDeliveryAdapter) Kind() models.ProviderKind { return models.KindCashOnDelivery }

func (a *CashOnDeliveryAdapter) Initiate(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.InitiateResult, error) {
	return &interfaces.InitiateResult{Status: models.StatusPendingDelivery}, nil
}

func (a *CashOnDeliveryAdapter) CheckStatus(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.StatusResult, error) {
	return &interfaces.StatusResult{Status: tx.Status}, nil
}

// Refund for cash is handled by courier operations; there is nothing to call.
func (a *CashOnDeliveryAdapter) Refund(ctx context.Context, tx *models.PaymentTransaction, amount decimal.Decimal, reason string) (*interfaces.RefundCallResult, error) {
	return &interfaces.RefundCallResult{GatewayRef: "cod-manual-" + tx.TransactionNumber}, nil
}

type codWebhookPayload struct {
	EventID           string `json:"event_id"`
	TransactionNumber string `json:"transaction_number"`
	Delivered         bool   `json:"delivered"`
	Reason            string `json:"reason"`
}

// ParseWebhook accepts delivery confirmations from fulfillment, signed with
// HMAC-SHA256 of the raw body.
func (a *CashOnDeliveryAdapter) ParseWebhook(payload []byte, signature string) (*models.WebhookNotice, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, models.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, models.ErrInvalidSignature
	}

	var p codWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding cod webhook: %w", err)
	}
	notice := &models.WebhookNotice{
		EventID:           p.EventID,
		TransactionNumber: p.TransactionNumber,
		RawEventType:      "delivery",
	}
	if p.Delivered {
		notice.Outcome = models.StatusCompleted
	} else {
		notice.Outcome = models.StatusFailed
		notice.FailureReason = p.Reason
		if notice.FailureReason == "" {
			notice.FailureReason = "delivery returned"
		}
	}
	return notice, nil
}
