package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/models"
)

// ReferenceCodeAdapter drives the offline biller. Initiate is a single signed
// call that yields a kiosk reference code and its expiry; the customer pays
// later and confirmation arrives asynchronously by webhook.
type ReferenceCodeAdapter struct {
	code string
	cfg  *models.ReferenceCodeConfig
	api  *apiClient
}

func NewReferenceCodeAdapter(p *models.PaymentProvider) (*ReferenceCodeAdapter, error) {
	cfg, err := p.ReferenceCodeConfig()
	if err != nil {
		return nil, err
	}
	return &ReferenceCodeAdapter{
		code: p.Code,
		cfg:  cfg,
		api:  newAPIClient(p.Code, cfg.BaseURL),
	}, nil
}

func (a *ReferenceCodeAdapter) Kind() models.ProviderKind { return models.KindReferenceCode }

type referenceChargeResponse struct {
	ReferenceNumber   json.Number `json:"reference_number"`
	MerchantRefNumber string      `json:"merchant_ref_number"`
	ExpirationTime    int64       `json:"expiration_time"`
	StatusCode        int         `json:"status_code"`
	StatusDescription string      `json:"status_description"`
}

func (a *ReferenceCodeAdapter) Initiate(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.InitiateResult, error) {
	amount := tx.Amount.StringFixed(2)
	var resp referenceChargeResponse
	err := a.api.postJSON(ctx, "charge", "/payments/charge", nil, map[string]any{
		"merchant_code":    a.cfg.MerchantCode,
		"merchant_ref_num": tx.TransactionNumber,
		"amount":           amount,
		"payment_method":   "REFERENCE_CODE",
		"customer_name":    tx.Customer.Name,
		"customer_mobile":  tx.Customer.Phone,
		"signature":        a.sign(a.cfg.MerchantCode, tx.TransactionNumber, amount),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		raw, _ := json.Marshal(resp)
		return nil, &GatewayError{
			Provider: a.code,
			RawBody:  string(raw),
			Err:      fmt.Errorf("biller rejected charge: %s", resp.StatusDescription),
		}
	}

	expiry := time.UnixMilli(resp.ExpirationTime).UTC()
	raw, _ := json.Marshal(resp)
	return &interfaces.InitiateResult{
		Status: models.StatusProcessing,
		ProviderRef: models.ProviderRef{
			ReferenceCode:   resp.ReferenceNumber.String(),
			ReferenceExpiry: &expiry,
		},
		Raw: raw,
	}, nil
}

func (a *ReferenceCodeAdapter) CheckStatus(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.StatusResult, error) {
	path := fmt.Sprintf("/payments/status?merchant_code=%s&merchant_ref_num=%s&signature=%s",
		a.cfg.MerchantCode, tx.TransactionNumber, a.sign(a.cfg.MerchantCode, tx.TransactionNumber))
	var resp struct {
		OrderStatus string `json:"order_status"`
	}
	if err := a.api.getJSON(ctx, "check_status", path, nil, &resp); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(resp)
	return &interfaces.StatusResult{Status: mapBillerStatus(resp.OrderStatus), Raw: raw}, nil
}

func (a *ReferenceCodeAdapter) Refund(ctx context.Context, tx *models.PaymentTransaction, amount decimal.Decimal, reason string) (*interfaces.RefundCallResult, error) {
	refCode := ""
	if tx.ProviderRef != nil {
		refCode = tx.ProviderRef.ReferenceCode
	}
	refundAmount := amount.StringFixed(2)
	var resp struct {
		StatusCode        int    `json:"status_code"`
		StatusDescription string `json:"status_description"`
		RefundReference   string `json:"refund_reference"`
	}
	err := a.api.postJSON(ctx, "refund", "/payments/refund", nil, map[string]any{
		"merchant_code":    a.cfg.MerchantCode,
		"reference_number": refCode,
		"refund_amount":    refundAmount,
		"reason":           reason,
		"signature":        a.sign(a.cfg.MerchantCode, refCode, refundAmount),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		raw, _ := json.Marshal(resp)
		return nil, &GatewayError{
			Provider: a.code,
			RawBody:  string(raw),
			Err:      fmt.Errorf("biller rejected refund: %s", resp.StatusDescription),
		}
	}
	raw, _ := json.Marshal(resp)
	return &interfaces.RefundCallResult{GatewayRef: resp.RefundReference, Raw: raw}, nil
}

type referenceWebhookPayload struct {
	RequestID         string      `json:"request_id"`
	ReferenceNumber   json.Number `json:"reference_number"`
	MerchantRefNumber string      `json:"merchant_ref_number"`
	PaymentAmount     json.Number `json:"payment_amount"`
	OrderStatus       string      `json:"order_status"`
	StatusDescription string      `json:"status_description"`
}

// ParseWebhook verifies the biller's signature: SHA-256 over reference number,
// merchant reference, amount, order status and the merchant security key.
func (a *ReferenceCodeAdapter) ParseWebhook(payload []byte, signature string) (*models.WebhookNotice, error) {
	var p referenceWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding reference-code webhook: %w", err)
	}

	expected := a.sign(p.ReferenceNumber.String(), p.MerchantRefNumber, p.PaymentAmount.String(), p.OrderStatus)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, models.ErrInvalidSignature
	}

	eventID := p.RequestID
	if eventID == "" {
		eventID = p.ReferenceNumber.String() + "-" + p.OrderStatus
	}
	notice := &models.WebhookNotice{
		EventID:           eventID,
		TransactionNumber: p.MerchantRefNumber,
		Outcome:           mapBillerStatus(p.OrderStatus),
		RawEventType:      p.OrderStatus,
	}
	if notice.Outcome == models.StatusFailed {
		notice.FailureReason = p.StatusDescription
		if notice.FailureReason == "" {
			notice.FailureReason = "payment " + p.OrderStatus
		}
	}
	return notice, nil
}

// sign produces the biller's digest: SHA-256 hex over the concatenated parts
// followed by the merchant security key.
func (a *ReferenceCodeAdapter) sign(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	h.Write([]byte(a.cfg.SecurityKey))
	return hex.EncodeToString(h.Sum(nil))
}

func mapBillerStatus(s string) models.TransactionStatus {
	switch s {
	case "PAID":
		return models.StatusCompleted
	case "EXPIRED":
		return models.StatusExpired
	case "REFUNDED":
		return models.StatusRefunded
	case "UNPAID", "NEW":
		return models.StatusProcessing
	default:
		return models.StatusFailed
	}
}
