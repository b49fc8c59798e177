package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/models"
)

// CardWalletAdapter drives the card/wallet processor. Initiate is a chain of
// three calls (auth token, order registration, payment key); wallet
// sub-variants add a fourth call that triggers the wallet redirect. Any step
// failing aborts the whole chain.
type CardWalletAdapter struct {
	code string
	cfg  *models.CardWalletConfig
	api  *apiClient
}

func NewCardWalletAdapter(p *models.PaymentProvider) (*CardWalletAdapter, error) {
	cfg, err := p.CardWalletConfig()
	if err != nil {
		return nil, err
	}
	return &CardWalletAdapter{
		code: p.Code,
		cfg:  cfg,
		api:  newAPIClient(p.Code, cfg.BaseURL),
	}, nil
}

func (a *CardWalletAdapter) Kind() models.ProviderKind { return models.KindCardWallet }

type cardAuthResponse struct {
	Token string `json:"token"`
}

type cardOrderResponse struct {
	ID int64 `json:"id"`
}

type cardPaymentKeyResponse struct {
	Token string `json:"token"`
}

type walletPayResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (a *CardWalletAdapter) Initiate(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.InitiateResult, error) {
	token, err := a.authToken(ctx)
	if err != nil {
		return nil, err
	}

	amountCents := tx.Amount.Shift(2).IntPart()

	var order cardOrderResponse
	err = a.api.postJSON(ctx, "register_order", "/ecommerce/orders", nil, map[string]any{
		"auth_token":        token,
		"amount_cents":      amountCents,
		"currency":          tx.Currency,
		"merchant_order_id": tx.TransactionNumber,
	}, &order)
	if err != nil {
		return nil, err
	}

	var key cardPaymentKeyResponse
	err = a.api.postJSON(ctx, "payment_key", "/acceptance/payment_keys", nil, map[string]any{
		"auth_token":     token,
		"amount_cents":   amountCents,
		"currency":       tx.Currency,
		"order_id":       order.ID,
		"integration_id": a.cfg.IntegrationID,
		"billing_data": map[string]string{
			"first_name":   tx.Customer.Name,
			"phone_number": tx.Customer.Phone,
			"email":        tx.Customer.Email,
		},
	}, &key)
	if err != nil {
		return nil, err
	}

	ref := models.ProviderRef{GatewayTxID: strconv.FormatInt(order.ID, 10)}
	if a.cfg.WalletIssuer != "" {
		var pay walletPayResponse
		err = a.api.postJSON(ctx, "wallet_pay", "/acceptance/payments/pay", nil, map[string]any{
			"payment_token": key.Token,
			"source": map[string]string{
				"identifier": tx.Customer.Phone,
				"subtype":    "WALLET",
			},
		}, &pay)
		if err != nil {
			return nil, err
		}
		ref.PaymentURL = pay.RedirectURL
		ref.DeepLink = pay.RedirectURL
	} else {
		ref.PaymentURL = fmt.Sprintf("%s/%s?payment_token=%s", a.cfg.IframeBaseURL, a.cfg.IframeID, key.Token)
	}

	raw, _ := json.Marshal(map[string]any{"order_id": order.ID})
	return &interfaces.InitiateResult{
		Status:      models.StatusProcessing,
		ProviderRef: ref,
		Raw:         raw,
	}, nil
}

func (a *CardWalletAdapter) CheckStatus(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.StatusResult, error) {
	token, err := a.authToken(ctx)
	if err != nil {
		return nil, err
	}
	orderID := ""
	if tx.ProviderRef != nil {
		orderID = tx.ProviderRef.GatewayTxID
	}
	var resp struct {
		PaymentStatus string `json:"payment_status"`
	}
	path := fmt.Sprintf("/ecommerce/orders/%s?token=%s", orderID, token)
	if err := a.api.getJSON(ctx, "check_status", path, nil, &resp); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(resp)
	status := models.StatusProcessing
	switch resp.PaymentStatus {
	case "PAID":
		status = models.StatusCompleted
	case "EXPIRED":
		status = models.StatusExpired
	case "DECLINED":
		status = models.StatusFailed
	}
	return &interfaces.StatusResult{Status: status, Raw: raw}, nil
}

func (a *CardWalletAdapter) Refund(ctx context.Context, tx *models.PaymentTransaction, amount decimal.Decimal, reason string) (*interfaces.RefundCallResult, error) {
	token, err := a.authToken(ctx)
	if err != nil {
		return nil, err
	}
	gatewayTxID := ""
	if tx.ProviderRef != nil {
		gatewayTxID = tx.ProviderRef.GatewayTxID
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	err = a.api.postJSON(ctx, "refund", "/acceptance/void_refund/refund", nil, map[string]any{
		"auth_token":     token,
		"transaction_id": gatewayTxID,
		"amount_cents":   amount.Shift(2).IntPart(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(resp)
	return &interfaces.RefundCallResult{GatewayRef: strconv.FormatInt(resp.ID, 10), Raw: raw}, nil
}

func (a *CardWalletAdapter) authToken(ctx context.Context) (string, error) {
	var resp cardAuthResponse
	err := a.api.postJSON(ctx, "auth_token", "/auth/tokens", nil, map[string]string{
		"api_key": a.cfg.APIKey,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

type cardWebhookPayload struct {
	Type string `json:"type"`
	Obj  struct {
		ID           int64       `json:"id"`
		AmountCents  json.Number `json:"amount_cents"`
		Currency     string      `json:"currency"`
		Success      bool        `json:"success"`
		IsRefunded   bool        `json:"is_refunded"`
		ErrorOccured bool        `json:"error_occured"`
		DataMessage  string      `json:"data_message"`
		Order        struct {
			MerchantOrderID string `json:"merchant_order_id"`
		} `json:"order"`
	} `json:"obj"`
}

// ParseWebhook verifies the processor's HMAC-SHA512 over its documented
// ordered field concatenation (transaction id, merchant order id, amount in
// cents, currency, success flag) and normalizes the callback.
func (a *CardWalletAdapter) ParseWebhook(payload []byte, signature string) (*models.WebhookNotice, error) {
	var p cardWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding card/wallet webhook: %w", err)
	}

	canonical := fmt.Sprintf("%d%s%s%s%t",
		p.Obj.ID, p.Obj.Order.MerchantOrderID, p.Obj.AmountCents.String(), p.Obj.Currency, p.Obj.Success)
	mac := hmac.New(sha512.New, []byte(a.cfg.HMACSecret))
	mac.Write([]byte(canonical))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, models.ErrInvalidSignature
	}

	notice := &models.WebhookNotice{
		EventID:           strconv.FormatInt(p.Obj.ID, 10),
		TransactionNumber: p.Obj.Order.MerchantOrderID,
		RawEventType:      p.Type,
	}
	switch {
	case p.Obj.IsRefunded:
		notice.Outcome = models.StatusRefunded
	case p.Obj.Success && !p.Obj.ErrorOccured:
		notice.Outcome = models.StatusCompleted
	default:
		notice.Outcome = models.StatusFailed
		notice.FailureReason = p.Obj.DataMessage
		if notice.FailureReason == "" {
			notice.FailureReason = "declined by processor"
		}
	}
	return notice, nil
}
