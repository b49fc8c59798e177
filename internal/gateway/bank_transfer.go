package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/models"
)

var localPhoneRe = regexp.MustCompile(`^0\d{10}$`)

// BankTransferAdapter drives the instant bank-transfer network: OAuth
// client-credentials token exchange (cached until near-expiry), then a
// payment-creation call with a normalized local phone number. Refunds post
// against the original network payment id and may be partial.
type BankTransferAdapter struct {
	code string
	cfg  *models.BankTransferConfig
	api  *apiClient
	rdb  *redis.Client

	// token cache; the mutex makes concurrent requests share one exchange
	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewBankTransferAdapter(p *models.PaymentProvider, rdb *redis.Client) (*BankTransferAdapter, error) {
	cfg, err := p.BankTransferConfig()
	if err != nil {
		return nil, err
	}
	return &BankTransferAdapter{
		code: p.Code,
		cfg:  cfg,
		api:  newAPIClient(p.Code, cfg.BaseURL),
		rdb:  rdb,
	}, nil
}

func (a *BankTransferAdapter) Kind() models.ProviderKind { return models.KindBankTransfer }

type bankPaymentResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	DeepLink  string `json:"deep_link"`
}

func (a *BankTransferAdapter) Initiate(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.InitiateResult, error) {
	msisdn, err := a.normalizePhone(tx.Customer.Phone)
	if err != nil {
		return nil, err
	}
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp bankPaymentResponse
	err = a.api.postJSON(ctx, "create_payment", "/api/v1/payments", bearer(token), map[string]any{
		"amount":    tx.Amount.StringFixed(2),
		"currency":  tx.Currency,
		"reference": tx.TransactionNumber,
		"order_id":  tx.OrderID,
		"msisdn":    msisdn,
	}, &resp)
	if err != nil {
		return nil, err
	}

	ref := models.ProviderRef{
		GatewayTxID: resp.PaymentID,
		DeepLink:    resp.DeepLink,
	}
	if a.cfg.EnableQR {
		var qr struct {
			QRPayload string `json:"qr_payload"`
		}
		path := fmt.Sprintf("/api/v1/payments/%s/qr", url.PathEscape(resp.PaymentID))
		if err := a.api.postJSON(ctx, "generate_qr", path, bearer(token), map[string]any{}, &qr); err != nil {
			return nil, err
		}
		ref.QRCode = qr.QRPayload
	}

	raw, _ := json.Marshal(resp)
	return &interfaces.InitiateResult{
		Status:      models.StatusProcessing,
		ProviderRef: ref,
		Raw:         raw,
	}, nil
}

func (a *BankTransferAdapter) CheckStatus(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.StatusResult, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	paymentID := ""
	if tx.ProviderRef != nil {
		paymentID = tx.ProviderRef.GatewayTxID
	}
	var resp struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/api/v1/payments/%s", url.PathEscape(paymentID))
	if err := a.api.getJSON(ctx, "check_status", path, bearer(token), &resp); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(resp)
	status := models.StatusProcessing
	switch resp.Status {
	case "SETTLED":
		status = models.StatusCompleted
	case "EXPIRED":
		status = models.StatusExpired
	case "FAILED", "REJECTED":
		status = models.StatusFailed
	}
	return &interfaces.StatusResult{Status: status, Raw: raw}, nil
}

func (a *BankTransferAdapter) Refund(ctx context.Context, tx *models.PaymentTransaction, amount decimal.Decimal, reason string) (*interfaces.RefundCallResult, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	paymentID := ""
	if tx.ProviderRef != nil {
		paymentID = tx.ProviderRef.GatewayTxID
	}
	var resp struct {
		RefundID string `json:"refund_id"`
		Status   string `json:"status"`
	}
	path := fmt.Sprintf("/api/v1/payments/%s/refunds", url.PathEscape(paymentID))
	err = a.api.postJSON(ctx, "refund", path, bearer(token), map[string]any{
		"amount": amount.StringFixed(2),
		"reason": reason,
	}, &resp)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(resp)
	return &interfaces.RefundCallResult{GatewayRef: resp.RefundID, Raw: raw}, nil
}

type bankWebhookPayload struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// ParseWebhook verifies HMAC-SHA256 of the raw body with the network's
// webhook secret and normalizes the event type.
func (a *BankTransferAdapter) ParseWebhook(payload []byte, signature string) (*models.WebhookNotice, error) {
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, models.ErrInvalidSignature
	}

	var p bankWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding bank-transfer webhook: %w", err)
	}

	notice := &models.WebhookNotice{
		EventID:           p.EventID,
		TransactionNumber: p.Reference,
		RawEventType:      p.Type,
	}
	switch p.Type {
	case "payment.settled":
		notice.Outcome = models.StatusCompleted
	case "payment.expired":
		notice.Outcome = models.StatusExpired
	case "payment.refunded":
		notice.Outcome = models.StatusRefunded
	default:
		notice.Outcome = models.StatusFailed
		notice.FailureReason = p.Reason
		if notice.FailureReason == "" {
			notice.FailureReason = p.Type
		}
	}
	return notice, nil
}

// accessToken returns a cached OAuth token, refreshing it when within a
// minute of expiry. Redis holds the cross-instance copy; the mutex prevents
// redundant concurrent exchanges within one process.
func (a *BankTransferAdapter) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExp.Add(-time.Minute)) {
		return a.token, nil
	}

	cacheKey := "bank_transfer:token:" + a.code
	if a.rdb != nil {
		if cached, err := a.rdb.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			ttl, err := a.rdb.TTL(ctx, cacheKey).Result()
			if err == nil && ttl > time.Minute {
				a.token = cached
				a.tokenExp = time.Now().Add(ttl)
				return cached, nil
			}
		}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := a.api.postForm(ctx, "oauth_token", "/oauth/token", map[string]string{
		"Authorization": "Basic " + basic,
	}, form, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &GatewayError{Provider: a.code, Err: fmt.Errorf("token exchange returned empty access_token")}
	}

	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	a.token = resp.AccessToken
	a.tokenExp = time.Now().Add(ttl)
	if a.rdb != nil {
		a.rdb.Set(ctx, cacheKey, resp.AccessToken, ttl)
	}
	return a.token, nil
}

// normalizePhone converts a customer phone into the network's local format:
// country code stripped, leading zero restored, 11 digits total.
func (a *BankTransferAdapter) normalizePhone(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, raw)

	cc := a.cfg.CountryCode
	switch {
	case strings.HasPrefix(s, "+"+cc):
		s = s[len(cc)+1:]
	case strings.HasPrefix(s, "00"+cc):
		s = s[len(cc)+2:]
	}
	if !strings.HasPrefix(s, "0") {
		s = "0" + s
	}
	if !localPhoneRe.MatchString(s) {
		return "", &models.ValidationError{Field: "customer.phone", Msg: "not a valid local mobile number"}
	}
	return s, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
