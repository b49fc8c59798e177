package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type ProviderKind string

const (
	KindCardWallet     ProviderKind = "card_wallet"
	KindReferenceCode  ProviderKind = "reference_code"
	KindBankTransfer   ProviderKind = "bank_transfer"
	KindCashOnDelivery ProviderKind = "cod"
)

// PaymentProvider is the configuration for one rail. Rows are managed by
// configuration tooling and are read-only to the orchestration core.
type PaymentProvider struct {
	Code          string          `json:"code"`
	Kind          ProviderKind    `json:"kind"`
	IsActive      bool            `json:"is_active"`
	MinAmount     decimal.Decimal `json:"min_amount"`
	MaxAmount     decimal.Decimal `json:"max_amount"`
	FixedFee      decimal.Decimal `json:"fixed_fee"`
	PercentageFee decimal.Decimal `json:"percentage_fee"`
	Credentials   json.RawMessage `json:"-"`
}

// AmountInRange reports whether amount is within [MinAmount, MaxAmount].
func (p *PaymentProvider) AmountInRange(amount decimal.Decimal) bool {
	return amount.Cmp(p.MinAmount) >= 0 && amount.Cmp(p.MaxAmount) <= 0
}

// CardWalletConfig configures the card/wallet processor. WalletIssuer selects
// the wallet sub-variant; empty means hosted card iframe.
type CardWalletConfig struct {
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"api_key"`
	IntegrationID string `json:"integration_id"`
	IframeBaseURL string `json:"iframe_base_url"`
	IframeID      string `json:"iframe_id"`
	HMACSecret    string `json:"hmac_secret"`
	WalletIssuer  string `json:"wallet_issuer,omitempty"`
}

// ReferenceCodeConfig configures the offline reference-code biller.
type ReferenceCodeConfig struct {
	BaseURL      string `json:"base_url"`
	MerchantCode string `json:"merchant_code"`
	SecurityKey  string `json:"security_key"`
}

// BankTransferConfig configures the instant bank-transfer network.
type BankTransferConfig struct {
	BaseURL       string `json:"base_url"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
	CountryCode   string `json:"country_code"`
	EnableQR      bool   `json:"enable_qr"`
}

func (p *PaymentProvider) CardWalletConfig() (*CardWalletConfig, error) {
	var cfg CardWalletConfig
	if err := json.Unmarshal(p.Credentials, &cfg); err != nil {
		return nil, fmt.Errorf("provider %s: decoding card/wallet credentials: %w", p.Code, err)
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.IntegrationID == "" || cfg.IframeID == "" {
		return nil, fmt.Errorf("provider %s: incomplete card/wallet credentials", p.Code)
	}
	if cfg.IframeBaseURL == "" {
		cfg.IframeBaseURL = cfg.BaseURL + "/acceptance/iframes"
	}
	return &cfg, nil
}

func (p *PaymentProvider) ReferenceCodeConfig() (*ReferenceCodeConfig, error) {
	var cfg ReferenceCodeConfig
	if err := json.Unmarshal(p.Credentials, &cfg); err != nil {
		return nil, fmt.Errorf("provider %s: decoding reference-code credentials: %w", p.Code, err)
	}
	if cfg.BaseURL == "" || cfg.MerchantCode == "" || cfg.SecurityKey == "" {
		return nil, fmt.Errorf("provider %s: incomplete reference-code credentials", p.Code)
	}
	return &cfg, nil
}

func (p *PaymentProvider) BankTransferConfig() (*BankTransferConfig, error) {
	var cfg BankTransferConfig
	if err := json.Unmarshal(p.Credentials, &cfg); err != nil {
		return nil, fmt.Errorf("provider %s: decoding bank-transfer credentials: %w", p.Code, err)
	}
	if cfg.BaseURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("provider %s: incomplete bank-transfer credentials", p.Code)
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "20"
	}
	return &cfg, nil
}
