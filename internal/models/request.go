package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is the caller-facing input to the orchestrator.
type CreatePaymentRequest struct {
	OrderID      string          `json:"order_id" binding:"required"`
	OrderNumber  string          `json:"order_number" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Currency     string          `json:"currency"`
	ProviderCode string          `json:"provider_code" binding:"required"`
	Customer     Customer        `json:"customer"`
}

// PaymentResult is the normalized outcome of CreatePayment, returned for both
// successful initiations and gateway failures so callers never have to poll
// to discover a failure that already happened.
type PaymentResult struct {
	TransactionNumber string            `json:"transaction_number"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	Fee               decimal.Decimal   `json:"fee"`
	Currency          string            `json:"currency"`
	PaymentURL        string            `json:"payment_url,omitempty"`
	QRCode            string            `json:"qr_code,omitempty"`
	DeepLink          string            `json:"deep_link,omitempty"`
	ReferenceCode     string            `json:"reference_code,omitempty"`
	ReferenceExpiry   *time.Time        `json:"reference_expiry,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
}

// PaymentStatusResult answers a status query by transaction number.
type PaymentStatusResult struct {
	TransactionNumber string            `json:"transaction_number"`
	Status            TransactionStatus `json:"status"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
}

// RefundRequest is the caller-facing input to the refund manager. A nil
// Amount means "refund the remaining balance".
type RefundRequest struct {
	TransactionID string           `json:"transaction_id"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Reason        string           `json:"reason" binding:"required"`
	RequestedBy   string           `json:"requested_by"`
}

type RefundResult struct {
	RefundID string          `json:"refund_id"`
	Status   RefundStatus    `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
}

// FeeQuote is the answer to a fee query.
type FeeQuote struct {
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Total     decimal.Decimal `json:"total"`
	NetAmount decimal.Decimal `json:"net_amount"`
}
