package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending           TransactionStatus = "pending"
	StatusProcessing        TransactionStatus = "processing"
	StatusPendingDelivery   TransactionStatus = "pending_delivery"
	StatusCompleted         TransactionStatus = "completed"
	StatusFailed            TransactionStatus = "failed"
	StatusExpired           TransactionStatus = "expired"
	StatusRefunded          TransactionStatus = "refunded"
	StatusPartiallyRefunded TransactionStatus = "partially_refunded"
)

// legalTransitions is the single source of truth for the transaction state
// machine. The store's conditional update enforces it under concurrency; this
// table is what the update checks against.
var legalTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:           {StatusProcessing, StatusPendingDelivery, StatusFailed},
	StatusProcessing:        {StatusCompleted, StatusFailed, StatusExpired},
	StatusPendingDelivery:   {StatusCompleted, StatusFailed},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusRefunded, StatusPartiallyRefunded},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition can occur.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusExpired || s == StatusRefunded
}

// Refundable reports whether a refund may be issued against this status.
func (s TransactionStatus) Refundable() bool {
	return s == StatusCompleted || s == StatusPartiallyRefunded
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// ProviderRef is the adapter-specific handle a customer needs to complete the
// payment: a hosted iframe URL, a wallet redirect, a QR payload or a kiosk
// reference code with its expiry. Stored as JSONB alongside the transaction.
type ProviderRef struct {
	PaymentURL      string     `json:"payment_url,omitempty"`
	QRCode          string     `json:"qr_code,omitempty"`
	DeepLink        string     `json:"deep_link,omitempty"`
	ReferenceCode   string     `json:"reference_code,omitempty"`
	ReferenceExpiry *time.Time `json:"reference_expiry,omitempty"`
	GatewayTxID     string     `json:"gateway_tx_id,omitempty"`
}

// PaymentTransaction is one payment attempt for one order. It is the system
// of record: rows are never deleted, and status only moves along
// legalTransitions via the store's conditional update.
type PaymentTransaction struct {
	ID                string            `json:"id"`
	TransactionNumber string            `json:"transaction_number"`
	OrderID           string            `json:"order_id"`
	OrderNumber       string            `json:"order_number"`
	Amount            decimal.Decimal   `json:"amount"`
	Fee               decimal.Decimal   `json:"fee"`
	Currency          string            `json:"currency"`
	ProviderCode      string            `json:"provider_code"`
	Customer          Customer          `json:"customer"`
	Status            TransactionStatus `json:"status"`
	ProviderRef       *ProviderRef      `json:"provider_ref,omitempty"`
	RawProviderResp   json.RawMessage   `json:"-"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// StatusFields carries the optional columns written together with a status
// change. Nil fields leave the stored value untouched.
type StatusFields struct {
	ProviderRef     *ProviderRef
	RawProviderResp json.RawMessage
	FailureReason   *string
	CompletedAt     *time.Time
}
