package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

// PaymentRefund is one refund against a completed transaction. A pending row
// reserves its amount against the transaction's remaining balance before the
// rail is called, so concurrent refunds serialize at the reservation and the
// sum of pending plus completed refund amounts never exceeds the transaction
// amount.
type PaymentRefund struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	RequestedBy   string          `json:"requested_by"`
	Status        RefundStatus    `json:"status"`
	GatewayRef    string          `json:"gateway_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}
