package interfaces

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/models"
)

// InitiateResult is the normalized outcome of starting a payment on a rail.
type InitiateResult struct {
	Status      models.TransactionStatus
	ProviderRef models.ProviderRef
	Raw         json.RawMessage
}

// StatusResult is the normalized outcome of polling a rail for a payment.
type StatusResult struct {
	Status models.TransactionStatus
	Raw    json.RawMessage
}

// RefundCallResult is the rail's answer to a refund request.
type RefundCallResult struct {
	GatewayRef string
	Raw        json.RawMessage
}

// Gateway encapsulates one rail's wire protocol. Implementations hold no
// transaction state between calls; every call is stateless given the row
// passed in, which is what makes concurrent webhook delivery safe.
type Gateway interface {
	Kind() models.ProviderKind

	Initiate(ctx context.Context, tx *models.PaymentTransaction) (*InitiateResult, error)
	CheckStatus(ctx context.Context, tx *models.PaymentTransaction) (*StatusResult, error)
	Refund(ctx context.Context, tx *models.PaymentTransaction, amount decimal.Decimal, reason string) (*RefundCallResult, error)

	// ParseWebhook verifies the callback signature with the rail's own scheme
	// and normalizes the payload. Returns models.ErrInvalidSignature on
	// verification failure.
	ParseWebhook(payload []byte, signature string) (*models.WebhookNotice, error)
}
