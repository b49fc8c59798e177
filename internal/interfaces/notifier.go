package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
)

// Notifier is invoked after a transaction reaches terminal success.
// Implementations are fire-and-forget from the core's perspective: errors are
// logged by the caller and never roll back the payment state.
type Notifier interface {
	OnPaymentSettled(ctx context.Context, transactionNumber, orderID string, amount decimal.Decimal) error
}
