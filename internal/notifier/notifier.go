// Package notifier holds the downstream implementations of the Notifier
// port: order fulfillment over Kafka and the fraud-scoring hook over NATS.
// All of them are fire-and-forget from the core's perspective.
package notifier

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/telemetry"
)

// Multi fans one settlement out to several notifiers. Individual failures are
// logged and never propagated; the payment state is already committed.
type Multi struct {
	notifiers []interfaces.Notifier
}

func NewMulti(notifiers ...interfaces.Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) OnPaymentSettled(ctx context.Context, transactionNumber, orderID string, amount decimal.Decimal) error {
	for _, n := range m.notifiers {
		if err := n.OnPaymentSettled(ctx, transactionNumber, orderID, amount); err != nil {
			telemetry.Logger.Error("Notifier failed",
				zap.String("transaction_number", transactionNumber),
				zap.Error(err),
			)
		}
	}
	return nil
}
