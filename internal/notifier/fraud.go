package notifier

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

// FraudHook feeds settled payments to the fraud-scoring service over NATS.
// Scoring happens after the fact; the publish is fire-and-forget.
type FraudHook struct {
	nc *nats.Conn
}

func NewFraudHook(nc *nats.Conn) *FraudHook {
	return &FraudHook{nc: nc}
}

func (f *FraudHook) OnPaymentSettled(ctx context.Context, transactionNumber, orderID string, amount decimal.Decimal) error {
	payload, err := json.Marshal(map[string]any{
		"transaction_number": transactionNumber,
		"order_id":           orderID,
		"amount":             amount,
	})
	if err != nil {
		return err
	}
	return f.nc.Publish("fraud.payment.settled", payload)
}
