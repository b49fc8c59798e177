package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type settledEvent struct {
	TransactionNumber string          `json:"transaction_number"`
	OrderID           string          `json:"order_id"`
	Amount            decimal.Decimal `json:"amount"`
	SettledAt         time.Time       `json:"settled_at"`
}

// KafkaNotifier publishes settled payments to the payment.settled topic for
// order fulfillment.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    "payment.settled",
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (n *KafkaNotifier) OnPaymentSettled(ctx context.Context, transactionNumber, orderID string, amount decimal.Decimal) error {
	value, err := json.Marshal(settledEvent{
		TransactionNumber: transactionNumber,
		OrderID:           orderID,
		Amount:            amount,
		SettledAt:         time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: value,
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
