package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/metrics"
	"github.com/unipay/payment-core/internal/models"
	"github.com/unipay/payment-core/internal/telemetry"
)

// WebhookProcessor performs the authoritative state transition for a
// transaction: it verifies the provider's signature, deduplicates retried
// deliveries through the ledger, and applies the conditional update. Stale or
// duplicate deliveries are absorbed as success.
type WebhookProcessor struct {
	store    interfaces.TransactionStore
	registry gatewayResolver
	notifier interfaces.Notifier
}

func NewWebhookProcessor(store interfaces.TransactionStore, reg gatewayResolver, notifier interfaces.Notifier) *WebhookProcessor {
	return &WebhookProcessor{store: store, registry: reg, notifier: notifier}
}

func (p *WebhookProcessor) HandleWebhook(ctx context.Context, providerCode string, payload []byte, signature string) error {
	_, gw, err := p.registry.GatewayForWebhook(ctx, providerCode)
	if err != nil {
		return err
	}

	notice, err := gw.ParseWebhook(payload, signature)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(providerCode, "rejected").Inc()
		return err
	}

	tx, err := p.store.GetByTransactionNumber(ctx, notice.TransactionNumber)
	if err != nil {
		return err
	}

	fields := models.StatusFields{}
	switch notice.Outcome {
	case models.StatusCompleted, models.StatusRefunded:
		now := time.Now().UTC()
		fields.CompletedAt = &now
	case models.StatusFailed:
		reason := notice.FailureReason
		fields.FailureReason = &reason
	}

	// judged against the stored status at apply time; a premature delivery
	// (row still pending) comes back as ErrInvalidTransition and the 5xx
	// response makes the provider retry it
	applied, duplicate, err := p.store.ApplyWebhookTransition(ctx, providerCode, notice.EventID, tx.ID, notice.Outcome, fields)
	if err != nil {
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues(providerCode, string(notice.Outcome)).Inc()

	if duplicate || !applied {
		telemetry.Logger.Info("Webhook absorbed without effect",
			zap.String("provider", providerCode),
			zap.String("event_id", notice.EventID),
			zap.String("stored_status", string(tx.Status)),
			zap.String("outcome", string(notice.Outcome)),
			zap.Bool("duplicate", duplicate),
		)
		return nil
	}

	telemetry.Logger.Info("Webhook applied",
		zap.String("provider", providerCode),
		zap.String("transaction_number", tx.TransactionNumber),
		zap.String("seen_status", string(tx.Status)),
		zap.String("to_status", string(notice.Outcome)),
	)

	if notice.Outcome == models.StatusCompleted && p.notifier != nil {
		// fire-and-forget: settlement is already committed
		if err := p.notifier.OnPaymentSettled(ctx, tx.TransactionNumber, tx.OrderID, tx.Amount); err != nil {
			telemetry.Logger.Error("Settlement notification failed",
				zap.String("transaction_number", tx.TransactionNumber),
				zap.Error(err),
			)
		}
	}
	return nil
}
