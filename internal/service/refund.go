package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/metrics"
	"github.com/unipay/payment-core/internal/models"
	"github.com/unipay/payment-core/internal/telemetry"
)

// RefundManager validates refund eligibility and drives Refund on the right
// adapter. The amount is reserved in the store before the rail is charged:
// concurrent refunds of the same transaction serialize at the reservation, so
// the sum of refunds can never exceed the transaction amount and the rail is
// charged at most once per reservation.
type RefundManager struct {
	store          interfaces.TransactionStore
	registry       gatewayResolver
	gatewayTimeout time.Duration
}

func NewRefundManager(store interfaces.TransactionStore, reg gatewayResolver, gatewayTimeout time.Duration) *RefundManager {
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	return &RefundManager{store: store, registry: reg, gatewayTimeout: gatewayTimeout}
}

func (m *RefundManager) Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResult, error) {
	if req.Reason == "" {
		return nil, &models.ValidationError{Field: "reason", Msg: "required"}
	}

	tx, err := m.store.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if !tx.Status.Refundable() {
		return nil, models.ErrRefundNotAllowed
	}

	refunded, err := m.store.RefundedTotal(ctx, tx.ID)
	if err != nil {
		return nil, err
	}

	amount := tx.Amount.Sub(refunded)
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount.Cmp(decimal.Zero) <= 0 {
		return nil, &models.ValidationError{Field: "amount", Msg: "must be positive"}
	}

	// ReserveRefund revalidates eligibility and the balance under a row lock;
	// its verdict, not the reads above, is what admits the refund
	refund := &models.PaymentRefund{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		Amount:        amount,
		Reason:        req.Reason,
		RequestedBy:   req.RequestedBy,
		Status:        models.RefundPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.ReserveRefund(ctx, refund); err != nil {
		return nil, err
	}

	// refunds go through even when the rail is disabled for new payments
	_, gw, err := m.registry.GatewayForWebhook(ctx, tx.ProviderCode)
	if err != nil {
		m.releaseReservation(ctx, refund, tx)
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()

	callRes, err := gw.Refund(gctx, tx, amount, req.Reason)
	if err != nil {
		metrics.RefundsTotal.WithLabelValues(tx.ProviderCode, "failed").Inc()
		telemetry.Logger.Error("Refund call failed",
			zap.String("transaction_number", tx.TransactionNumber),
			zap.String("provider", tx.ProviderCode),
			zap.Error(err),
		)
		m.releaseReservation(ctx, refund, tx)
		return nil, err
	}

	if err := m.store.FinalizeRefund(ctx, refund.ID, tx.ID, callRes.GatewayRef, true); err != nil {
		return nil, err
	}

	metrics.RefundsTotal.WithLabelValues(tx.ProviderCode, string(models.RefundCompleted)).Inc()
	telemetry.Logger.Info("Refund completed",
		zap.String("transaction_number", tx.TransactionNumber),
		zap.String("refund_id", refund.ID),
		zap.String("amount", amount.String()),
	)

	return &models.RefundResult{
		RefundID: refund.ID,
		Status:   models.RefundCompleted,
		Amount:   amount,
	}, nil
}

// releaseReservation marks the pending refund failed so its amount returns to
// the refundable balance. Runs on a detached context: the reservation must
// not outlive a cancelled request.
func (m *RefundManager) releaseReservation(ctx context.Context, refund *models.PaymentRefund, tx *models.PaymentTransaction) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.FinalizeRefund(cleanupCtx, refund.ID, tx.ID, "", false); err != nil {
		telemetry.Logger.Error("Failed to release refund reservation",
			zap.String("transaction_number", tx.TransactionNumber),
			zap.String("refund_id", refund.ID),
			zap.Error(err),
		)
	}
}
