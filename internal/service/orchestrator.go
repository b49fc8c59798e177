package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/unipay/payment-core/internal/fees"
	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/metrics"
	"github.com/unipay/payment-core/internal/models"
	"github.com/unipay/payment-core/internal/telemetry"
)

const defaultGatewayTimeout = 15 * time.Second

// gatewayResolver is what the services need from the provider registry.
type gatewayResolver interface {
	Gateway(ctx context.Context, code string) (*models.PaymentProvider, interfaces.Gateway, error)
	GatewayForWebhook(ctx context.Context, code string) (*models.PaymentProvider, interfaces.Gateway, error)
	Provider(ctx context.Context, code string) (*models.PaymentProvider, error)
	ActiveProviders(ctx context.Context) ([]*models.PaymentProvider, error)
}

// Orchestrator validates a payment request, picks the rail adapter, computes
// the fee, persists the transaction and drives Initiate. Exactly one
// transaction row is created per call and the initiate call is never retried.
type Orchestrator struct {
	store          interfaces.TransactionStore
	registry       gatewayResolver
	redisClient    *redis.Client
	gatewayTimeout time.Duration
	newTxNumber    func() string
}

func NewOrchestrator(store interfaces.TransactionStore, reg gatewayResolver, redisClient *redis.Client, gatewayTimeout time.Duration) (*Orchestrator, error) {
	gen, err := nanoid.CustomASCII("0123456789ABCDEFGHJKMNPQRSTVWXYZ", 14)
	if err != nil {
		return nil, fmt.Errorf("building transaction number generator: %w", err)
	}
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	return &Orchestrator{
		store:          store,
		registry:       reg,
		redisClient:    redisClient,
		gatewayTimeout: gatewayTimeout,
		newTxNumber:    func() string { return "PAY-" + gen() },
	}, nil
}

func (o *Orchestrator) CreatePayment(ctx context.Context, req *models.CreatePaymentRequest) (*models.PaymentResult, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	provider, gw, err := o.registry.Gateway(ctx, req.ProviderCode)
	if err != nil {
		return nil, err
	}
	if !provider.AmountInRange(req.Amount) {
		return nil, models.ErrAmountOutOfRange
	}

	tx := &models.PaymentTransaction{
		ID:                uuid.NewString(),
		TransactionNumber: o.newTxNumber(),
		OrderID:           req.OrderID,
		OrderNumber:       req.OrderNumber,
		Amount:            req.Amount,
		Fee:               fees.CalculateFee(req.Amount, provider),
		Currency:          req.Currency,
		ProviderCode:      provider.Code,
		Customer:          req.Customer,
		Status:            models.StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if tx.Currency == "" {
		tx.Currency = "EGP"
	}

	// fast duplicate guard ahead of the DB uniqueness constraint
	if o.redisClient != nil {
		lockKey := fmt.Sprintf("payment_lock:%s:%s", req.OrderID, provider.Code)
		locked, lockErr := o.redisClient.SetNX(ctx, lockKey, tx.TransactionNumber, 30*time.Second).Result()
		if lockErr == nil && !locked {
			return nil, models.ErrDuplicatePayment
		}
	}

	if err := o.store.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}

	// A cancelled or panicking initiate must not leave the row pending
	// forever; resolve it to failed on any path that didn't finish.
	resolved := false
	defer func() {
		if resolved {
			return
		}
		o.resolveAbandoned(ctx, tx)
	}()

	gctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout)
	defer cancel()

	initRes, initErr := gw.Initiate(gctx, tx)
	if initErr != nil {
		resolved = true
		return o.failTransaction(ctx, tx, initErr)
	}

	applied, err := o.store.UpdateTransactionStatus(ctx, tx.ID, models.StatusPending, initRes.Status, models.StatusFields{
		ProviderRef:     &initRes.ProviderRef,
		RawProviderResp: initRes.Raw,
	})
	resolved = true
	if err != nil {
		return nil, err
	}
	if !applied {
		// a webhook raced ahead of us; the stored status wins
		telemetry.Logger.Warn("Initiate result lost conditional update",
			zap.String("transaction_number", tx.TransactionNumber))
	}

	metrics.PaymentsCreatedTotal.WithLabelValues(provider.Code, string(initRes.Status)).Inc()
	telemetry.Logger.Info("Payment created",
		zap.String("transaction_number", tx.TransactionNumber),
		zap.String("provider", provider.Code),
		zap.String("status", string(initRes.Status)),
		zap.String("amount", tx.Amount.String()),
	)

	return &models.PaymentResult{
		TransactionNumber: tx.TransactionNumber,
		Status:            initRes.Status,
		Amount:            tx.Amount,
		Fee:               tx.Fee,
		Currency:          tx.Currency,
		PaymentURL:        initRes.ProviderRef.PaymentURL,
		QRCode:            initRes.ProviderRef.QRCode,
		DeepLink:          initRes.ProviderRef.DeepLink,
		ReferenceCode:     initRes.ProviderRef.ReferenceCode,
		ReferenceExpiry:   initRes.ProviderRef.ReferenceExpiry,
	}, nil
}

// failTransaction records a gateway failure on the row and still returns a
// result object so the caller can show a clean failure.
func (o *Orchestrator) failTransaction(ctx context.Context, tx *models.PaymentTransaction, initErr error) (*models.PaymentResult, error) {
	reason := initErr.Error()
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := o.store.UpdateTransactionStatus(cleanupCtx, tx.ID, models.StatusPending, models.StatusFailed, models.StatusFields{
		FailureReason: &reason,
	}); err != nil {
		telemetry.Logger.Error("Failed to mark transaction failed",
			zap.String("transaction_number", tx.TransactionNumber),
			zap.Error(err),
		)
	}

	metrics.PaymentsCreatedTotal.WithLabelValues(tx.ProviderCode, string(models.StatusFailed)).Inc()
	telemetry.Logger.Error("Payment initiation failed",
		zap.String("transaction_number", tx.TransactionNumber),
		zap.String("provider", tx.ProviderCode),
		zap.Error(initErr),
	)

	return &models.PaymentResult{
		TransactionNumber: tx.TransactionNumber,
		Status:            models.StatusFailed,
		Amount:            tx.Amount,
		Fee:               tx.Fee,
		Currency:          tx.Currency,
		FailureReason:     reason,
	}, initErr
}

func (o *Orchestrator) resolveAbandoned(ctx context.Context, tx *models.PaymentTransaction) {
	reason := "payment initiation aborted"
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := o.store.UpdateTransactionStatus(cleanupCtx, tx.ID, models.StatusPending, models.StatusFailed, models.StatusFields{
		FailureReason: &reason,
	}); err != nil {
		telemetry.Logger.Error("Failed to resolve abandoned transaction",
			zap.String("transaction_number", tx.TransactionNumber),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) GetPaymentStatus(ctx context.Context, transactionNumber string) (*models.PaymentStatusResult, error) {
	tx, err := o.store.GetByTransactionNumber(ctx, transactionNumber)
	if err != nil {
		return nil, err
	}
	return &models.PaymentStatusResult{
		TransactionNumber: tx.TransactionNumber,
		Status:            tx.Status,
		CompletedAt:       tx.CompletedAt,
		FailureReason:     tx.FailureReason,
	}, nil
}

func (o *Orchestrator) QuoteFee(ctx context.Context, amount decimal.Decimal, providerCode string) (*models.FeeQuote, error) {
	if amount.Cmp(decimal.Zero) <= 0 {
		return nil, &models.ValidationError{Field: "amount", Msg: "must be positive"}
	}
	provider, err := o.registry.Provider(ctx, providerCode)
	if err != nil {
		return nil, err
	}
	quote := fees.Quote(amount, provider)
	return &quote, nil
}

// ListProviders returns the rails open for new payments, for checkout to
// render payment options with their limits and fee schedules.
func (o *Orchestrator) ListProviders(ctx context.Context) ([]*models.PaymentProvider, error) {
	return o.registry.ActiveProviders(ctx)
}

func validateCreateRequest(req *models.CreatePaymentRequest) error {
	switch {
	case req.OrderID == "":
		return &models.ValidationError{Field: "order_id", Msg: "required"}
	case req.OrderNumber == "":
		return &models.ValidationError{Field: "order_number", Msg: "required"}
	case req.ProviderCode == "":
		return &models.ValidationError{Field: "provider_code", Msg: "required"}
	case req.Amount.Cmp(decimal.Zero) <= 0:
		return &models.ValidationError{Field: "amount", Msg: "must be positive"}
	case req.Customer.Name == "":
		return &models.ValidationError{Field: "customer.name", Msg: "required"}
	case req.Customer.Phone == "":
		return &models.ValidationError{Field: "customer.phone", Msg: "required"}
	}
	return nil
}
