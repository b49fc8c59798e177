package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/models"
)

// TransactionStore is the persistence port the orchestration core writes
// through. UpdateTransactionStatus is conditional: it only applies when the
// stored status matches from, which is the sole concurrency-control primitive
// the core relies on.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	GetByTransactionNumber(ctx context.Context, number string) (*models.PaymentTransaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, from, to models.TransactionStatus, fields models.StatusFields) (applied bool, err error)

	// ReserveRefund revalidates refund eligibility and the remaining balance
	// under a row lock and inserts the refund as pending, all in one
	// transactional unit. Concurrent refunds serialize here, before any rail
	// is charged.
	ReserveRefund(ctx context.Context, refund *models.PaymentRefund) error
	// FinalizeRefund resolves a reservation after the rail call: success
	// completes the refund and moves the transaction to refunded or
	// partially_refunded based on the completed total; failure releases the
	// reservation.
	FinalizeRefund(ctx context.Context, refundID, transactionID, gatewayRef string, succeeded bool) error
	RefundedTotal(ctx context.Context, transactionID string) (decimal.Decimal, error)

	// ApplyWebhookTransition records the event in the dedup ledger and applies
	// the conditional status update in one transactional unit, judged against
	// the status stored at that moment rather than any caller snapshot.
	// duplicate is true when the (provider, eventID) pair was already
	// processed. A delivery that is premature (the row has not yet left
	// pending) is not ledgered and fails with ErrInvalidTransition so the
	// provider retries it.
	ApplyWebhookTransition(ctx context.Context, provider, eventID, transactionID string, to models.TransactionStatus, fields models.StatusFields) (applied, duplicate bool, err error)
}

// ProviderStore reads rail configuration. Rows are managed elsewhere and are
// read-only here.
type ProviderStore interface {
	GetProvider(ctx context.Context, code string) (*models.PaymentProvider, error)
	ListActiveProviders(ctx context.Context) ([]*models.PaymentProvider, error)
}
