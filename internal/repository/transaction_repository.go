package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/models"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id UUID PRIMARY KEY,
			transaction_number VARCHAR(64) NOT NULL UNIQUE,
			order_id VARCHAR(255) NOT NULL,
			order_number VARCHAR(255) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			fee NUMERIC(12,2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			provider_code VARCHAR(64) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			customer_phone VARCHAR(32) NOT NULL,
			customer_email VARCHAR(255),
			status VARCHAR(32) NOT NULL,
			provider_ref JSONB,
			raw_provider_response JSONB,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		// idempotency key: one non-failed attempt per (order, provider)
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_order_provider
			ON payment_transactions(order_id, provider_code) WHERE status <> 'failed'`,
		`CREATE INDEX IF NOT EXISTS idx_tx_status ON payment_transactions(status)`,
		`CREATE TABLE IF NOT EXISTS payment_refunds (
			id UUID PRIMARY KEY,
			transaction_id UUID NOT NULL REFERENCES payment_transactions(id),
			amount NUMERIC(12,2) NOT NULL,
			reason TEXT NOT NULL,
			requested_by VARCHAR(255),
			status VARCHAR(32) NOT NULL,
			gateway_ref VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			provider VARCHAR(64) NOT NULL,
			provider_event_id VARCHAR(255) NOT NULL,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (provider, provider_event_id)
		)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransactionRepository) InsertTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	var providerRef, raw any
	if tx.ProviderRef != nil {
		b, err := json.Marshal(tx.ProviderRef)
		if err != nil {
			return err
		}
		providerRef = b
	}
	if len(tx.RawProviderResp) > 0 {
		raw = []byte(tx.RawProviderResp)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions
			(id, transaction_number, order_id, order_number, amount, fee, currency,
			 provider_code, customer_name, customer_phone, customer_email, status,
			 provider_ref, raw_provider_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
	`, tx.ID, tx.TransactionNumber, tx.OrderID, tx.OrderNumber, tx.Amount, tx.Fee,
		tx.Currency, tx.ProviderCode, tx.Customer.Name, tx.Customer.Phone,
		nullString(tx.Customer.Email), tx.Status, providerRef, raw)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.ErrDuplicatePayment
		}
		return err
	}
	return nil
}

const txColumns = `id, transaction_number, order_id, order_number, amount, fee, currency,
	provider_code, customer_name, customer_phone, customer_email, status,
	provider_ref, raw_provider_response, failure_reason, created_at, completed_at`

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *TransactionRepository) GetByTransactionNumber(ctx context.Context, number string) (*models.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE transaction_number = $1`, number)
	return scanTransaction(row)
}

// UpdateTransactionStatus is the conditional update: it applies only when the
// stored status still equals from, and rejects transitions outside the state
// machine with models.ErrInvalidTransition. This is the sole synchronization
// primitive for concurrent webhook redelivery and status polling.
func (r *TransactionRepository) UpdateTransactionStatus(ctx context.Context, id string, from, to models.TransactionStatus, fields models.StatusFields) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, models.ErrInvalidTransition
	}
	return r.conditionalUpdate(ctx, r.db, id, from, to, fields)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *TransactionRepository) conditionalUpdate(ctx context.Context, db execer, id string, from, to models.TransactionStatus, fields models.StatusFields) (bool, error) {
	var providerRef, raw any
	if fields.ProviderRef != nil {
		b, err := json.Marshal(fields.ProviderRef)
		if err != nil {
			return false, err
		}
		providerRef = b
	}
	if len(fields.RawProviderResp) > 0 {
		raw = []byte(fields.RawProviderResp)
	}

	result, err := db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1,
			provider_ref = COALESCE($2, provider_ref),
			raw_provider_response = COALESCE($3, raw_provider_response),
			failure_reason = COALESCE($4, failure_reason),
			completed_at = COALESCE($5, completed_at),
			updated_at = NOW()
		WHERE id = $6 AND status = $7
	`, to, providerRef, raw, fields.FailureReason, fields.CompletedAt, id, from)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ReserveRefund inserts the refund as pending after revalidating eligibility
// and the remaining balance under a row lock on the transaction. The pending
// row reserves its amount, so a concurrent refund of the same transaction
// either waits here or fails the balance check before its rail is charged.
func (r *TransactionRepository) ReserveRefund(ctx context.Context, refund *models.PaymentRefund) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	var (
		amount decimal.Decimal
		status models.TransactionStatus
	)
	err = dbTx.QueryRowContext(ctx, `
		SELECT amount, status FROM payment_transactions WHERE id = $1 FOR UPDATE
	`, refund.TransactionID).Scan(&amount, &status)
	if err == sql.ErrNoRows {
		return models.ErrTransactionNotFound
	}
	if err != nil {
		return err
	}
	if !status.Refundable() {
		return models.ErrRefundNotAllowed
	}

	var reserved decimal.Decimal
	err = dbTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payment_refunds
		WHERE transaction_id = $1 AND status IN ('pending', 'completed')
	`, refund.TransactionID).Scan(&reserved)
	if err != nil {
		return err
	}
	if refund.Amount.Cmp(amount.Sub(reserved)) > 0 {
		return models.ErrRefundExceedsBalance
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO payment_refunds
			(id, transaction_id, amount, reason, requested_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, refund.ID, refund.TransactionID, refund.Amount, refund.Reason,
		nullString(refund.RequestedBy), models.RefundPending)
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

// FinalizeRefund resolves a pending reservation. On success the refund
// completes and the transaction moves to refunded or partially_refunded based
// on the completed total; on failure the reservation is released and the
// transaction is left untouched.
func (r *TransactionRepository) FinalizeRefund(ctx context.Context, refundID, transactionID, gatewayRef string, succeeded bool) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	if !succeeded {
		_, err = dbTx.ExecContext(ctx, `
			UPDATE payment_refunds SET status = $1 WHERE id = $2
		`, models.RefundFailed, refundID)
		if err != nil {
			return err
		}
		return dbTx.Commit()
	}

	var (
		amount decimal.Decimal
		status models.TransactionStatus
	)
	err = dbTx.QueryRowContext(ctx, `
		SELECT amount, status FROM payment_transactions WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(&amount, &status)
	if err != nil {
		return err
	}

	_, err = dbTx.ExecContext(ctx, `
		UPDATE payment_refunds
		SET status = $1, gateway_ref = $2, completed_at = NOW()
		WHERE id = $3
	`, models.RefundCompleted, nullString(gatewayRef), refundID)
	if err != nil {
		return err
	}

	var completed decimal.Decimal
	err = dbTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payment_refunds
		WHERE transaction_id = $1 AND status = 'completed'
	`, transactionID).Scan(&completed)
	if err != nil {
		return err
	}

	target := models.StatusPartiallyRefunded
	if completed.Cmp(amount) >= 0 {
		target = models.StatusRefunded
	}
	if models.CanTransition(status, target) {
		if _, err := r.conditionalUpdate(ctx, dbTx, transactionID, status, target, models.StatusFields{}); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

func (r *TransactionRepository) RefundedTotal(ctx context.Context, transactionID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payment_refunds
		WHERE transaction_id = $1 AND status = 'completed'
	`, transactionID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// ApplyWebhookTransition records the event in the dedup ledger and applies
// the conditional status update in one database transaction, so ledger-write
// and status-change either both happen or neither does. The transition is
// judged against the status stored right now, read under a row lock, not
// against whatever snapshot the caller saw. A delivery that arrives before
// the row has left pending is premature: it is not ledgered and fails with
// ErrInvalidTransition, so the provider's retry lands once the row settles.
// A genuinely stale delivery (the row moved past the target long ago) is
// ledgered and reported as applied=false.
func (r *TransactionRepository) ApplyWebhookTransition(ctx context.Context, provider, eventID, transactionID string, to models.TransactionStatus, fields models.StatusFields) (bool, bool, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, err
	}
	defer dbTx.Rollback()

	result, err := dbTx.ExecContext(ctx, `
		INSERT INTO webhook_events (provider, provider_event_id, processed)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, provider, eventID)
	if err != nil {
		return false, false, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, false, err
	}
	if inserted == 0 {
		return false, true, nil
	}

	var current models.TransactionStatus
	err = dbTx.QueryRowContext(ctx, `
		SELECT status FROM payment_transactions WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(&current)
	if err == sql.ErrNoRows {
		return false, false, models.ErrTransactionNotFound
	}
	if err != nil {
		return false, false, err
	}

	applied := false
	switch {
	case models.CanTransition(current, to):
		applied, err = r.conditionalUpdate(ctx, dbTx, transactionID, current, to, fields)
		if err != nil {
			return false, false, err
		}
	case current == models.StatusPending:
		// initiation is still in flight; rolling back keeps the event out of
		// the ledger so the provider's retry is not absorbed as a duplicate
		return false, false, models.ErrInvalidTransition
	}

	if err := dbTx.Commit(); err != nil {
		return false, false, err
	}
	return applied, false, nil
}

func scanTransaction(row *sql.Row) (*models.PaymentTransaction, error) {
	var (
		tx            models.PaymentTransaction
		email         sql.NullString
		providerRef   []byte
		raw           []byte
		failureReason sql.NullString
		completedAt   sql.NullTime
	)
	err := row.Scan(&tx.ID, &tx.TransactionNumber, &tx.OrderID, &tx.OrderNumber,
		&tx.Amount, &tx.Fee, &tx.Currency, &tx.ProviderCode,
		&tx.Customer.Name, &tx.Customer.Phone, &email, &tx.Status,
		&providerRef, &raw, &failureReason, &tx.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Customer.Email = email.String
	tx.FailureReason = failureReason.String
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}
	if len(providerRef) > 0 {
		var ref models.ProviderRef
		if err := json.Unmarshal(providerRef, &ref); err != nil {
			return nil, fmt.Errorf("decoding provider_ref: %w", err)
		}
		tx.ProviderRef = &ref
	}
	if len(raw) > 0 {
		tx.RawProviderResp = json.RawMessage(raw)
	}
	return &tx, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
