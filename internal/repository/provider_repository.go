package repository

import (
	"context"
	"database/sql"

	"github.com/unipay/payment-core/internal/models"
)

type ProviderRepository struct {
	db *sql.DB
}

func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

func (r *ProviderRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_providers (
			code VARCHAR(64) PRIMARY KEY,
			kind VARCHAR(32) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			min_amount NUMERIC(12,2) NOT NULL,
			max_amount NUMERIC(12,2) NOT NULL,
			fixed_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
			percentage_fee NUMERIC(8,6) NOT NULL DEFAULT 0,
			credentials JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

const providerColumns = `code, kind, is_active, min_amount, max_amount, fixed_fee, percentage_fee, credentials`

// GetProvider returns (nil, nil) for an unknown code; the registry maps that
// to models.ErrUnknownProvider.
func (r *ProviderRepository) GetProvider(ctx context.Context, code string) (*models.PaymentProvider, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM payment_providers WHERE code = $1`, code)
	p, err := scanProvider(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *ProviderRepository) ListActiveProviders(ctx context.Context) ([]*models.PaymentProvider, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM payment_providers WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*models.PaymentProvider
	for rows.Next() {
		p, err := scanProvider(rows.Scan)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func scanProvider(scan func(dest ...any) error) (*models.PaymentProvider, error) {
	var (
		p           models.PaymentProvider
		credentials []byte
	)
	err := scan(&p.Code, &p.Kind, &p.IsActive, &p.MinAmount, &p.MaxAmount,
		&p.FixedFee, &p.PercentageFee, &credentials)
	if err != nil {
		return nil, err
	}
	p.Credentials = credentials
	return &p, nil
}
