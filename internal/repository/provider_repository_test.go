package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipay/payment-core/internal/models"
)

func newMockProviderRepo(t *testing.T) (*ProviderRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProviderRepository(db), mock
}

func providerRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"code", "kind", "is_active", "min_amount", "max_amount",
		"fixed_fee", "percentage_fee", "credentials",
	})
}

func TestGetProvider(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM payment_providers").
		WithArgs("card").
		WillReturnRows(providerRow().AddRow(
			"card", "card_wallet", true, "10", "50000", "2.50", "0.0275",
			[]byte(`{"api_key":"k"}`)))

	p, err := repo.GetProvider(context.Background(), "card")
	require.NoError(t, err)
	assert.Equal(t, models.KindCardWallet, p.Kind)
	assert.True(t, p.PercentageFee.Equal(decimal.RequireFromString("0.0275")))
	assert.JSONEq(t, `{"api_key":"k"}`, string(p.Credentials))
}

func TestGetProviderUnknownCode(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM payment_providers").
		WithArgs("nope").
		WillReturnRows(providerRow())

	p, err := repo.GetProvider(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestListActiveProviders(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM payment_providers WHERE is_active").
		WillReturnRows(providerRow().
			AddRow("bank_transfer", "bank_transfer", true, "1", "100000", "0", "0.01", nil).
			AddRow("card", "card_wallet", true, "10", "50000", "2.50", "0.0275", nil))

	providers, err := repo.ListActiveProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "bank_transfer", providers[0].Code)
	assert.Equal(t, "card", providers[1].Code)
}
