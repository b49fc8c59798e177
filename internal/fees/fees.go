// Package fees implements the pure fee calculation for all rails.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/models"
)

// CalculateFee returns fixedFee + amount*percentageFee rounded to 2 decimal
// places. Amount bounds are deliberately not checked here; that is the
// orchestrator's job, which keeps this function total and trivially testable.
func CalculateFee(amount decimal.Decimal, provider *models.PaymentProvider) decimal.Decimal {
	return provider.FixedFee.Add(amount.Mul(provider.PercentageFee)).Round(2)
}

// Quote expands a fee into the caller-facing breakdown.
func Quote(amount decimal.Decimal, provider *models.PaymentProvider) models.FeeQuote {
	fee := CalculateFee(amount, provider)
	return models.FeeQuote{
		Amount:    amount,
		Fee:       fee,
		Total:     amount.Add(fee),
		NetAmount: amount.Sub(fee),
	}
}
