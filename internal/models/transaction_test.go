package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to TransactionStatus }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusPendingDelivery},
		{StatusPending, StatusFailed},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusExpired},
		{StatusPendingDelivery, StatusCompleted},
		{StatusPendingDelivery, StatusFailed},
		{StatusCompleted, StatusRefunded},
		{StatusCompleted, StatusPartiallyRefunded},
		{StatusPartiallyRefunded, StatusRefunded},
		{StatusPartiallyRefunded, StatusPartiallyRefunded},
	}
	for _, tt := range legal {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s should be legal", tt.from, tt.to)
	}

	illegal := []struct{ from, to TransactionStatus }{
		{StatusCompleted, StatusProcessing},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusRefunded},
		{StatusProcessing, StatusRefunded},
		{StatusProcessing, StatusPending},
	}
	for _, tt := range illegal {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s should be illegal", tt.from, tt.to)
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	all := []TransactionStatus{
		StatusPending, StatusProcessing, StatusPendingDelivery, StatusCompleted,
		StatusFailed, StatusExpired, StatusRefunded, StatusPartiallyRefunded,
	}
	for _, terminal := range []TransactionStatus{StatusFailed, StatusExpired, StatusRefunded} {
		assert.True(t, terminal.IsTerminal())
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to), "%s is terminal, %s -> %s must be illegal", terminal, terminal, to)
		}
	}
}

func TestRefundable(t *testing.T) {
	assert.True(t, StatusCompleted.Refundable())
	assert.True(t, StatusPartiallyRefunded.Refundable())
	assert.False(t, StatusProcessing.Refundable())
	assert.False(t, StatusRefunded.Refundable())
}
