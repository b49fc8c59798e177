package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation and state-conflict errors are returned
// synchronously; gateway errors (see internal/gateway) are additionally
// recorded on the transaction row. Nothing here is fatal to the process.
var (
	ErrUnknownProvider        = errors.New("unknown or inactive payment provider")
	ErrAmountOutOfRange       = errors.New("amount outside provider limits")
	ErrDuplicatePayment       = errors.New("payment already exists for this order and provider")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrRefundNotAllowed       = errors.New("transaction is not refundable")
	ErrRefundExceedsBalance   = errors.New("refund amount exceeds remaining balance")
)

// ValidationError marks bad caller input rejected before any side effect.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}
