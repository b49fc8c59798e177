package models

import "time"

// WebhookEvent is a row in the dedup ledger. (Provider, ProviderEventID) is
// unique, which is what guarantees at-most-once processing of retried
// provider callbacks.
type WebhookEvent struct {
	Provider        string    `json:"provider"`
	ProviderEventID string    `json:"provider_event_id"`
	ReceivedAt      time.Time `json:"received_at"`
	Processed       bool      `json:"processed"`
}

// WebhookNotice is the normalized form of a verified provider callback, as
// produced by the rail's adapter.
type WebhookNotice struct {
	EventID           string
	TransactionNumber string
	Outcome           TransactionStatus
	RawEventType      string
	FailureReason     string
}
