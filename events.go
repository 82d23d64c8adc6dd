package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a payment lifecycle event, used by the HTTP
// transport to surface payment activity for logging and monitoring.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// URL is the resource being accessed.
	URL string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the token ledger canister principal.
	Asset string

	// Network is the network identifier.
	Network string

	// Scheme is the payment scheme.
	Scheme string

	// Recipient is the payment recipient principal.
	Recipient string

	// Payer is the principal that made the payment (set on success).
	Payer string

	// Transaction is the composite transaction id (set on success).
	Transaction string

	// Error contains failure details (set on failure).
	Error error

	// Duration is the time taken for the payment operation.
	Duration time.Duration
}

// PaymentCallback handles payment events. Callbacks run synchronously
// during payment processing and should return quickly.
type PaymentCallback func(PaymentEvent)
