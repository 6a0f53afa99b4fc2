package billing

import "errors"

var (
	// ErrGatewayUnavailable marks transient processor failures (network errors,
	// timeouts, 5xx). Callers may retry with backoff; the payment stays pending.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected marks permanent processor failures (4xx, status=false
	// envelope). Retrying the same request will not help.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")

	// ErrUnknownPayment is returned when no ledger entry exists for a reference.
	ErrUnknownPayment = errors.New("unknown payment reference")

	// ErrPaymentMismatch is returned when the verified amount or currency does
	// not match the stored payment. The payment is finalized as failed.
	ErrPaymentMismatch = errors.New("verified transaction does not match payment")

	// ErrUnknownPlan is returned for a plan outside the catalog or without a price.
	ErrUnknownPlan = errors.New("unknown or unpriced plan")
)
