package replication

import "errors"

// Error classes from the failure taxonomy. Anything not wrapped in one of
// these is treated as transient and retried with backoff.
var (
	// ErrBusinessSkip marks a legitimate business-rule skip: recorded,
	// not retried, not alerted.
	ErrBusinessSkip = errors.New("replication: business rule skip")

	// ErrIntegrity marks a ledger/trade-store disagreement. Fatal for the
	// single (event, subscription) pair; alerted for manual reconciliation.
	ErrIntegrity = errors.New("replication: data integrity error")

	// ErrConfig marks missing or invalid process configuration (e.g. the
	// commission cap). The affected leg is deferred, never applied with a
	// guessed value.
	ErrConfig = errors.New("replication: configuration error")

	// ErrOpenInFlight is returned when a CLOSE finds its OPEN intent still
	// pending past the wait timeout. The CLOSE is parked for the sweep.
	ErrOpenInFlight = errors.New("replication: open event still in flight")
)
