// Package generr defines the domain error taxonomy shared by services and
// handlers. Services return these sentinels (usually wrapped); handlers map
// them to HTTP status codes with errors.Is.
package generr

import "errors"

var (
	// ErrForbidden means the caller lacks the privilege for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced order, item or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means a request value is out of range or malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientBonusBalance means an attempted bonus spend exceeds the
	// user's balance.
	ErrInsufficientBonusBalance = errors.New("insufficient bonus balance")

	// ErrAlreadyProcessed is the idempotency short-circuit. Accrual code
	// treats it as success-no-op, never as a failure.
	ErrAlreadyProcessed = errors.New("already processed")
)
