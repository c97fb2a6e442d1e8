package dashboard

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the dashboard core and service.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidDate             = errors.New("invalid date")
	ErrInvalidSortKey          = errors.New("invalid sort key")
	ErrInvalidBookingID        = errors.New("invalid booking id")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrMalformedPayload        = errors.New("malformed payload")
	ErrNoTransition            = errors.New("no transition available")
	ErrInvalidAction           = errors.New("invalid action")
	ErrStaleTransition         = errors.New("stale transition")
	ErrInvalidBankDetails      = errors.New("invalid bank details")
	ErrUnknownBooking          = errors.New("unknown booking")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrMissingBankDetails      = errors.New("missing bank details")
	ErrMissingSession          = errors.New("missing session")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
