package errors

import (
	"errors"
	"fmt"
)

// Input errors: programmer or configuration mistakes, never silently ignored

var (
	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrZeroQuantity indicates a zero or negative fixed-side amount
	ErrZeroQuantity = errors.New("quantity must be positive")

	// ErrUnmappedOperation indicates an operation with no routing rule
	ErrUnmappedOperation = errors.New("operation is not mapped to a route")

	// ErrNoSelection indicates no operation is currently selected
	ErrNoSelection = errors.New("no operation selected")
)

// Liquidity errors: retry is not meaningful until reserves change

var (
	// ErrInsufficientReserves indicates a swap that a pool cannot serve
	ErrInsufficientReserves = errors.New("insufficient pool reserves")

	// ErrDegeneratePool indicates a pool with one or both reserves at zero
	ErrDegeneratePool = errors.New("pool has empty reserves")
)

// Approval errors: recoverable by requesting a new approval

var (
	// ErrApprovalRequired indicates missing token allowances for a plan
	ErrApprovalRequired = errors.New("token approval required")

	// ErrApprovalRejected indicates the user declined the approval
	ErrApprovalRejected = errors.New("approval rejected by user")

	// ErrApprovalFailed indicates the approval transaction reverted
	ErrApprovalFailed = errors.New("approval transaction failed")
)

// Numeric errors: logged and surfaced, never retried automatically

var (
	// ErrNoConvergence indicates an iterative solver hit its iteration cap
	ErrNoConvergence = errors.New("solver did not converge")
)

// Chain errors: surfaced to the user, retryable by re-invoking the routing call

var (
	// ErrRPCUnavailable indicates the chain endpoint could not be reached
	ErrRPCUnavailable = errors.New("chain rpc unavailable")

	// ErrTxRejected indicates the wallet declined to sign
	ErrTxRejected = errors.New("transaction rejected by user")

	// ErrTxReverted indicates the transaction reverted on chain
	ErrTxReverted = errors.New("transaction reverted")

	// ErrSubmissionInProgress indicates a submit while one is already pending
	ErrSubmissionInProgress = errors.New("submission already in progress")

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
