// Package apperrors defines the typed error model shared by every layer of
// the governance engine. Each error carries a machine-readable code so the
// HTTP layer can map failures onto statuses and UIs can distinguish
// "malformed input" from "needs budget override" from "out-of-protocol
// decision".
package apperrors

import (
	"errors"
	"fmt"
)

// Error codes, grouped by the failure taxonomy.
const (
	// Validation errors — caller's fault, never retried.
	ErrCodeInvalidInput   = "invalid_input"
	ErrCodeUnbalanced     = "unbalanced"
	ErrCodeUnknownAccount = "unknown_account"

	// Policy errors — a policy rule refused the mutation.
	ErrCodePeriodLocked      = "period_locked"
	ErrCodeStrictBudgetBlock = "strict_budget_block"

	// Workflow errors — a decision was attempted out of protocol.
	ErrCodeWrongLevel      = "wrong_level"
	ErrCodeSelfApproval    = "self_approval"
	ErrCodeAlreadyTerminal = "already_terminal"

	// Concurrency and infrastructure.
	ErrCodeConflict     = "conflict"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInternal     = "internal"
)

// Error is a code-tagged error. Wrapped causes are preserved for errors.Is/As.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error with a code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a code and a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a malformed or out-of-range field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// Code extracts the error code from err, walking wrapped causes.
// Unknown errors report ErrCodeInternal.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// Retryable reports whether the caller may reasonably retry the request.
// Only concurrency conflicts qualify; everything else is deterministic.
func Retryable(err error) bool {
	return IsCode(err, ErrCodeConflict)
}
