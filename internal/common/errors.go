// Package common defines shared constants and sentinel errors used across
// the gatekeeper packages. Callers should use errors.Is / errors.As to match
// these values; KindOf folds any error into the closed set of failure kinds
// exposed to the routing layer.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Input errors.
	ErrValidation = errors.New("validation error")
	ErrDuplicate  = errors.New("already exists")

	// Credential and permission errors.
	ErrAuth      = errors.New("authentication failed")
	ErrForbidden = errors.New("only administrators can perform this operation")

	// ErrInvariantViolation is returned for transitions forbidden by a standing
	// rule: an admin account can be neither demoted nor removed.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrStore marks connectivity, timeout and transaction failures.
	ErrStore = errors.New("store error")

	// Bearer token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// DuplicateError reports a username or email collision.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s is already in use", e.Field)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// StoreError hides the underlying driver error from Error() so it is safe to
// hand to callers, while Unwrap keeps it reachable for logging and errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return "store error: " + e.Op + " failed"
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// Kind is the closed set of failure kinds an operation can report.
type Kind string

const (
	KindNone               Kind = ""
	KindValidation         Kind = "validation"
	KindDuplicate          Kind = "duplicate"
	KindAuth               Kind = "auth"
	KindAuthorization      Kind = "authorization"
	KindInvariantViolation Kind = "invariant_violation"
	KindNotFound           Kind = "not_found"
	KindTokenExpired       Kind = "token_expired"
	KindTokenInvalid       Kind = "token_invalid"
	KindStore              Kind = "store"
)

// KindOf maps err to its Kind. Unknown errors are reported as KindStore so
// nothing unexpected is ever presented as success.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariantViolation
	case errors.Is(err, ErrorNotFound):
		return KindNotFound
	case errors.Is(err, ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, ErrInvalidToken):
		return KindTokenInvalid
	default:
		return KindStore
	}
}
