// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure. Callers branch on the kind, never on
// the message text.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindAuthorization     Kind = "authorization"
	KindState             Kind = "state"
	KindStateConflict     Kind = "state_conflict"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindCooldownActive    Kind = "cooldown_active"
	KindOracle            Kind = "oracle"
	KindInternal          Kind = "internal"
)

// Error is the domain error returned by every ledger operation.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same kind, so sentinels below can be
// used with errors.Is regardless of reason.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrState             = &Error{Kind: KindState}
	ErrStateConflict     = &Error{Kind: KindStateConflict}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrCooldownActive    = &Error{Kind: KindCooldownActive}
	ErrOracle            = &Error{Kind: KindOracle}
	ErrInternal          = &Error{Kind: KindInternal}
)

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

func NewValidation(reason string) error { return New(KindValidation, reason) }

func NewAuthorization(reason string) error { return New(KindAuthorization, reason) }

func NewState(reason string) error { return New(KindState, reason) }

func NewStateConflict(reason string) error { return New(KindStateConflict, reason) }

func NewInsufficientFunds(reason string) error { return New(KindInsufficientFunds, reason) }

func NewOracle(reason string, cause error) error { return Wrap(KindOracle, reason, cause) }

func NewInternal(reason string, cause error) error { return Wrap(KindInternal, reason, cause) }

// NewCampaignNotFound reports an unknown or deleted campaign id.
func NewCampaignNotFound(id int) error {
	return New(KindNotFound, fmt.Sprintf("campaign with ID %d not found", id))
}

// NewCooldownActive reports the remaining wait in seconds.
func NewCooldownActive(remainingSeconds int64) error {
	return New(KindCooldownActive, fmt.Sprintf("cooldown period not passed, %ds remaining", remainingSeconds))
}

// KindOf extracts the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
