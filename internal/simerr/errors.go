// Package simerr defines the error kinds surfaced by the simulation core.
package simerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a machine-readable error code.
type Kind string

const (
	KindUnknownParameter          Kind = "UNKNOWN_PARAMETER"
	KindUnknownTreatment          Kind = "UNKNOWN_TREATMENT"
	KindTreatmentNotApplicableNow Kind = "TREATMENT_NOT_APPLICABLE_NOW"
	KindCaseNotFound              Kind = "CASE_NOT_FOUND"
	KindChallengeAlreadyResolved  Kind = "CHALLENGE_ALREADY_RESOLVED"
	KindInvalidCaseData           Kind = "INVALID_CASE_DATA"
	KindSessionStateConflict      Kind = "SESSION_STATE_CONFLICT"
	KindSessionNotFound           Kind = "SESSION_NOT_FOUND"
)

// Code returns the lower-cased kind used in API error envelopes.
func (k Kind) Code() string {
	return strings.ToLower(string(k))
}

// Sentinels for errors.Is checks. Any *Error with the same kind matches.
var (
	ErrUnknownParameter          = &Error{Kind: KindUnknownParameter}
	ErrUnknownTreatment          = &Error{Kind: KindUnknownTreatment}
	ErrTreatmentNotApplicableNow = &Error{Kind: KindTreatmentNotApplicableNow}
	ErrCaseNotFound              = &Error{Kind: KindCaseNotFound}
	ErrChallengeAlreadyResolved  = &Error{Kind: KindChallengeAlreadyResolved}
	ErrInvalidCaseData           = &Error{Kind: KindInvalidCaseData}
	ErrSessionStateConflict      = &Error{Kind: KindSessionStateConflict}
	ErrSessionNotFound           = &Error{Kind: KindSessionNotFound}
)

// Error is a classified simulation error.
type Error struct {
	Kind    Kind
	Message string
}

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
