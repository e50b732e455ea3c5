// Package apperr defines the error taxonomy shared by the identity
// resolver, conversation store, model gateway and HTTP handlers.
//
// Callers branch on the Kind of an error instead of inferring cause from
// an HTTP status code. In particular, "not authenticated" and "tenant not
// set up yet" are distinct kinds so the UI can keep the chat surface
// usable when only tenant provisioning is missing.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on cause.
type Kind int

const (
	// KindUnknown is the zero value; errors outside the taxonomy.
	KindUnknown Kind = iota
	// KindAuthentication: no valid session. The only kind that forces
	// re-authentication.
	KindAuthentication
	// KindNotFound: the target does not exist or is not owned by the
	// caller. Ownership failures are deliberately indistinguishable from
	// nonexistence so other tenants' data cannot be enumerated.
	KindNotFound
	// KindTenantSetup: authenticated identity with no tenant membership.
	// Non-blocking; surfaces as an advisory, never as an auth failure.
	KindTenantSetup
	// KindGateway: the upstream model call failed. Local to one turn.
	KindGateway
	// KindValidation: the request was malformed; rejected before any
	// persistence or gateway call.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindTenantSetup:
		return "tenant_setup"
	case KindGateway:
		return "gateway"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error carries a kind, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an Error of the given kind wrapping a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the caller-safe message of err, or a generic fallback.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// IsNotFound reports whether err is a not-found (or ownership) failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsUnauthenticated reports whether err is an authentication failure.
func IsUnauthenticated(err error) bool { return KindOf(err) == KindAuthentication }
