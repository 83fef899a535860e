package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport layer.
type Kind int

const (
	KindUnexpected Kind = iota
	KindMissingInput
	KindInvalidInput
	KindUnauthenticated
	KindNotFound
	KindEntitlementRequired
	KindRateLimited
	KindInvalidGrant
	KindResolutionUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindEntitlementRequired:
		return "entitlement_required"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidGrant:
		return "invalid_grant"
	case KindResolutionUnavailable:
		return "resolution_unavailable"
	default:
		return "unexpected"
	}
}

// Error is returned by Service operations. Code is stable and machine
// readable; Message is shown to end users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnexpected if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func newError(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

func errMissingResourceID() *Error {
	return newError(KindMissingInput, "missing_resource_id", "Wallpaper ID is required", nil)
}

func errInvalidResolution(cause error) *Error {
	return newError(KindInvalidInput, "invalid_resolution", "Resolution must be one of standard, high or ultra", cause)
}

func errUnauthenticated() *Error {
	return newError(KindUnauthenticated, "unauthorized", "Authentication required", nil)
}

func errResourceNotFound(cause error) *Error {
	return newError(KindNotFound, "resource_not_found", "Wallpaper not found", cause)
}

func errRateLimited(cause error) *Error {
	return newError(KindRateLimited, "rate_limit_exceeded", "Download limit reached. Upgrade to premium for unlimited downloads.", cause)
}

func errResolutionUnavailable(res string) *Error {
	return newError(KindResolutionUnavailable, "resolution_unavailable", fmt.Sprintf("This wallpaper is not available in %s resolution", res), nil)
}

func errInvalidGrant(code string, cause error) *Error {
	msg := "Download link is invalid"
	if code == "grant_expired" {
		msg = "Download link has expired"
	}
	return newError(KindInvalidGrant, code, msg, cause)
}

func errUnexpected(cause error) *Error {
	return newError(KindUnexpected, "internal_error", "Something went wrong, please try again", cause)
}
