// Package failure defines the error kinds surfaced by the token and
// segment-fetch paths.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need to react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotConnected means no credential or access token is stored.
	KindNotConnected
	// KindAuthExpired means the provider rejected the token or refresh failed.
	KindAuthExpired
	KindNotFound
	KindRateLimited
	// KindProvider covers any other non-2xx provider response.
	KindProvider
	KindTimeout
	// KindValidation is only surfaced for inbound request validation.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not_connected"
	case KindAuthExpired:
		return "auth_expired"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindProvider:
		return "provider_error"
	case KindTimeout:
		return "timeout"
	case KindValidation:
		return "validation_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether the caller may retry the same request later.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindTimeout
}

// Error is a classified failure. Status and Body are set for provider
// responses; Body is already truncated to a short excerpt.
type Error struct {
	Kind   Kind
	Status int
	Body   string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package-level sentinels
// work with errors.Is regardless of status or body.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotConnected = &Error{Kind: KindNotConnected, Msg: "strava not connected"}
	ErrAuthExpired  = &Error{Kind: KindAuthExpired, Msg: "strava authentication expired, please reconnect"}
	ErrNotFound     = &Error{Kind: KindNotFound, Msg: "segment not found"}
	ErrRateLimited  = &Error{Kind: KindRateLimited, Msg: "rate limit exceeded, try again in a few minutes"}
	ErrTimeout      = &Error{Kind: KindTimeout, Msg: "request to strava timed out"}
)

// New returns a failure of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Provider returns a ProviderError carrying the upstream status and body excerpt.
func Provider(status int, body string) *Error {
	return &Error{Kind: KindProvider, Status: status, Body: body, Msg: "strava api error"}
}

// Validation wraps err as a validation failure.
func Validation(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Msg: msg, Err: err}
}

// KindOf extracts the failure kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
