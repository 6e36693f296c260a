package vendorapi

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream failure. The engine keys its
// recoverability decisions off this.
type Kind int

const (
	// KindTransport covers network, DNS and timeout failures.
	KindTransport Kind = iota
	// KindRateLimited is an HTTP 429.
	KindRateLimited
	// KindHTTP is any other non-2xx status.
	KindHTTP
	// KindDecode is malformed JSON or an unexpected payload shape.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindHTTP:
		return "http"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// Error is the classified upstream error.
type Error struct {
	Kind   Kind
	Status int // HTTP status for KindHTTP / KindRateLimited
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("vendorapi: %s %s (status %d)", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("vendorapi: %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited satisfies ratelimit.RateLimitedError.
func (e *Error) RateLimited() bool { return e.Kind == KindRateLimited }

// ErrDone signals the end of a page stream.
var ErrDone = errors.New("vendorapi: no more pages")

// KindOf extracts the classification from err, defaulting to
// KindTransport for unclassified failures.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindTransport, false
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
