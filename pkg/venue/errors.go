package venue

import "fmt"

// Kind is the error taxonomy every adapter operation reports through.
type Kind string

const (
	KindNetwork           Kind = "network"
	KindRateLimited        Kind = "rate_limited"
	KindAuthFailed         Kind = "auth_failed"
	KindBadSymbol          Kind = "bad_symbol"
	KindNotFound           Kind = "not_found"
	KindUnsupported        Kind = "unsupported"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindPartialFill        Kind = "partial_fill"
	KindExchange           Kind = "exchange"
	KindConfig             Kind = "config"
	KindInternal           Kind = "internal"
)

// Error is the uniform error type returned by Adapter operations.
type Error struct {
	Kind    Kind
	Code    string // exchange-specific code, set when Kind == KindExchange
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("venue: %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("venue: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a plain venue error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds a venue error of the given kind wrapping a lower-level error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Exchange builds an Exchange(code, msg) error.
func Exchange(code, msg string) *Error {
	return &Error{Kind: KindExchange, Code: code, Message: msg}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// errors that did not originate from this package.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

// Retriable reports whether the error kind is safe to retry a read on
// (Network/RateLimited, per §7 of the engine's error handling design).
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited:
		return true
	default:
		return false
	}
}
