// Package errs defines the error taxonomy shared by every collaborator
// in the trading engine (spec §7). Callers classify failures by
// wrapping them with the constructors here so the engine can decide,
// without string matching, whether to retry, skip a symbol, or halt.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the taxonomy of §7.
type Kind int

const (
	// KindTransient is retryable: exchange 5xx/timeout, datastore
	// deadlock, oracle rate limiting.
	KindTransient Kind = iota
	// KindAuthFailure triggers oracle provider fallback.
	KindAuthFailure
	// KindInsufficientCapital rejects an entry but lets the cycle
	// continue.
	KindInsufficientCapital
	// KindRiskRejected is not a failure; it is a logged gating
	// decision from RiskGate.
	KindRiskRejected
	// KindDataUnavailable means market data for one symbol could not
	// be fetched this cycle; other symbols proceed.
	KindDataUnavailable
	// KindPermanent means the symbol or config is bad; do not retry.
	KindPermanent
	// KindInvariantViolation is fatal: capital drift, a mutated closed
	// position, etc. The engine halts and quarantines itself.
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuthFailure:
		return "auth_failure"
	case KindInsufficientCapital:
		return "insufficient_capital"
	case KindRiskRejected:
		return "risk_rejected"
	case KindDataUnavailable:
		return "data_unavailable"
	case KindPermanent:
		return "permanent"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// classification rather than error text.
type Error struct {
	Kind   Kind
	Op     string // component/operation that raised it, e.g. "market.FetchCandles"
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindTransient for
// unclassified errors so unknown failures are retried rather than
// silently treated as permanent.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}
