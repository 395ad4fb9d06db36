package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindTransient:           "transient",
		KindAuthFailure:         "auth_failure",
		KindInsufficientCapital: "insufficient_capital",
		KindRiskRejected:        "risk_rejected",
		KindDataUnavailable:     "data_unavailable",
		KindPermanent:           "permanent",
		KindInvariantViolation:  "invariant_violation",
		Kind(99):                "unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestNewAndWrap(t *testing.T) {
	e := New(KindPermanent, "market.FetchCandles", "unsupported symbol")
	assert.Equal(t, "market.FetchCandles: unsupported symbol", e.Error())
	assert.Nil(t, e.Unwrap())

	cause := errors.New("dial tcp: timeout")
	w := Wrap(KindTransient, "exchange.FetchTicker", "request failed", cause)
	assert.Equal(t, "exchange.FetchTicker: request failed: dial tcp: timeout", w.Error())
	assert.Equal(t, cause, w.Unwrap())
}

func TestIs(t *testing.T) {
	err := New(KindInsufficientCapital, "trade.ExecuteEntry", "capital below cost")
	assert.True(t, Is(err, KindInsufficientCapital))
	assert.False(t, Is(err, KindTransient))
	assert.False(t, Is(errors.New("plain"), KindTransient))
}

func TestKindOf(t *testing.T) {
	err := New(KindInvariantViolation, "trade.ExecuteExit", "capital drift exceeded")
	require.Equal(t, KindInvariantViolation, KindOf(err))

	// Unclassified errors default to Transient so the engine retries
	// rather than silently treating an unknown failure as permanent.
	assert.Equal(t, KindTransient, KindOf(errors.New("plain")))
}

func TestWrapPreservesErrorsAs(t *testing.T) {
	cause := Wrap(KindAuthFailure, "oracle.analyze", "401 from provider", errors.New("unauthorized"))
	outer := Wrap(KindTransient, "engine.runCycle", "oracle analyze failed", cause)

	var classified *Error
	require.True(t, errors.As(outer, &classified))
	assert.Equal(t, KindTransient, classified.Kind)

	assert.True(t, Is(cause, KindAuthFailure))
}
