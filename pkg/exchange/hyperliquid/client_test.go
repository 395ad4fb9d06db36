package hyperliquid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignerRejectsEmptyKey(t *testing.T) {
	_, err := NewSigner("")
	require.Error(t, err)
}

func TestNewSignerDerivesLowercaseAddress(t *testing.T) {
	// A throwaway key used only to exercise address derivation.
	signer, err := NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), signer.address)
	assert.Equal(t, signer.address, strings.ToLower(signer.address))
}

func TestDecimalFromWireEmptyIsZero(t *testing.T) {
	d := decimalFromWire("")
	assert.True(t, d.IsZero())
}
