package hyperliquid

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	mathhex "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func testAction() Action {
	return Action{
		Type:     "order",
		Grouping: "na",
		Orders: []orderPayload{{
			Asset:      1,
			IsBuy:      true,
			LimitPx:    "50000.0",
			Sz:         "0.001",
			ReduceOnly: false,
			OrderType:  orderTypePayload{Limit: &limitOrderPayload{TIF: "Ioc"}},
		}},
	}
}

func TestBuildEIP712DigestMatchesReferenceComputation(t *testing.T) {
	action := testAction()
	nonce := int64(1700000000000)

	digest, err := buildEIP712Digest(action, nonce, true)
	require.NoError(t, err)
	require.Len(t, digest, 32)

	require.Equal(t, computeReferenceDigest(t, action, nonce, true), digest)
}

func TestSignActionProducesDigestSignature(t *testing.T) {
	action := testAction()
	signer, err := NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	nonce := int64(1700000005000)
	req, err := signAction(action, signer, nonce, true)
	require.NoError(t, err)
	require.Equal(t, nonce, req.Nonce)
	require.Equal(t, action, req.Action)

	digest := computeReferenceDigest(t, action, nonce, true)
	sigBytes, err := crypto.Sign(digest, signer.privateKey)
	require.NoError(t, err)

	require.Equal(t, "0x"+common.Bytes2Hex(sigBytes[:32]), req.Signature.R)
	require.Equal(t, "0x"+common.Bytes2Hex(sigBytes[32:64]), req.Signature.S)
	require.Equal(t, int(sigBytes[64])+27, req.Signature.V)
}

func TestConvertStr16ToStr8RewritesShortStrings(t *testing.T) {
	// 0xda + 2-byte length header for a 5-byte string, as Go's msgpack
	// encoder would emit for a field Python's reference encoder packs
	// as str8.
	in := []byte{0xda, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	out := convertStr16ToStr8(in)
	require.Equal(t, []byte{0xd9, 0x05, 'h', 'e', 'l', 'l', 'o'}, out)
}

func computeReferenceDigest(t *testing.T, action Action, nonce int64, isMainnet bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	require.NoError(t, enc.Encode(action))
	msgpackBytes := convertStr16ToStr8(buf.Bytes())

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(nonce))

	payload := append(msgpackBytes, nonceBytes[:]...)
	payload = append(payload, 0x00)

	connectionID := crypto.Keccak256(payload)

	source := "a"
	if !isMainnet {
		source = "b"
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           mathhex.NewHexOrDecimal256(1337),
			VerifyingContract: verifyingContractHex,
		},
		Message: map[string]interface{}{
			"source":       source,
			"connectionId": connectionID,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	require.NoError(t, err)
	messageHash, err := typedData.HashStruct("Agent", typedData.Message)
	require.NoError(t, err)

	return crypto.Keccak256(append(append([]byte{0x19, 0x01}, domainSeparator...), messageHash...))
}
