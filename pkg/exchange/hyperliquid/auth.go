package hyperliquid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	mathhex "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// Action is the wire payload for a signed exchange request: one or more
// orders submitted together, matching the shape Hyperliquid's /exchange
// endpoint expects for order placement. The "na" grouping (no special
// order linkage) is the only grouping tradecore ever sends.
type Action struct {
	Type     string         `json:"type" msgpack:"type"`
	Orders   []orderPayload `json:"orders,omitempty" msgpack:"orders,omitempty"`
	Grouping string         `json:"grouping,omitempty" msgpack:"grouping,omitempty"`
}

type orderPayload struct {
	Asset      int              `json:"a" msgpack:"a"`
	IsBuy      bool             `json:"b" msgpack:"b"`
	LimitPx    string           `json:"p" msgpack:"p"`
	Sz         string           `json:"s" msgpack:"s"`
	ReduceOnly bool             `json:"r" msgpack:"r"`
	OrderType  orderTypePayload `json:"t" msgpack:"t"`
}

type orderTypePayload struct {
	Limit *limitOrderPayload `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

type limitOrderPayload struct {
	TIF string `json:"tif" msgpack:"tif"`
}

// Signature is the ECDSA r/s/v triple Hyperliquid expects alongside a
// signed action.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// ExchangeRequest is the full signed envelope POSTed to /exchange.
type ExchangeRequest struct {
	Action    Action    `json:"action"`
	Nonce     int64     `json:"nonce"`
	Signature Signature `json:"signature"`
}

const verifyingContractHex = "0x0000000000000000000000000000000000000000"

// Sign produces an ECDSA r/s/v signature over a 32-byte digest.
func (s *Signer) Sign(digest []byte) (*Signature, error) {
	if s.privateKey == nil {
		return nil, fmt.Errorf("hyperliquid: signer has no private key (read-only)")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("hyperliquid: expected 32-byte digest, got %d bytes", len(digest))
	}
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: sign digest: %w", err)
	}
	return &Signature{
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: int(sig[64]) + 27,
	}, nil
}

// signAction builds the msgpack/EIP-712 digest for action and signs it,
// producing the envelope ready to POST to /exchange. nonce must be a
// strictly increasing millisecond timestamp per request; the exchange
// rejects a reused or out-of-order nonce.
func signAction(action Action, signer *Signer, nonce int64, isMainnet bool) (*ExchangeRequest, error) {
	digest, err := buildEIP712Digest(action, nonce, isMainnet)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &ExchangeRequest{Action: action, Nonce: nonce, Signature: *sig}, nil
}

// buildEIP712Digest reproduces Hyperliquid's "Agent" typed-data hash:
// msgpack-encode the action (rewritten to str8 headers to match the
// reference Python encoder), append the big-endian nonce and a null
// vault-address byte, keccak256 that as the connectionId, then run the
// result through the standard EIP-712 domain/message hash.
func buildEIP712Digest(action Action, nonce int64, isMainnet bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(action); err != nil {
		return nil, fmt.Errorf("hyperliquid: msgpack encode action: %w", err)
	}
	payload := convertStr16ToStr8(buf.Bytes())

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(nonce))
	payload = append(payload, nonceBytes[:]...)
	payload = append(payload, 0x00) // no vault address

	connectionID := crypto.Keccak256(payload)

	source := "a"
	if !isMainnet {
		source = "b"
	}
	domain := apitypes.TypedDataDomain{
		Name:              "Exchange",
		Version:           "1",
		ChainId:           mathhex.NewHexOrDecimal256(1337),
		VerifyingContract: verifyingContractHex,
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
		Domain:      domain,
		Message: map[string]interface{}{
			"source":       source,
			"connectionId": connectionID,
		},
	}
	return typedDataHash(typedData)
}

// convertStr16ToStr8 rewrites msgpack str16 (0xda) headers for strings
// under 256 bytes to str8 (0xd9), matching the byte layout Hyperliquid's
// reference Python msgpack encoder produces. Go's encoder otherwise
// picks str16 for strings Python would encode str8, which changes the
// connectionId hash and invalidates the signature.
func convertStr16ToStr8(data []byte) []byte {
	result := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if data[i] == 0xda && i+2 < len(data) {
			length := int(data[i+1])<<8 | int(data[i+2])
			if length < 256 && i+3+length <= len(data) {
				result = append(result, 0xd9, byte(length))
				result = append(result, data[i+3:i+3+length]...)
				i += 3 + length
				continue
			}
		}
		result = append(result, data[i])
		i++
	}
	return result
}

func typedDataHash(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: hash primary type: %w", err)
	}
	raw := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}
