// Package encoding provides the byte-level codecs of the x402 ICP protocol:
// the deterministic CBOR encoding signed records are hashed over, the
// SHA3-256 digest used as signing pre-image, and the base64 forms used for
// HTTP header transport.
//
// Deterministic encoding follows RFC 8949 core deterministic rules:
// definite lengths, shortest integer forms, and map keys sorted bytewise on
// their encoded form. The verifier recomputes this encoding independently,
// so any change to the rules or to a signed field set is a breaking
// protocol change.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"

	x402 "github.com/ldclabs/x402-icp-go"
)

var detEnc cbor.EncMode

func init() {
	var err error
	detEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("encoding: deterministic CBOR mode: " + err.Error())
	}
}

// Deterministic encodes a record as RFC 8949 core deterministic CBOR. The
// output is identical regardless of the field-insertion order used to build
// the record, and free of type ambiguity: integers, byte strings, and text
// each carry their own tag and length, so structurally distinct records
// never collide. Pure function, no side effects.
func Deterministic(v any) ([]byte, error) {
	data, err := detEnc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("deterministic encode: %w", err)
	}
	return data, nil
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor decode: %w", err)
	}
	return nil
}

// Digest returns the SHA3-256 hash of the deterministic encoding of v.
// This is the signing pre-image for payment authorizations.
func Digest(v any) ([32]byte, error) {
	data, err := Deterministic(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha3.Sum256(data), nil
}

// Base64URL encodes bytes as unpadded base64url, the transport form of
// signatures and envelopes.
func Base64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeBase64URL decodes an unpadded base64url string.
func DecodeBase64URL(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	return data, nil
}

// EncodePayment converts a PaymentPayload to base64-encoded JSON, the form
// carried by X-PAYMENT headers.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	data, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment converts a base64-encoded JSON string to a PaymentPayload.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payment, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(data, &payment); err != nil {
		return payment, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	return payment, nil
}

// EncodeSettlement converts a SettleResponse to base64-encoded JSON, the
// form carried by X-PAYMENT-RESPONSE headers.
func EncodeSettlement(settlement x402.SettleResponse) (string, error) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlement converts a base64-encoded JSON string to a
// SettleResponse.
func DecodeSettlement(encoded string) (x402.SettleResponse, error) {
	var settlement x402.SettleResponse

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	if err := json.Unmarshal(data, &settlement); err != nil {
		return settlement, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}
	return settlement, nil
}
