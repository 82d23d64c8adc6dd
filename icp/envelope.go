package icp

import (
	"context"
	"fmt"

	"github.com/aviate-labs/agent-go/principal"

	x402 "github.com/ldclabs/x402-icp-go"
	"github.com/ldclabs/x402-icp-go/encoding"
)

// DelegationCompact is one hop of a delegation chain: a session public key,
// its expiration in nanoseconds since epoch, and optional canister targets.
type DelegationCompact struct {
	// ExpiresAt is the delegation expiry in nanoseconds since epoch.
	ExpiresAt uint64 `cbor:"e"`

	// PublicKey is the delegated session public key.
	PublicKey []byte `cbor:"p"`

	// Targets optionally restricts the delegation to specific canisters,
	// as raw principal bytes.
	Targets [][]byte `cbor:"t,omitempty"`
}

// SignedDelegation pairs a delegation with the signature of its issuer.
type SignedDelegation struct {
	Delegation DelegationCompact `cbor:"d"`
	Signature  []byte            `cbor:"s"`
}

// SignedEnvelope carries a signature over a digest, together with the
// public key that verifies it and any delegation chain linking that key to
// the signing principal. The digest itself travels out of band: StripDigest
// removes it before transport and the verifier recomputes it.
type SignedEnvelope struct {
	// PublicKey is the DER-encoded public key of the signing identity.
	PublicKey []byte `cbor:"p"`

	// Signature covers the digest in Digest.
	Signature []byte `cbor:"s"`

	// Delegations is the optional chain from PublicKey to the principal.
	Delegations []SignedDelegation `cbor:"d,omitempty"`

	// Digest is the signed digest. Omitted on the wire.
	Digest []byte `cbor:"h,omitempty"`
}

// Identity signs digests on behalf of a principal. It matches the identity
// types of agent-go (Ed25519, Secp256k1, delegated identities).
type Identity interface {
	// Sign signs a message (here always a 32-byte digest).
	Sign(msg []byte) []byte

	// PublicKey returns the DER-encoded public key.
	PublicKey() []byte

	// Sender returns the principal derived from the public key.
	Sender() principal.Principal
}

// SignDigest signs a digest with the given identity and wraps the result
// in an envelope. The context is checked so callers can abort before the
// (potentially remote, for HSM-backed identities) signing operation runs.
func SignDigest(ctx context.Context, id Identity, digest [32]byte) (*SignedEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("%w: nil identity", x402.ErrSigningFailed)
	}

	sig := id.Sign(digest[:])
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty signature", x402.ErrSigningFailed)
	}

	return &SignedEnvelope{
		PublicKey: id.PublicKey(),
		Signature: sig,
		Digest:    digest[:],
	}, nil
}

// StripDigest returns a copy of the envelope without the digest. Calling it
// on an envelope that already has no digest is a no-op copy.
func (e *SignedEnvelope) StripDigest() *SignedEnvelope {
	out := *e
	out.Digest = nil
	return &out
}

// Encode serializes the envelope (digest stripped) as deterministic CBOR
// and returns the unpadded base64url form carried in IcpPayload.Signature.
func (e *SignedEnvelope) Encode() (string, error) {
	data, err := encoding.Deterministic(e.StripDigest())
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return encoding.Base64URL(data), nil
}

// DecodeEnvelope parses a base64url envelope produced by Encode.
func DecodeEnvelope(s string) (*SignedEnvelope, error) {
	data, err := encoding.DecodeBase64URL(s)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var env SignedEnvelope
	if err := encoding.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
