package icp

import (
	"bytes"
	"context"
	"testing"

	"github.com/ldclabs/x402-icp-go/encoding"
)

func TestSignDigestAndEncode(t *testing.T) {
	id := testIdentity(t)
	digest := [32]byte{1, 2, 3}

	env, err := SignDigest(context.Background(), id, digest)
	if err != nil {
		t.Fatalf("SignDigest() error = %v", err)
	}
	if !bytes.Equal(env.Digest, digest[:]) {
		t.Errorf("Digest = %x, want %x", env.Digest, digest[:])
	}
	if !bytes.Equal(env.PublicKey, id.PublicKey()) {
		t.Error("envelope public key does not match identity")
	}

	encoded, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := DecodeEnvelope(encoded)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if decoded.Digest != nil {
		t.Error("encoded envelope carries digest")
	}
	if !bytes.Equal(decoded.Signature, env.Signature) {
		t.Error("signature corrupted in round trip")
	}
	if !bytes.Equal(decoded.PublicKey, env.PublicKey) {
		t.Error("public key corrupted in round trip")
	}
}

func TestStripDigestIdempotent(t *testing.T) {
	env := &SignedEnvelope{
		PublicKey: []byte{1},
		Signature: []byte{2},
		Digest:    []byte{3},
	}

	stripped := env.StripDigest()
	if stripped.Digest != nil {
		t.Error("digest not stripped")
	}
	if env.Digest == nil {
		t.Error("StripDigest mutated its receiver")
	}

	again := stripped.StripDigest()
	if again.Digest != nil {
		t.Error("second strip produced a digest")
	}

	a, err := encoding.Deterministic(stripped)
	if err != nil {
		t.Fatalf("Deterministic() error = %v", err)
	}
	b, err := encoding.Deterministic(again)
	if err != nil {
		t.Fatalf("Deterministic() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("stripping twice changes the encoding")
	}
}

func TestSignDigestNilIdentity(t *testing.T) {
	if _, err := SignDigest(context.Background(), nil, [32]byte{}); err == nil {
		t.Error("expected error for nil identity")
	}
}
