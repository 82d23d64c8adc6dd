package x402

import (
	"context"
	"math/big"
)

// Signer creates signed payment payloads for offers it can satisfy.
// The canonical implementation is icp.Signer, which builds and signs
// authorizations through a facilitator session.
type Signer interface {
	// Network returns the network identifier the signer pays on.
	Network() string

	// Scheme returns the payment scheme the signer produces.
	Scheme() string

	// CanSign reports whether this signer can satisfy the given offer.
	CanSign(req *PaymentRequirements) bool

	// Sign creates a signed payment payload for the given offer.
	Sign(ctx context.Context, req *PaymentRequirements) (*PaymentPayload, error)

	// Priority orders signers; lower wins.
	Priority() int

	// Tokens lists the tokens the signer is configured to pay with.
	Tokens() []TokenConfig

	// MaxAmount returns the per-call spending limit, or nil if unlimited.
	MaxAmount() *big.Int
}
