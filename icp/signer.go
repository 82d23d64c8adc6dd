package icp

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/aviate-labs/agent-go/principal"

	x402 "github.com/ldclabs/x402-icp-go"
)

// Signer implements x402.Signer for ICP payments: it satisfies offers on
// its session's network, paying with the tokens it is configured for.
type Signer struct {
	client          *Client
	tokens          []x402.TokenConfig
	priority        int
	maxAmount       *big.Int
	ensureAllowance bool
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithToken adds a token the signer may pay with.
func WithToken(token x402.TokenConfig) SignerOption {
	return func(s *Signer) { s.tokens = append(s.tokens, token) }
}

// WithPriority sets the signer's selection priority; lower wins.
func WithPriority(priority int) SignerOption {
	return func(s *Signer) { s.priority = priority }
}

// WithMaxAmountPerCall caps the atomic amount the signer will authorize in
// a single payment.
func WithMaxAmountPerCall(max *big.Int) SignerOption {
	return func(s *Signer) { s.maxAmount = max }
}

// WithEnsureAllowance makes the signer top up the facilitator's ICRC-2
// allowance before signing, so settlement cannot fail on a short
// allowance.
func WithEnsureAllowance(enabled bool) SignerOption {
	return func(s *Signer) { s.ensureAllowance = enabled }
}

// NewSigner creates an ICP payment signer over a session client. At least
// one token must be configured.
func NewSigner(client *Client, opts ...SignerOption) (*Signer, error) {
	if client == nil {
		return nil, fmt.Errorf("icp: nil client")
	}
	s := &Signer{client: client}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.tokens) == 0 {
		return nil, x402.ErrNoTokens
	}
	return s, nil
}

// Network implements x402.Signer.
func (s *Signer) Network() string {
	return s.client.Network()
}

// Scheme implements x402.Signer.
func (s *Signer) Scheme() string {
	return x402.SchemeExact
}

// Priority implements x402.Signer.
func (s *Signer) Priority() int {
	return s.priority
}

// Tokens implements x402.Signer.
func (s *Signer) Tokens() []x402.TokenConfig {
	return s.tokens
}

// MaxAmount implements x402.Signer.
func (s *Signer) MaxAmount() *big.Int {
	return s.maxAmount
}

// CanSign implements x402.Signer. An offer is signable when it is on the
// session's network, uses a scheme this signer produces, and pays with a
// configured token.
func (s *Signer) CanSign(req *x402.PaymentRequirements) bool {
	if req.Network != s.client.Network() {
		return false
	}
	if req.Scheme != x402.SchemeExact && req.Scheme != x402.SchemeUpto {
		return false
	}
	return s.tokenFor(req.Asset) != nil
}

// Sign implements x402.Signer. It optionally tops up the facilitator's
// allowance, then builds and signs the authorization.
func (s *Signer) Sign(ctx context.Context, req *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	token := s.tokenFor(req.Asset)
	if token == nil {
		return nil, fmt.Errorf("%w: %q", x402.ErrUnsupportedAsset, req.Asset)
	}

	amount, err := x402.ParseAtomic(req.Amount)
	if err != nil {
		return nil, err
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", x402.ErrAmountExceeded, req.Amount, s.maxAmount)
	}

	if s.ensureAllowance {
		asset, err := principal.Decode(req.Asset)
		if err != nil {
			return nil, fmt.Errorf("%w: asset %q: %v", x402.ErrInvalidRequirements, req.Asset, err)
		}
		if err := s.client.EnsureAllowance(ctx, asset, amount, nil); err != nil {
			return nil, x402.NewPaymentError(x402.ErrCodeAllowanceFailed, "failed to ensure allowance", err)
		}
	}

	request, err := s.client.BuildRequest(ctx, *req, x402.X402Version)
	if err != nil {
		return nil, err
	}
	return &request.PaymentPayload, nil
}

func (s *Signer) tokenFor(asset string) *x402.TokenConfig {
	for i := range s.tokens {
		if strings.EqualFold(s.tokens[i].CanisterID, asset) {
			return &s.tokens[i]
		}
	}
	return nil
}
