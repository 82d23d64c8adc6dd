// Package icp implements the Internet Computer side of x402 payments: a
// session client bound to one facilitator canister and one payer identity,
// ICRC-1/ICRC-2 ledger bindings, signed envelopes, and identity helpers.
package icp

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/aviate-labs/agent-go/principal"

	x402 "github.com/ldclabs/x402-icp-go"
	"github.com/ldclabs/x402-icp-go/encoding"
)

// Client is a payer session against one facilitator canister. It builds,
// signs, and submits payment authorizations, and manages ICRC-2 allowances
// toward the facilitator. Ledger handles are cached per asset for the
// session lifetime; nonces and facilitator state are never cached.
type Client struct {
	caller      Caller
	identity    Identity
	canisterID  principal.Principal
	network     string
	facilitator Facilitator
	clock       func() time.Time
	margin      time.Duration
	logger      *slog.Logger

	newLedger func(Caller, principal.Principal) Ledger

	mu      sync.Mutex
	ledgers map[string]Ledger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock overrides the time source. Used in tests.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// WithAllowanceMargin sets how close to its expiry an existing allowance
// may be before it is refreshed. Default one minute.
func WithAllowanceMargin(margin time.Duration) ClientOption {
	return func(c *Client) { c.margin = margin }
}

// WithLogger sets the structured logger. Default slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithFacilitator overrides the facilitator binding. Used in tests.
func WithFacilitator(f Facilitator) ClientOption {
	return func(c *Client) { c.facilitator = f }
}

// WithLedgerFactory overrides how ledger handles are created. Used in
// tests.
func WithLedgerFactory(factory func(Caller, principal.Principal) Ledger) ClientOption {
	return func(c *Client) { c.newLedger = factory }
}

// NewClient creates a payer session bound to the given facilitator
// canister. The caller is typically an agent.Agent configured with the
// same identity.
func NewClient(caller Caller, id Identity, facilitatorCanister principal.Principal, opts ...ClientOption) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("icp: nil caller")
	}
	if id == nil {
		return nil, fmt.Errorf("icp: nil identity")
	}

	c := &Client{
		caller:     caller,
		identity:   id,
		canisterID: facilitatorCanister,
		network:    x402.ToNetwork(facilitatorCanister),
		clock:      time.Now,
		margin:     time.Minute,
		logger:     slog.Default(),
		newLedger:  NewLedger,
		ledgers:    make(map[string]Ledger),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.facilitator == nil {
		c.facilitator = NewCanisterFacilitator(caller, facilitatorCanister)
	}
	return c, nil
}

// Network returns the x402 network identifier of the session's
// facilitator.
func (c *Client) Network() string {
	return c.network
}

// Sender returns the payer principal.
func (c *Client) Sender() principal.Principal {
	return c.identity.Sender()
}

// Info fetches the facilitator-advertised state. Never cached.
func (c *Client) Info(ctx context.Context) (*x402.StateInfo, error) {
	return c.facilitator.Info(ctx)
}

// NextNonce fetches a fresh nonce from the facilitator. Nonces are
// allocated remotely and never cached or incremented locally.
func (c *Client) NextNonce(ctx context.Context) (uint64, error) {
	return c.facilitator.NextNonce(ctx)
}

// MyInfo fetches the facilitator's state for this payer.
func (c *Client) MyInfo(ctx context.Context) (*PayerState, error) {
	return c.facilitator.MyInfo(ctx)
}

// MyPaymentLogs pages through this payer's settlement history.
func (c *Client) MyPaymentLogs(ctx context.Context, take uint32, prev *uint64) ([]x402.PaymentLogInfo, error) {
	return c.facilitator.MyPaymentLogs(ctx, take, prev)
}

// SignAuthorization canonically encodes the authorization, hashes it, and
// signs the digest. Returns the base64url envelope carried in
// IcpPayload.Signature.
func (c *Client) SignAuthorization(ctx context.Context, auth x402.IcpPayloadAuthorization) (string, error) {
	digest, err := encoding.Digest(auth)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}
	env, err := SignDigest(ctx, c.identity, digest)
	if err != nil {
		return "", err
	}
	return env.Encode()
}

// BuildRequest builds and signs a payment for a single offer. The offer's
// network must match the session's facilitator; the asset and the
// (scheme, network, version) combination must be supported by it. A fresh
// nonce is fetched per call.
func (c *Client) BuildRequest(ctx context.Context, req x402.PaymentRequirements, version int) (*x402.X402Request, error) {
	if req.Network != c.network {
		return nil, fmt.Errorf("%w: %q, facilitator serves %q",
			x402.ErrUnsupportedNetwork, req.Network, c.network)
	}

	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}

	if _, ok := info.SupportedAssets[req.Asset]; !ok {
		return nil, fmt.Errorf("%w: %q", x402.ErrUnsupportedAsset, req.Asset)
	}

	supported := false
	for _, kind := range info.SupportedPayments {
		if kind.Network == req.Network && kind.Scheme == req.Scheme && kind.X402Version == version {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("%w: %q version %d", x402.ErrUnsupportedScheme, req.Scheme, version)
	}

	nonce, err := c.NextNonce(ctx)
	if err != nil {
		return nil, err
	}

	now := c.clock().Unix()
	auth := x402.IcpPayloadAuthorization{
		To:        req.PayTo,
		Value:     req.Amount,
		ExpiresAt: (now + int64(req.MaxTimeoutSeconds)) * 1000,
		Nonce:     nonce,
	}

	signature, err := c.SignAuthorization(ctx, auth)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("built payment authorization",
		"network", req.Network,
		"asset", req.Asset,
		"value", req.Amount,
		"nonce", nonce,
		"expiresAt", auth.ExpiresAt)

	return &x402.X402Request{
		PaymentPayload: x402.PaymentPayload{
			X402Version: version,
			Accepted:    req,
			Payload: x402.IcpPayload{
				Signature:     signature,
				Authorization: auth,
			},
		},
		PaymentRequirements: req,
	}, nil
}

// BuildRequestFrom selects the first offer in a payment menu matching the
// session's network and the given asset, then builds and signs it.
func (c *Client) BuildRequestFrom(ctx context.Context, required x402.PaymentRequired, asset string) (*x402.X402Request, error) {
	for _, req := range required.Accepts {
		if req.Network == c.network && req.Asset == asset {
			return c.BuildRequest(ctx, req, required.X402Version)
		}
	}
	return nil, fmt.Errorf("%w: no offer for network %q and asset %q",
		x402.ErrNoAcceptableOffer, c.network, asset)
}

// ledgerFor returns the session's ledger handle for an asset, creating it
// on first use. Handles live for the session lifetime.
func (c *Client) ledgerFor(asset principal.Principal) Ledger {
	key := asset.Encode()

	c.mu.Lock()
	defer c.mu.Unlock()
	ledger, ok := c.ledgers[key]
	if !ok {
		ledger = c.newLedger(c.caller, asset)
		c.ledgers[key] = ledger
	}
	return ledger
}

// TokenInfo fetches ledger metadata for an asset.
func (c *Client) TokenInfo(ctx context.Context, asset principal.Principal) (*x402.TokenInfo, error) {
	return c.ledgerFor(asset).Metadata(ctx)
}

// BalanceOf fetches the payer's balance on an asset ledger.
func (c *Client) BalanceOf(ctx context.Context, asset principal.Principal) (*big.Int, error) {
	return c.ledgerFor(asset).BalanceOf(ctx, c.Sender())
}

// Allowance fetches the payer's allowance toward a spender. A nil spender
// principal defaults to the facilitator canister.
func (c *Client) Allowance(ctx context.Context, asset principal.Principal, spender *principal.Principal) (*x402.Allowance, error) {
	return c.ledgerFor(asset).Allowance(ctx, c.Sender(), c.spenderOr(spender))
}

// Approve grants a spender an allowance of exactly amount with no expiry.
// Returns the approval block index.
func (c *Client) Approve(ctx context.Context, asset principal.Principal, amount *big.Int, spender *principal.Principal) (*big.Int, error) {
	return c.ledgerFor(asset).Approve(ctx, c.spenderOr(spender), amount, 0)
}

// Transfer moves amount directly to a recipient, outside the x402 flow.
// Returns the transfer block index.
func (c *Client) Transfer(ctx context.Context, asset, to principal.Principal, amount *big.Int) (*big.Int, error) {
	return c.ledgerFor(asset).Transfer(ctx, to, amount)
}

// EnsureAllowance tops up the spender's allowance when it is short of
// amount or expires within the session's allowance margin. Already
// sufficient allowances are left untouched, so the call is idempotent.
func (c *Client) EnsureAllowance(ctx context.Context, asset principal.Principal, amount *big.Int, spender *principal.Principal) error {
	sp := c.spenderOr(spender)
	ledger := c.ledgerFor(asset)

	allowance, err := ledger.Allowance(ctx, c.Sender(), sp)
	if err != nil {
		return err
	}

	// Ledger expiry is in nanoseconds since epoch; zero means no expiry.
	staleBefore := uint64(c.clock().Add(c.margin).UnixNano())
	if allowance.Allowance.Cmp(amount) >= 0 &&
		(allowance.ExpiresAt == 0 || allowance.ExpiresAt >= staleBefore) {
		return nil
	}

	block, err := ledger.Approve(ctx, sp, amount, 0)
	if err != nil {
		return err
	}
	c.logger.Info("refreshed allowance",
		"asset", asset.Encode(),
		"spender", sp.Encode(),
		"amount", amount.String(),
		"block", block.String())
	return nil
}

func (c *Client) spenderOr(spender *principal.Principal) principal.Principal {
	if spender != nil {
		return *spender
	}
	return c.canisterID
}
