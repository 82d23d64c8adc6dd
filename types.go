// Package x402 implements the client side of the x402 payment protocol for
// the Internet Computer. A payer signs a bounded transfer authorization that
// a facilitator canister verifies and settles against an ICRC-1/ICRC-2
// ledger; this package holds the protocol data model shared by the chain
// client (icp), the transport layer (http), and the codecs (encoding).
package x402

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/aviate-labs/agent-go/principal"
)

// Payment scheme identifiers.
const (
	// SchemeExact transfers exactly the authorized value.
	SchemeExact = "exact"

	// SchemeUpto transfers at most the authorized value.
	SchemeUpto = "upto"
)

// X402Version is the protocol version this library speaks.
const X402Version = 1

// ResourceInfo describes the payment-gated resource.
type ResourceInfo struct {
	// URL of the protected resource endpoint.
	URL string `json:"url"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// MimeType of the expected response.
	MimeType string `json:"mimeType,omitempty"`
}

// Extensions carries protocol extension data together with the JSON schema
// describing it.
type Extensions struct {
	Info   map[string]any `json:"info"`
	Schema map[string]any `json:"schema"`
}

// PaymentRequirements is a single payment offer produced by a resource
// server. It is immutable once received; the client selects one offer whose
// network and asset it supports.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier ("exact" or "upto").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g. "icp-ogkpr-…-cai").
	Network string `json:"network"`

	// Amount is the required payment amount in atomic units, as a base-10
	// integer string. Never a float.
	Amount string `json:"amount"`

	// Asset is the textual principal of the token ledger canister.
	Asset string `json:"asset"`

	// PayTo is the textual principal of the payment recipient.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds bounds the validity window of the authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra contains scheme-specific additional data.
	Extra map[string]any `json:"extra,omitempty"`
}

// PaymentRequired is the body of a 402 response: a menu of acceptable
// payment offers for one resource.
type PaymentRequired struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Error is an optional human-readable reason payment is required.
	Error string `json:"error,omitempty"`

	// Resource describes the protected resource.
	Resource ResourceInfo `json:"resource"`

	// Accepts lists the payment offers the server accepts.
	Accepts []PaymentRequirements `json:"accepts"`

	// Extensions carries protocol extension data.
	Extensions *Extensions `json:"extensions,omitempty"`
}

// IcpPayloadAuthorization is the record that gets canonically encoded and
// signed. The cbor tags define the signed field set; changing them is a
// breaking protocol change, since the verifier recomputes the encoding
// independently.
//
// Invariants: ExpiresAt is strictly in the future at construction time and
// Nonce is the facilitator-issued value for this payer, never reused.
type IcpPayloadAuthorization struct {
	// To is the textual principal of the recipient wallet.
	To string `json:"to" cbor:"to"`

	// Value is the payment amount in atomic units as a base-10 integer
	// string. For "exact" the amount transferred, for "upto" the cap.
	Value string `json:"value" cbor:"value"`

	// ExpiresAt is the authorization expiry in milliseconds since epoch.
	ExpiresAt int64 `json:"expiresAt" cbor:"expiresAt"`

	// Nonce is the facilitator-issued replay-protection counter.
	Nonce uint64 `json:"nonce" cbor:"nonce"`
}

// IcpPayload is the scheme-specific payment payload for ICP: a signed
// envelope over the canonical encoding of Authorization.
type IcpPayload struct {
	// Signature is the base64url-encoded signed envelope covering the
	// canonical encoding of Authorization.
	Signature string `json:"signature"`

	// Authorization holds the signed transfer parameters.
	Authorization IcpPayloadAuthorization `json:"authorization"`
}

// PaymentPayload is the signed payment a client submits to the resource
// server, pairing the chosen offer with the signed authorization.
type PaymentPayload struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Resource optionally echoes the resource being paid for.
	Resource *ResourceInfo `json:"resource,omitempty"`

	// Accepted is the payment offer the client chose.
	Accepted PaymentRequirements `json:"accepted"`

	// Payload is the signed ICP payment data.
	Payload IcpPayload `json:"payload"`

	// Extensions carries protocol extension data.
	Extensions *Extensions `json:"extensions,omitempty"`
}

// X402Request is the artifact handed across the trust boundary to the
// resource server and facilitator for verification and settlement.
type X402Request struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's answer to a verification request.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	Payer         string `json:"payer,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleResponse is the facilitator's answer to a settlement request.
// Transaction is a composite "logID:assetCanister:blockIndex" identifier,
// see ParseTransaction.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// SupportedKind is one (scheme, network, version) combination a facilitator
// accepts.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// AssetInfo describes one asset supported by the facilitator. Decimals
// defines the fixed-point scale for atomic amount strings.
type AssetInfo struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    int      `json:"decimals"`
	TransferFee *big.Int `json:"transferFee"`
	PaymentFee  *big.Int `json:"paymentFee"`
	Logo        string   `json:"logo,omitempty"`
}

// StateInfo is the facilitator-advertised state: supported payment kinds
// and assets, fee totals, and governance info. Read-mostly; refreshed on
// demand, never mutated locally.
type StateInfo struct {
	Name               string               `json:"name"`
	SupportedPayments  []SupportedKind      `json:"supportedPayments"`
	SupportedAssets    map[string]AssetInfo `json:"supportedAssets"`
	TotalWithdrawnFees map[string]*big.Int  `json:"totalWithdrawnFees"`
	TotalCollectedFees map[string]*big.Int  `json:"totalCollectedFees"`
	GovernanceCanister string               `json:"governanceCanister,omitempty"`
	KeyName            string               `json:"keyName,omitempty"`
}

// PaymentLogInfo is one settled payment as recorded by the facilitator.
// Append-only and sequenced remotely; read-only to the client.
type PaymentLogInfo struct {
	ID        uint64 `json:"id"`
	To        string `json:"to"`
	From      string `json:"from"`
	Asset     string `json:"asset"`
	Value     string `json:"value"`
	Fee       string `json:"fee"`
	Scheme    string `json:"scheme"`
	Nonce     uint64 `json:"nonce"`
	Timestamp uint64 `json:"timestamp"`
	ExpiresAt uint64 `json:"expiresAt"`
}

// Allowance is the ledger-reported spending cap for an (owner, spender)
// pair. ExpiresAt is in nanoseconds since epoch, zero when unset.
type Allowance struct {
	Allowance *big.Int `json:"allowance"`
	ExpiresAt uint64   `json:"expiresAt,omitempty"`
}

// TokenInfo is ledger metadata resolved from the well-known icrc1:* keys.
type TokenInfo struct {
	Name       string              `json:"name"`
	Symbol     string              `json:"symbol"`
	Decimals   int                 `json:"decimals"`
	Fee        *big.Int            `json:"fee"`
	Logo       string              `json:"logo,omitempty"`
	CanisterID principal.Principal `json:"canisterId"`
}

// TokenConfig declares a token a signer is willing to pay with.
type TokenConfig struct {
	// CanisterID is the textual principal of the token ledger canister.
	CanisterID string

	// Symbol is the token symbol (e.g. "ICP", "PANDA").
	Symbol string

	// Decimals is the token's fixed-point scale.
	Decimals int

	// Priority orders tokens within a signer; lower wins. Zero is default.
	Priority int

	// Name is an optional human-readable token name.
	Name string
}

const networkPrefix = "icp-"

// ToNetwork formats a facilitator canister principal as an x402 network
// identifier ("icp-<principal>").
func ToNetwork(p principal.Principal) string {
	return networkPrefix + p.Encode()
}

// ParseNetwork extracts the facilitator canister principal from an
// "icp-<principal>" network identifier.
func ParseNetwork(network string) (principal.Principal, error) {
	raw, ok := strings.CutPrefix(network, networkPrefix)
	if !ok {
		return principal.Principal{}, fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}
	p, err := principal.Decode(raw)
	if err != nil {
		return principal.Principal{}, fmt.Errorf("%w: %q: %v", ErrInvalidNetwork, network, err)
	}
	return p, nil
}

// Transaction identifies a settled payment: the facilitator log entry, the
// asset ledger, and the block the transfer landed in.
type Transaction struct {
	LogID      uint64
	Asset      principal.Principal
	BlockIndex uint64
}

// String formats the transaction as "logID:assetCanister:blockIndex", the
// composite form facilitators report in SettleResponse.Transaction.
func (t Transaction) String() string {
	return strconv.FormatUint(t.LogID, 10) + ":" + t.Asset.Encode() + ":" + strconv.FormatUint(t.BlockIndex, 10)
}

// ParseTransaction parses a "logID:assetCanister:blockIndex" composite.
func ParseTransaction(s string) (Transaction, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidTransaction, s)
	}
	logID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: bad log id in %q", ErrInvalidTransaction, s)
	}
	asset, err := principal.Decode(parts[1])
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: bad asset in %q", ErrInvalidTransaction, s)
	}
	blockIndex, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: bad block index in %q", ErrInvalidTransaction, s)
	}
	return Transaction{LogID: logID, Asset: asset, BlockIndex: blockIndex}, nil
}
