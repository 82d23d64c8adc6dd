// Package facilitator defines the contract resource servers use to verify
// and settle x402 payments. The HTTP facilitator client and the direct
// canister binding in icp both satisfy Interface.
package facilitator

import (
	"context"

	x402 "github.com/ldclabs/x402-icp-go"
)

// Interface defines the standard facilitator contract for payment
// verification and settlement.
type Interface interface {
	// Verify checks a payment authorization without executing the transfer.
	Verify(ctx context.Context, payment x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error)

	// Settle executes a verified payment against the ledger.
	Settle(ctx context.Context, payment x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error)

	// Supported queries the facilitator for supported payment kinds.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// SupportedResponse lists all payment kinds supported by the facilitator.
type SupportedResponse struct {
	Kinds []x402.SupportedKind `json:"kinds"`
}
