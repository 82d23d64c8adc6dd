// Package validation checks x402 payment structures before signing and
// before submission. The client validates offers it is about to pay and
// resource servers validate requests they are about to forward.
package validation

import (
	"fmt"
	"math/big"
	"time"

	"github.com/aviate-labs/agent-go/principal"

	x402 "github.com/ldclabs/x402-icp-go"
)

// ValidateAmount validates that an amount string is a valid positive
// base-10 integer. Floats, signs, and grouping are all rejected.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}
	return nil
}

// ValidatePrincipal validates a textual principal (recipient wallets and
// ledger canister ids alike).
func ValidatePrincipal(text string) error {
	if text == "" {
		return fmt.Errorf("principal cannot be empty")
	}
	if _, err := principal.Decode(text); err != nil {
		return fmt.Errorf("invalid principal %q: %w", text, err)
	}
	return nil
}

// ValidateNetwork validates an "icp-<principal>" network identifier.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("network cannot be empty")
	}
	if _, err := x402.ParseNetwork(network); err != nil {
		return err
	}
	return nil
}

// ValidatePaymentRequirements performs comprehensive validation of a
// payment offer: amount, network, principals, scheme, and timeout.
func ValidatePaymentRequirements(req x402.PaymentRequirements) error {
	if err := ValidateAmount(req.Amount); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidatePrincipal(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirement: payTo: %w", err)
	}

	if err := ValidatePrincipal(req.Asset); err != nil {
		return fmt.Errorf("invalid requirement: asset: %w", err)
	}

	switch req.Scheme {
	case x402.SchemeExact, x402.SchemeUpto:
	case "":
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirement: unsupported scheme %s", req.Scheme)
	}

	if req.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid requirement: timeout must be positive: %d", req.MaxTimeoutSeconds)
	}

	return nil
}

// ValidateAuthorization checks the internal consistency of a signed
// authorization against the offer it claims to satisfy. The expiry must be
// strictly in the future at now.
func ValidateAuthorization(auth x402.IcpPayloadAuthorization, req x402.PaymentRequirements, now time.Time) error {
	if auth.To != req.PayTo {
		return fmt.Errorf("authorization recipient %q does not match payTo %q", auth.To, req.PayTo)
	}

	if err := ValidateAmount(auth.Value); err != nil {
		return fmt.Errorf("invalid authorization: %w", err)
	}

	value, _ := new(big.Int).SetString(auth.Value, 10)
	required, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return fmt.Errorf("invalid requirement amount: %s", req.Amount)
	}

	switch req.Scheme {
	case x402.SchemeExact:
		if value.Cmp(required) != 0 {
			return fmt.Errorf("authorization value %s does not equal required amount %s", auth.Value, req.Amount)
		}
	case x402.SchemeUpto:
		if value.Cmp(required) < 0 {
			return fmt.Errorf("authorization cap %s is below required amount %s", auth.Value, req.Amount)
		}
	default:
		return fmt.Errorf("unsupported scheme %s", req.Scheme)
	}

	if auth.ExpiresAt <= now.UnixMilli() {
		return fmt.Errorf("%w: expiresAt %d is not in the future", x402.ErrExpiredAuthorization, auth.ExpiresAt)
	}

	return nil
}

// ValidateRequest validates the artifact handed to a facilitator: the
// payload's accepted offer must equal the requirements it is checked
// against, and the authorization must satisfy the offer.
func ValidateRequest(req x402.X402Request, now time.Time) error {
	if req.PaymentPayload.X402Version != x402.X402Version {
		return fmt.Errorf("%w: %d", x402.ErrUnsupportedVersion, req.PaymentPayload.X402Version)
	}

	if err := ValidatePaymentRequirements(req.PaymentRequirements); err != nil {
		return err
	}

	if !requirementsEqual(req.PaymentPayload.Accepted, req.PaymentRequirements) {
		return fmt.Errorf("%w: accepted offer does not match requirements", x402.ErrInvalidRequirements)
	}

	if req.PaymentPayload.Payload.Signature == "" {
		return fmt.Errorf("%w: missing signature", x402.ErrInvalidRequirements)
	}

	return ValidateAuthorization(req.PaymentPayload.Payload.Authorization, req.PaymentRequirements, now)
}

// requirementsEqual compares the stable fields of two offers. Extra is
// excluded: it carries advisory data that does not affect settlement.
func requirementsEqual(a, b x402.PaymentRequirements) bool {
	return a.Scheme == b.Scheme &&
		a.Network == b.Network &&
		a.Amount == b.Amount &&
		a.Asset == b.Asset &&
		a.PayTo == b.PayTo &&
		a.MaxTimeoutSeconds == b.MaxTimeoutSeconds
}
