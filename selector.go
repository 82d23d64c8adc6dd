package x402

import (
	"context"
	"sort"
	"strings"
)

// PaymentSelector chooses an offer from a payment menu and a signer able to
// satisfy it, and produces the signed payment.
type PaymentSelector interface {
	SelectAndSign(ctx context.Context, accepts []PaymentRequirements, signers []Signer) (*PaymentPayload, error)
}

// DefaultPaymentSelector implements the standard selection algorithm:
//  1. ability to satisfy an offer (network, scheme, and token match),
//  2. signer priority (lower number wins),
//  3. token priority within the signer,
//  4. menu order for ties.
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(ctx context.Context, accepts []PaymentRequirements, signers []Signer) (*PaymentPayload, error) {
	if len(signers) == 0 {
		return nil, NewPaymentError(ErrCodeNoValidSigner, "no signers configured", ErrNoValidSigner)
	}

	var candidates []paymentCandidate
	for i := range accepts {
		req := &accepts[i]

		required, err := ParseAtomic(req.Amount)
		if err != nil {
			// A malformed menu entry disqualifies itself, not the menu.
			continue
		}

		for _, signer := range signers {
			if !signer.CanSign(req) {
				continue
			}
			if max := signer.MaxAmount(); max != nil && required.Cmp(max) > 0 {
				continue
			}

			tokenPriority := 0
			for _, token := range signer.Tokens() {
				if strings.EqualFold(token.CanisterID, req.Asset) {
					tokenPriority = token.Priority
					break
				}
			}

			candidates = append(candidates, paymentCandidate{
				req:            req,
				signer:         signer,
				signerPriority: signer.Priority(),
				tokenPriority:  tokenPriority,
				menuOrder:      i,
			})
		}
	}

	if len(candidates) == 0 {
		return nil, NewPaymentError(ErrCodeNoValidSigner, "no signer can satisfy any offer", ErrNoValidSigner).
			WithDetails("offers", len(accepts))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].signerPriority != candidates[j].signerPriority {
			return candidates[i].signerPriority < candidates[j].signerPriority
		}
		if candidates[i].tokenPriority != candidates[j].tokenPriority {
			return candidates[i].tokenPriority < candidates[j].tokenPriority
		}
		return candidates[i].menuOrder < candidates[j].menuOrder
	})

	best := candidates[0]
	payment, err := best.signer.Sign(ctx, best.req)
	if err != nil {
		return nil, NewPaymentError(ErrCodeSigningFailed, "failed to sign payment", err)
	}
	return payment, nil
}

// paymentCandidate pairs a menu entry with a signer able to satisfy it.
type paymentCandidate struct {
	req            *PaymentRequirements
	signer         Signer
	signerPriority int
	tokenPriority  int
	menuOrder      int
}
