package x402

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
)

// stubSigner is a scriptable Signer for selection tests.
type stubSigner struct {
	network   string
	priority  int
	maxAmount *big.Int
	tokens    []TokenConfig
	signErr   error
	signed    *PaymentRequirements
}

func (s *stubSigner) Network() string     { return s.network }
func (s *stubSigner) Scheme() string      { return SchemeExact }
func (s *stubSigner) Priority() int       { return s.priority }
func (s *stubSigner) MaxAmount() *big.Int { return s.maxAmount }

func (s *stubSigner) Tokens() []TokenConfig { return s.tokens }

func (s *stubSigner) CanSign(req *PaymentRequirements) bool {
	if req.Network != s.network {
		return false
	}
	for _, token := range s.tokens {
		if strings.EqualFold(token.CanisterID, req.Asset) {
			return true
		}
	}
	return false
}

func (s *stubSigner) Sign(_ context.Context, req *PaymentRequirements) (*PaymentPayload, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	s.signed = req
	return &PaymentPayload{X402Version: 1, Accepted: *req}, nil
}

func offer(asset, amount string) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           testNetwork,
		Amount:            amount,
		Asset:             asset,
		PayTo:             "77ibd-jp5kr-moeco-kgoar-rro5v-5tng4-krif5-5h2i6-osf2f-2sjtv-kqe",
		MaxTimeoutSeconds: 300,
	}
}

func TestSelectAndSignNoSigners(t *testing.T) {
	selector := NewDefaultPaymentSelector()
	_, err := selector.SelectAndSign(context.Background(), []PaymentRequirements{offer(testAsset, "100")}, nil)
	if !errors.Is(err, ErrNoValidSigner) {
		t.Errorf("error = %v, want ErrNoValidSigner", err)
	}
}

func TestSelectAndSignNoCapableSigner(t *testing.T) {
	signer := &stubSigner{
		network: "icp-aaaaa-aa",
		tokens:  []TokenConfig{{CanisterID: testAsset}},
	}
	selector := NewDefaultPaymentSelector()
	_, err := selector.SelectAndSign(context.Background(), []PaymentRequirements{offer(testAsset, "100")}, []Signer{signer})
	if !errors.Is(err, ErrNoValidSigner) {
		t.Errorf("error = %v, want ErrNoValidSigner", err)
	}
}

func TestSelectAndSignPrefersLowerSignerPriority(t *testing.T) {
	low := &stubSigner{network: testNetwork, priority: 0, tokens: []TokenConfig{{CanisterID: testAsset}}}
	high := &stubSigner{network: testNetwork, priority: 10, tokens: []TokenConfig{{CanisterID: testAsset}}}

	selector := NewDefaultPaymentSelector()
	payment, err := selector.SelectAndSign(context.Background(),
		[]PaymentRequirements{offer(testAsset, "100")},
		[]Signer{high, low})
	if err != nil {
		t.Fatalf("SelectAndSign() error = %v", err)
	}
	if payment == nil || low.signed == nil {
		t.Error("lower-priority-number signer should have signed")
	}
	if high.signed != nil {
		t.Error("higher-priority-number signer should not have signed")
	}
}

func TestSelectAndSignPrefersLowerTokenPriority(t *testing.T) {
	const otherAsset = "ryjl3-tyaaa-aaaaa-aaaba-cai"
	signer := &stubSigner{
		network: testNetwork,
		tokens: []TokenConfig{
			{CanisterID: testAsset, Priority: 5},
			{CanisterID: otherAsset, Priority: 1},
		},
	}

	selector := NewDefaultPaymentSelector()
	payment, err := selector.SelectAndSign(context.Background(),
		[]PaymentRequirements{offer(testAsset, "100"), offer(otherAsset, "100")},
		[]Signer{signer})
	if err != nil {
		t.Fatalf("SelectAndSign() error = %v", err)
	}
	if payment.Accepted.Asset != otherAsset {
		t.Errorf("selected asset = %q, want %q", payment.Accepted.Asset, otherAsset)
	}
}

func TestSelectAndSignMenuOrderBreaksTies(t *testing.T) {
	const otherAsset = "ryjl3-tyaaa-aaaaa-aaaba-cai"
	signer := &stubSigner{
		network: testNetwork,
		tokens: []TokenConfig{
			{CanisterID: testAsset},
			{CanisterID: otherAsset},
		},
	}

	selector := NewDefaultPaymentSelector()
	payment, err := selector.SelectAndSign(context.Background(),
		[]PaymentRequirements{offer(otherAsset, "100"), offer(testAsset, "100")},
		[]Signer{signer})
	if err != nil {
		t.Fatalf("SelectAndSign() error = %v", err)
	}
	if payment.Accepted.Asset != otherAsset {
		t.Errorf("selected asset = %q, want first menu entry %q", payment.Accepted.Asset, otherAsset)
	}
}

func TestSelectAndSignSkipsOverLimitOffers(t *testing.T) {
	signer := &stubSigner{
		network:   testNetwork,
		maxAmount: big.NewInt(50),
		tokens:    []TokenConfig{{CanisterID: testAsset}},
	}

	selector := NewDefaultPaymentSelector()
	_, err := selector.SelectAndSign(context.Background(),
		[]PaymentRequirements{offer(testAsset, "100")},
		[]Signer{signer})
	if !errors.Is(err, ErrNoValidSigner) {
		t.Errorf("error = %v, want ErrNoValidSigner", err)
	}

	payment, err := selector.SelectAndSign(context.Background(),
		[]PaymentRequirements{offer(testAsset, "100"), offer(testAsset, "50")},
		[]Signer{signer})
	if err != nil {
		t.Fatalf("SelectAndSign() error = %v", err)
	}
	if payment.Accepted.Amount != "50" {
		t.Errorf("amount = %q, want the offer within the limit", payment.Accepted.Amount)
	}
}

func TestSelectAndSignSkipsMalformedMenuEntries(t *testing.T) {
	signer := &stubSigner{network: testNetwork, tokens: []TokenConfig{{CanisterID: testAsset}}}

	selector := NewDefaultPaymentSelector()
	payment, err := selector.SelectAndSign(context.Background(),
		[]PaymentRequirements{offer(testAsset, "1.5e8"), offer(testAsset, "100")},
		[]Signer{signer})
	if err != nil {
		t.Fatalf("SelectAndSign() error = %v", err)
	}
	if payment.Accepted.Amount != "100" {
		t.Errorf("amount = %q, malformed entry should be skipped", payment.Accepted.Amount)
	}
}

func TestSelectAndSignWrapsSignerFailure(t *testing.T) {
	signer := &stubSigner{
		network: testNetwork,
		tokens:  []TokenConfig{{CanisterID: testAsset}},
		signErr: errors.New("key unavailable"),
	}

	selector := NewDefaultPaymentSelector()
	_, err := selector.SelectAndSign(context.Background(),
		[]PaymentRequirements{offer(testAsset, "100")},
		[]Signer{signer})
	if err == nil {
		t.Fatal("expected error")
	}
	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Code != ErrCodeSigningFailed {
		t.Errorf("error = %v, want PaymentError with ErrCodeSigningFailed", err)
	}
}
