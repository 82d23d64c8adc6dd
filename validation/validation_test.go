package validation

import (
	"errors"
	"testing"
	"time"

	x402 "github.com/ldclabs/x402-icp-go"
)

const (
	testNetwork = "icp-ogkpr-lyaaa-aaaap-an5fq-cai"
	testAsset   = "druyg-tyaaa-aaaaq-aactq-cai"
	testPayTo   = "77ibd-jp5kr-moeco-kgoar-rro5v-5tng4-krif5-5h2i6-osf2f-2sjtv-kqe"
)

func validRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           testNetwork,
		Amount:            "100000000",
		Asset:             testAsset,
		PayTo:             testPayTo,
		MaxTimeoutSeconds: 300,
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"valid amount", "100000000", false},
		{"valid large amount", "123456789012345678901234567890", false},
		{"empty", "", true},
		{"zero", "0", true},
		{"negative", "-1", true},
		{"float", "1.5", true},
		{"hex", "0xff", true},
		{"grouped", "1_000", true},
		{"not a number", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.amount)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAmount(%q) error = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePrincipal(t *testing.T) {
	if err := ValidatePrincipal(testPayTo); err != nil {
		t.Errorf("ValidatePrincipal(%q) error = %v", testPayTo, err)
	}
	if err := ValidatePrincipal(testAsset); err != nil {
		t.Errorf("ValidatePrincipal(%q) error = %v", testAsset, err)
	}
	if err := ValidatePrincipal(""); err == nil {
		t.Error("ValidatePrincipal(\"\") expected error")
	}
	if err := ValidatePrincipal("not-a-principal!"); err == nil {
		t.Error("ValidatePrincipal(invalid) expected error")
	}
}

func TestValidateNetwork(t *testing.T) {
	if err := ValidateNetwork(testNetwork); err != nil {
		t.Errorf("ValidateNetwork(%q) error = %v", testNetwork, err)
	}
	if err := ValidateNetwork("base"); err == nil {
		t.Error("ValidateNetwork without icp- prefix expected error")
	}
	if err := ValidateNetwork("icp-not-a-principal!"); err == nil {
		t.Error("ValidateNetwork with bad principal expected error")
	}
}

func TestValidatePaymentRequirements(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := ValidatePaymentRequirements(validRequirements()); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*x402.PaymentRequirements)
	}{
		{"empty amount", func(r *x402.PaymentRequirements) { r.Amount = "" }},
		{"zero amount", func(r *x402.PaymentRequirements) { r.Amount = "0" }},
		{"bad network", func(r *x402.PaymentRequirements) { r.Network = "base-sepolia" }},
		{"bad payTo", func(r *x402.PaymentRequirements) { r.PayTo = "0xdeadbeef" }},
		{"empty asset", func(r *x402.PaymentRequirements) { r.Asset = "" }},
		{"empty scheme", func(r *x402.PaymentRequirements) { r.Scheme = "" }},
		{"unknown scheme", func(r *x402.PaymentRequirements) { r.Scheme = "subscription" }},
		{"zero timeout", func(r *x402.PaymentRequirements) { r.MaxTimeoutSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequirements()
			tt.mutate(&req)
			if err := ValidatePaymentRequirements(req); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestValidateAuthorization(t *testing.T) {
	now := time.UnixMilli(1761536000000)
	req := validRequirements()

	valid := x402.IcpPayloadAuthorization{
		To:        testPayTo,
		Value:     "100000000",
		ExpiresAt: now.UnixMilli() + 300_000,
		Nonce:     42,
	}

	t.Run("valid exact", func(t *testing.T) {
		if err := ValidateAuthorization(valid, req, now); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("recipient mismatch", func(t *testing.T) {
		auth := valid
		auth.To = testAsset
		if err := ValidateAuthorization(auth, req, now); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("exact value mismatch", func(t *testing.T) {
		auth := valid
		auth.Value = "99999999"
		if err := ValidateAuthorization(auth, req, now); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("upto cap above required is valid", func(t *testing.T) {
		upto := req
		upto.Scheme = x402.SchemeUpto
		auth := valid
		auth.Value = "200000000"
		if err := ValidateAuthorization(auth, upto, now); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("upto cap below required is invalid", func(t *testing.T) {
		upto := req
		upto.Scheme = x402.SchemeUpto
		auth := valid
		auth.Value = "1"
		if err := ValidateAuthorization(auth, upto, now); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("expired authorization", func(t *testing.T) {
		auth := valid
		auth.ExpiresAt = now.UnixMilli()
		err := ValidateAuthorization(auth, req, now)
		if !errors.Is(err, x402.ErrExpiredAuthorization) {
			t.Errorf("expected ErrExpiredAuthorization, got %v", err)
		}
	})
}

func TestValidateRequest(t *testing.T) {
	now := time.UnixMilli(1761536000000)
	req := validRequirements()

	payment := x402.PaymentPayload{
		X402Version: x402.X402Version,
		Accepted:    req,
		Payload: x402.IcpPayload{
			Signature: "c2lnbmF0dXJl",
			Authorization: x402.IcpPayloadAuthorization{
				To:        testPayTo,
				Value:     "100000000",
				ExpiresAt: now.UnixMilli() + 300_000,
				Nonce:     42,
			},
		},
	}

	t.Run("valid", func(t *testing.T) {
		r := x402.X402Request{PaymentPayload: payment, PaymentRequirements: req}
		if err := ValidateRequest(r, now); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("version mismatch", func(t *testing.T) {
		p := payment
		p.X402Version = 2
		r := x402.X402Request{PaymentPayload: p, PaymentRequirements: req}
		if err := ValidateRequest(r, now); !errors.Is(err, x402.ErrUnsupportedVersion) {
			t.Errorf("expected ErrUnsupportedVersion, got %v", err)
		}
	})

	t.Run("accepted offer differs from requirements", func(t *testing.T) {
		other := req
		other.Amount = "1"
		r := x402.X402Request{PaymentPayload: payment, PaymentRequirements: other}
		if err := ValidateRequest(r, now); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		p := payment
		p.Payload.Signature = ""
		r := x402.X402Request{PaymentPayload: p, PaymentRequirements: req}
		if err := ValidateRequest(r, now); err == nil {
			t.Error("expected error, got nil")
		}
	})
}
