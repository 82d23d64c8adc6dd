package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	x402 "github.com/ldclabs/x402-icp-go"
	"github.com/ldclabs/x402-icp-go/encoding"
	"github.com/ldclabs/x402-icp-go/facilitator"
	httpx402 "github.com/ldclabs/x402-icp-go/http"
)

const (
	testNetwork = "icp-ogkpr-lyaaa-aaaap-an5fq-cai"
	testAsset   = "druyg-tyaaa-aaaaq-aactq-cai"
	testPayTo   = "77ibd-jp5kr-moeco-kgoar-rro5v-5tng4-krif5-5h2i6-osf2f-2sjtv-kqe"
)

func testOffer() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           testNetwork,
		Amount:            "100000000",
		Asset:             testAsset,
		PayTo:             testPayTo,
		MaxTimeoutSeconds: 300,
	}
}

type fakeFacilitator struct {
	settleCalls int
}

func (f *fakeFacilitator) Verify(context.Context, x402.PaymentPayload, x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	return &x402.VerifyResponse{IsValid: true, Payer: "payer-principal"}, nil
}

func (f *fakeFacilitator) Settle(context.Context, x402.PaymentPayload, x402.PaymentRequirements) (*x402.SettleResponse, error) {
	f.settleCalls++
	return &x402.SettleResponse{Success: true, Transaction: "7:" + testAsset + ":12345", Network: testNetwork}, nil
}

func (f *fakeFacilitator) Supported(context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{}, nil
}

func testConfig(fac facilitator.Interface) *httpx402.Config {
	return &httpx402.Config{
		Facilitator:         fac,
		PaymentRequirements: []x402.PaymentRequirements{testOffer()},
	}
}

func paymentHeader(t *testing.T) string {
	t.Helper()
	offer := testOffer()
	header, err := encoding.EncodePayment(x402.PaymentPayload{
		X402Version: 1,
		Accepted:    offer,
		Payload: x402.IcpPayload{
			Signature: "c2ln",
			Authorization: x402.IcpPayloadAuthorization{
				To:        offer.PayTo,
				Value:     offer.Amount,
				ExpiresAt: 2000000000000,
				Nonce:     7,
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return header
}

func TestChiMiddlewarePaymentFlow(t *testing.T) {
	fac := &fakeFacilitator{}
	router := chi.NewRouter()
	RequirePayment(router, testConfig(fac))
	router.Get("/premium", func(w http.ResponseWriter, r *http.Request) {
		payment := httpx402.VerifiedPayment(r.Context())
		if payment == nil {
			http.Error(w, "no payment in context", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("premium content"))
	})

	t.Run("no payment gets 402", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/premium", nil))
		if rec.Code != http.StatusPaymentRequired {
			t.Errorf("status = %d, want 402", rec.Code)
		}
	})

	t.Run("paid request settles", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/premium", nil)
		req.Header.Set("X-PAYMENT", paymentHeader(t))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if rec.Body.String() != "premium content" {
			t.Errorf("body = %q", rec.Body.String())
		}
		if fac.settleCalls != 1 {
			t.Errorf("settleCalls = %d, want 1", fac.settleCalls)
		}
		if rec.Header().Get("X-PAYMENT-RESPONSE") == "" {
			t.Error("settlement header missing")
		}
	})

	t.Run("OPTIONS bypasses gating", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/premium", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusPaymentRequired {
			t.Error("OPTIONS preflight should not be payment-gated")
		}
	})
}

func TestChiProtectedSubrouter(t *testing.T) {
	fac := &fakeFacilitator{}
	router := chi.NewRouter()
	router.Get("/free", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("free content"))
	})
	Protected(router, "/paid", testConfig(fac), func(r chi.Router) {
		r.Get("/data", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("paid content"))
		})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/free", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("free route status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid/data", nil))
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("paid route status = %d, want 402", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/paid/data", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "paid content" {
		t.Errorf("paid route with payment: status = %d, body = %q", rec.Code, rec.Body.String())
	}
}
