// Package http provides the HTTP surfaces of the x402 protocol: a paying
// client transport, a facilitator client, and payment-gating middleware
// for resource servers.
package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	x402 "github.com/ldclabs/x402-icp-go"
	"github.com/ldclabs/x402-icp-go/encoding"
	"github.com/ldclabs/x402-icp-go/facilitator"
	"github.com/ldclabs/x402-icp-go/validation"
)

// Config holds the configuration for the x402 payment-gating middleware.
type Config struct {
	// FacilitatorURL is the facilitator endpoint. Ignored when Facilitator
	// is set.
	FacilitatorURL string

	// Facilitator overrides the facilitator client. Used to plug in a
	// direct canister binding or a fake in tests.
	Facilitator facilitator.Interface

	// PaymentRequirements defines the accepted payment offers.
	PaymentRequirements []x402.PaymentRequirements

	// Description is attached to the advertised resource when set.
	Description string

	// MimeType is attached to the advertised resource when set.
	MimeType string

	// VerifyOnly skips settlement; payments are verified but not executed.
	VerifyOnly bool

	// FacilitatorAuthorization is a static Authorization header value for
	// the facilitator.
	FacilitatorAuthorization string

	// FacilitatorAuthorizationProvider supplies the Authorization header
	// dynamically. Takes precedence over FacilitatorAuthorization.
	FacilitatorAuthorizationProvider AuthorizationProvider

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for storing verified payment
// information. Handlers retrieve the *x402.VerifyResponse with
// VerifiedPayment.
const PaymentContextKey = contextKey("x402_payment")

// VerifiedPayment returns the verification result stored by the
// middleware, or nil when the request was not payment-gated.
func VerifiedPayment(ctx context.Context) *x402.VerifyResponse {
	v, _ := ctx.Value(PaymentContextKey).(*x402.VerifyResponse)
	return v
}

// NewX402Middleware creates payment-gating middleware. Requests without a
// valid X-PAYMENT header receive a 402 with the payment menu; requests
// with a verified payment reach the handler, and the payment settles at
// the moment the handler commits a success status.
func NewX402Middleware(config *Config) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fac := config.Facilitator
	if fac == nil {
		client := NewFacilitatorClient(config.FacilitatorURL)
		client.Authorization = config.FacilitatorAuthorization
		client.AuthorizationProvider = config.FacilitatorAuthorizationProvider
		client.Logger = logger
		fac = client
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			resource := x402.ResourceInfo{
				URL:         scheme + "://" + r.Host + r.RequestURI,
				Description: config.Description,
				MimeType:    config.MimeType,
			}

			paymentHeader := r.Header.Get("X-PAYMENT")
			if paymentHeader == "" {
				logger.Info("no payment header provided", "path", r.URL.Path)
				sendPaymentRequired(w, resource, config.PaymentRequirements, "payment required")
				return
			}

			payment, err := encoding.DecodePayment(paymentHeader)
			if err != nil {
				logger.Warn("invalid payment header", "error", err)
				http.Error(w, "Invalid payment header", http.StatusBadRequest)
				return
			}

			requirements, ok := MatchRequirements(payment, config.PaymentRequirements)
			if !ok {
				logger.Warn("payment does not match any offer",
					"network", payment.Accepted.Network,
					"asset", payment.Accepted.Asset)
				sendPaymentRequired(w, resource, config.PaymentRequirements, "payment does not match any offer")
				return
			}

			// Reject structurally bad or expired payments locally before
			// spending a facilitator round trip.
			request := x402.X402Request{PaymentPayload: payment, PaymentRequirements: requirements}
			if err := validation.ValidateRequest(request, time.Now()); err != nil {
				logger.Warn("payment failed local validation", "error", err)
				sendPaymentRequired(w, resource, config.PaymentRequirements, err.Error())
				return
			}

			logger.Info("verifying payment",
				"scheme", requirements.Scheme,
				"network", requirements.Network)
			verifyResp, err := fac.Verify(r.Context(), payment, requirements)
			if err != nil {
				logger.Error("facilitator verification failed", "error", err)
				http.Error(w, "Payment verification failed", http.StatusServiceUnavailable)
				return
			}
			if !verifyResp.IsValid {
				logger.Warn("payment verification failed", "reason", verifyResp.InvalidReason)
				sendPaymentRequired(w, resource, config.PaymentRequirements, verifyResp.InvalidReason)
				return
			}

			logger.Info("payment verified", "payer", verifyResp.Payer)
			r = r.WithContext(context.WithValue(r.Context(), PaymentContextKey, verifyResp))

			interceptor := &settlementInterceptor{
				w: w,
				settleFunc: func() bool {
					if config.VerifyOnly {
						return true
					}

					logger.Info("settling payment", "payer", verifyResp.Payer)
					settleResp, err := fac.Settle(r.Context(), payment, requirements)
					if err != nil {
						logger.Error("settlement failed", "error", err)
						http.Error(w, "Payment settlement failed", http.StatusServiceUnavailable)
						return false
					}
					if !settleResp.Success {
						logger.Warn("settlement unsuccessful", "reason", settleResp.ErrorReason)
						sendPaymentRequired(w, resource, config.PaymentRequirements, settleResp.ErrorReason)
						return false
					}

					logger.Info("payment settled", "transaction", settleResp.Transaction)
					if header, err := encoding.EncodeSettlement(*settleResp); err == nil {
						w.Header().Set("X-PAYMENT-RESPONSE", header)
					} else {
						logger.Warn("failed to encode settlement header", "error", err)
					}
					return true
				},
				onFailure: func(statusCode int) {
					logger.Warn("handler returned non-success, skipping settlement", "status", statusCode)
				},
			}
			next.ServeHTTP(interceptor, r)
		})
	}
}

// MatchRequirements finds the configured offer the payment claims to
// satisfy. The facilitator re-checks everything; this match only decides
// which requirements to send it.
func MatchRequirements(payment x402.PaymentPayload, accepts []x402.PaymentRequirements) (x402.PaymentRequirements, bool) {
	for _, req := range accepts {
		if req.Scheme == payment.Accepted.Scheme &&
			req.Network == payment.Accepted.Network &&
			req.Asset == payment.Accepted.Asset &&
			req.PayTo == payment.Accepted.PayTo &&
			req.Amount == payment.Accepted.Amount {
			return req, true
		}
	}
	return x402.PaymentRequirements{}, false
}

// sendPaymentRequired writes a 402 response carrying the payment menu.
func sendPaymentRequired(w http.ResponseWriter, resource x402.ResourceInfo, accepts []x402.PaymentRequirements, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       reason,
		Resource:    resource,
		Accepts:     accepts,
	})
}

// settlementInterceptor wraps the ResponseWriter to intercept the moment
// of commitment: settlement runs when the handler first writes a success
// status, and a failed settlement replaces the handler's response.
type settlementInterceptor struct {
	w          http.ResponseWriter
	settleFunc func() bool
	onFailure  func(statusCode int)
	committed  bool
	hijacked   bool
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	// Write without WriteHeader implies 200 OK; run the settlement check
	// now.
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}

	// When settlement failed the error response is already written; the
	// handler's payload is silently discarded to avoid a mixed response.
	if i.hijacked {
		return len(b), nil
	}

	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	// Handler errors pass through untouched, with no settlement.
	if statusCode >= 400 {
		if i.onFailure != nil {
			i.onFailure(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settleFunc() {
		// settleFunc already wrote the 402/503 error.
		i.hijacked = true
		return
	}

	i.w.WriteHeader(statusCode)
}

// Flush implements http.Flusher to support streaming responses.
func (i *settlementInterceptor) Flush() {
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker to support connection hijacking.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher to support HTTP/2 server push.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}
