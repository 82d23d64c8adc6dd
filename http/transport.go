package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/ldclabs/x402-icp-go"
	"github.com/ldclabs/x402-icp-go/encoding"
)

// X402Transport is a RoundTripper that handles x402 payment flows. It
// wraps an existing http.RoundTripper and automatically pays 402 Payment
// Required responses.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Signers is the list of available payment signers.
	Signers []x402.Signer

	// Selector chooses the offer and signer and produces the payment.
	Selector x402.PaymentSelector

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt x402.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess x402.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper. It makes the initial request,
// and when a 402 Payment Required response comes back it signs a payment
// for one of the offered requirements and retries the request once with
// the X-PAYMENT header set.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Base == nil {
		t.Base = http.DefaultTransport
	}

	reqCopy := req.Clone(req.Context())

	resp, err := t.Base.RoundTrip(reqCopy)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	required, err := parsePaymentRequired(resp)
	resp.Body.Close()
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "failed to parse payment requirements", err)
	}

	payment, err := t.Selector.SelectAndSign(req.Context(), required.Accepts, t.Signers)
	if err != nil {
		return nil, err
	}
	chosen := payment.Accepted

	startTime := time.Now()
	t.emit(t.OnPaymentAttempt, x402.PaymentEvent{
		Type:      x402.PaymentEventAttempt,
		Timestamp: startTime,
		URL:       req.URL.String(),
		Network:   chosen.Network,
		Scheme:    chosen.Scheme,
		Amount:    chosen.Amount,
		Asset:     chosen.Asset,
		Recipient: chosen.PayTo,
	})

	paymentHeader, err := encoding.EncodePayment(*payment)
	if err != nil {
		t.emit(t.OnPaymentFailure, x402.PaymentEvent{
			Type:      x402.PaymentEventFailure,
			Timestamp: time.Now(),
			URL:       req.URL.String(),
			Error:     err,
			Duration:  time.Since(startTime),
		})
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build payment header", err)
	}

	reqRetry := req.Clone(req.Context())
	reqRetry.Header.Set("X-PAYMENT", paymentHeader)

	respRetry, err := t.Base.RoundTrip(reqRetry)
	duration := time.Since(startTime)
	if err != nil {
		t.emit(t.OnPaymentFailure, x402.PaymentEvent{
			Type:      x402.PaymentEventFailure,
			Timestamp: time.Now(),
			URL:       req.URL.String(),
			Network:   chosen.Network,
			Scheme:    chosen.Scheme,
			Amount:    chosen.Amount,
			Asset:     chosen.Asset,
			Recipient: chosen.PayTo,
			Error:     err,
			Duration:  duration,
		})
		return nil, err
	}

	if settlement := GetSettlement(respRetry); settlement != nil && settlement.Success {
		t.emit(t.OnPaymentSuccess, x402.PaymentEvent{
			Type:        x402.PaymentEventSuccess,
			Timestamp:   time.Now(),
			URL:         req.URL.String(),
			Network:     chosen.Network,
			Scheme:      chosen.Scheme,
			Amount:      chosen.Amount,
			Asset:       chosen.Asset,
			Recipient:   chosen.PayTo,
			Payer:       settlement.Payer,
			Transaction: settlement.Transaction,
			Duration:    duration,
		})
	}

	return respRetry, nil
}

func (t *X402Transport) emit(callback x402.PaymentCallback, event x402.PaymentEvent) {
	if callback != nil {
		callback(event)
	}
}

// parsePaymentRequired extracts the payment menu from a 402 response body.
func parsePaymentRequired(resp *http.Response) (*x402.PaymentRequired, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var required x402.PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements JSON: %w", err)
	}
	if len(required.Accepts) == 0 {
		return nil, fmt.Errorf("no payment requirements in response")
	}
	return &required, nil
}

// GetSettlement extracts settlement information from an HTTP response.
// Returns nil when no settlement header is present or it does not parse.
func GetSettlement(resp *http.Response) *x402.SettleResponse {
	header := resp.Header.Get("X-PAYMENT-RESPONSE")
	if header == "" {
		return nil
	}
	settlement, err := encoding.DecodeSettlement(header)
	if err != nil {
		return nil
	}
	return &settlement
}

// RequestWithBody clones an HTTP request with a new body. Request bodies
// can only be read once, so retried requests need a fresh reader.
func RequestWithBody(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	return clone
}
