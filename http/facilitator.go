package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	x402 "github.com/ldclabs/x402-icp-go"
	"github.com/ldclabs/x402-icp-go/facilitator"
	"github.com/ldclabs/x402-icp-go/retry"
)

// AuthorizationProvider returns an Authorization header value for
// facilitator requests. Used for tokens that need periodic refresh.
type AuthorizationProvider func(ctx context.Context) (string, error)

// FacilitatorClient talks to an x402 facilitator service over HTTP. It
// implements facilitator.Interface.
//
// Transport-level faults (connection errors, 5xx) are retried with
// backoff; protocol rejections (4xx, invalid verification) never are.
type FacilitatorClient struct {
	// BaseURL is the facilitator endpoint, without trailing slash.
	BaseURL string

	// Client is the underlying HTTP client.
	Client *http.Client

	// Timeouts bound verify and settle operations separately.
	Timeouts x402.TimeoutConfig

	// Retry configures backoff for transport faults.
	Retry retry.Config

	// Authorization is a static Authorization header value.
	Authorization string

	// AuthorizationProvider supplies the Authorization header dynamically.
	// Takes precedence over Authorization when set.
	AuthorizationProvider AuthorizationProvider

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewFacilitatorClient creates a facilitator client with default timeouts
// and retry configuration.
func NewFacilitatorClient(baseURL string) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:  baseURL,
		Client:   &http.Client{},
		Timeouts: x402.DefaultTimeouts,
		Retry:    retry.DefaultConfig,
	}
}

func (c *FacilitatorClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// transientStatusError marks 5xx facilitator replies as retryable.
type transientStatusError struct {
	status int
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("facilitator returned status %d", e.status)
}

func isTransient(err error) bool {
	var transient *transientStatusError
	if errors.As(err, &transient) {
		return true
	}
	return errors.Is(err, x402.ErrFacilitatorUnavailable)
}

// Verify checks a payment authorization with the facilitator without
// settling it.
func (c *FacilitatorClient) Verify(ctx context.Context, payment x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeouts.VerifyTimeout)
	defer cancel()

	var verifyResp x402.VerifyResponse
	err := c.post(ctx, "/verify", payment, requirements, &verifyResp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrVerificationFailed, err)
	}

	c.logger().Debug("payment verified",
		"isValid", verifyResp.IsValid,
		"payer", verifyResp.Payer,
		"reason", verifyResp.InvalidReason)
	return &verifyResp, nil
}

// Settle executes a verified payment against the ledger. Settlement runs a
// chain transfer, so it uses the longer settle timeout.
func (c *FacilitatorClient) Settle(ctx context.Context, payment x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeouts.SettleTimeout)
	defer cancel()

	var settleResp x402.SettleResponse
	err := c.post(ctx, "/settle", payment, requirements, &settleResp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrSettlementFailed, err)
	}

	c.logger().Debug("payment settled",
		"success", settleResp.Success,
		"transaction", settleResp.Transaction,
		"payer", settleResp.Payer)
	return &settleResp, nil
}

// Supported queries the facilitator for supported payment kinds.
func (c *FacilitatorClient) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeouts.VerifyTimeout)
	defer cancel()

	return retry.WithRetry(ctx, c.Retry, isTransient, func() (*facilitator.SupportedResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/supported", nil)
		if err != nil {
			return nil, err
		}
		if err := c.authorize(ctx, req); err != nil {
			return nil, err
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return nil, err
		}

		var supported facilitator.SupportedResponse
		if err := json.NewDecoder(resp.Body).Decode(&supported); err != nil {
			return nil, &protocolStatusError{status: resp.StatusCode, cause: err}
		}
		return &supported, nil
	})
}

// post sends an X402Request to a facilitator endpoint and decodes the
// reply into out.
func (c *FacilitatorClient) post(ctx context.Context, path string, payment x402.PaymentPayload, requirements x402.PaymentRequirements, out any) error {
	body, err := json.Marshal(x402.X402Request{
		PaymentPayload:      payment,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = retry.WithRetry(ctx, c.Retry, isTransient, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if err := c.authorize(ctx, req); err != nil {
			return struct{}{}, err
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return struct{}{}, err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, &protocolStatusError{status: resp.StatusCode, cause: err}
		}
		return struct{}{}, nil
	})
	return err
}

func (c *FacilitatorClient) authorize(ctx context.Context, req *http.Request) error {
	switch {
	case c.AuthorizationProvider != nil:
		value, err := c.AuthorizationProvider(ctx)
		if err != nil {
			return fmt.Errorf("authorization provider: %w", err)
		}
		req.Header.Set("Authorization", value)
	case c.Authorization != "":
		req.Header.Set("Authorization", c.Authorization)
	}
	return nil
}

// protocolStatusError marks non-retryable facilitator rejections.
type protocolStatusError struct {
	status int
	body   string
	cause  error
}

func (e *protocolStatusError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("facilitator protocol error (status %d): %v", e.status, e.cause)
	}
	return fmt.Sprintf("facilitator rejected request (status %d): %s", e.status, e.body)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return &transientStatusError{status: resp.StatusCode}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &protocolStatusError{status: resp.StatusCode, body: string(body)}
	}
}
