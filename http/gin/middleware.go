// Package gin provides Gin-compatible middleware for x402 payment gating.
// It is a thin adapter over the shared http package configuration. Unlike
// the net/http middleware, which settles when the handler commits its
// response, this adapter settles before invoking the handler: Gin streams
// responses directly, so the settlement header must be set first.
package gin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	x402 "github.com/ldclabs/x402-icp-go"
	"github.com/ldclabs/x402-icp-go/encoding"
	httpx402 "github.com/ldclabs/x402-icp-go/http"
	"github.com/ldclabs/x402-icp-go/validation"
)

// PaymentContextKey is the gin context key for the verification result.
const PaymentContextKey = "x402_payment"

// VerifiedPayment returns the verification result stored by the
// middleware, or nil when the request was not payment-gated.
func VerifiedPayment(c *gin.Context) *x402.VerifyResponse {
	v, _ := c.Get(PaymentContextKey)
	resp, _ := v.(*x402.VerifyResponse)
	return resp
}

// NewGinX402Middleware creates x402 payment middleware for Gin.
//
// The middleware:
//   - Checks for the X-PAYMENT header in requests
//   - Returns 402 Payment Required with the payment menu if missing
//   - Verifies, then settles the payment with the facilitator
//   - Stores the verification result in the Gin context
//   - Calls c.Abort() on payment failure, c.Next() on success
func NewGinX402Middleware(config *httpx402.Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fac := config.Facilitator
	if fac == nil {
		client := httpx402.NewFacilitatorClient(config.FacilitatorURL)
		client.Authorization = config.FacilitatorAuthorization
		client.AuthorizationProvider = config.FacilitatorAuthorizationProvider
		client.Logger = logger
		fac = client
	}

	return func(c *gin.Context) {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		resource := x402.ResourceInfo{
			URL:         scheme + "://" + c.Request.Host + c.Request.RequestURI,
			Description: config.Description,
			MimeType:    config.MimeType,
		}

		abort402 := func(reason string) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
				X402Version: x402.X402Version,
				Error:       reason,
				Resource:    resource,
				Accepts:     config.PaymentRequirements,
			})
		}

		paymentHeader := c.GetHeader("X-PAYMENT")
		if paymentHeader == "" {
			logger.Info("no payment header provided", "path", c.Request.URL.Path)
			abort402("payment required")
			return
		}

		payment, err := encoding.DecodePayment(paymentHeader)
		if err != nil {
			logger.Warn("invalid payment header", "error", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payment header"})
			return
		}

		requirements, ok := httpx402.MatchRequirements(payment, config.PaymentRequirements)
		if !ok {
			logger.Warn("payment does not match any offer",
				"network", payment.Accepted.Network,
				"asset", payment.Accepted.Asset)
			abort402("payment does not match any offer")
			return
		}

		request := x402.X402Request{PaymentPayload: payment, PaymentRequirements: requirements}
		if err := validation.ValidateRequest(request, time.Now()); err != nil {
			logger.Warn("payment failed local validation", "error", err)
			abort402(err.Error())
			return
		}

		verifyResp, err := fac.Verify(c.Request.Context(), payment, requirements)
		if err != nil {
			logger.Error("facilitator verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payment verification failed"})
			return
		}
		if !verifyResp.IsValid {
			logger.Warn("payment verification failed", "reason", verifyResp.InvalidReason)
			abort402(verifyResp.InvalidReason)
			return
		}

		if !config.VerifyOnly {
			settleResp, err := fac.Settle(c.Request.Context(), payment, requirements)
			if err != nil {
				logger.Error("settlement failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payment settlement failed"})
				return
			}
			if !settleResp.Success {
				logger.Warn("settlement unsuccessful", "reason", settleResp.ErrorReason)
				abort402(settleResp.ErrorReason)
				return
			}

			logger.Info("payment settled", "transaction", settleResp.Transaction)
			if header, err := encoding.EncodeSettlement(*settleResp); err == nil {
				c.Header("X-PAYMENT-RESPONSE", header)
			}
		}

		c.Set(PaymentContextKey, verifyResp)
		c.Next()
	}
}
