// Package chi provides Chi-compatible middleware for x402 payment gating.
// Chi consumes standard net/http middleware, so this package is a thin
// adapter over the shared http package with Chi mounting helpers.
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx402 "github.com/ldclabs/x402-icp-go/http"
)

// NewChiX402Middleware creates x402 payment middleware for Chi.
//
// The middleware:
//   - Bypasses OPTIONS requests for CORS preflight support
//   - Checks for the X-PAYMENT header in requests
//   - Returns 402 Payment Required with the payment menu if missing
//   - Verifies the payment, then settles it when the handler commits a
//     success status
//   - Stores the verification result in the request context under
//     httpx402.PaymentContextKey
func NewChiX402Middleware(config *httpx402.Config) func(http.Handler) http.Handler {
	gate := httpx402.NewX402Middleware(config)
	return func(next http.Handler) http.Handler {
		gated := gate(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			gated.ServeHTTP(w, r)
		})
	}
}

// RequirePayment applies payment gating to every route registered on the
// router after this call.
func RequirePayment(r chi.Router, config *httpx402.Config) {
	r.Use(NewChiX402Middleware(config))
}

// Protected mounts a payment-gated subrouter at pattern. Routes outside
// the group remain free.
func Protected(r chi.Router, pattern string, config *httpx402.Config, register func(chi.Router)) {
	r.Route(pattern, func(sub chi.Router) {
		sub.Use(NewChiX402Middleware(config))
		register(sub)
	})
}
