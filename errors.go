package x402

import "errors"

// Sentinel errors for x402 payment operations.
var (
	// ErrUnsupportedNetwork indicates the offer's network does not match the
	// client's configured network.
	ErrUnsupportedNetwork = errors.New("x402: unsupported network")

	// ErrUnsupportedAsset indicates the asset is not supported by the
	// facilitator.
	ErrUnsupportedAsset = errors.New("x402: unsupported asset")

	// ErrNoAcceptableOffer indicates no entry in a payment menu matches the
	// client's network and selected asset.
	ErrNoAcceptableOffer = errors.New("x402: no acceptable payment offer")

	// ErrUnsupportedScheme indicates the scheme/version combination is not
	// supported by the facilitator.
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrInvalidNetwork indicates a malformed network identifier.
	ErrInvalidNetwork = errors.New("x402: invalid network identifier")

	// ErrInvalidTransaction indicates a malformed composite transaction id.
	ErrInvalidTransaction = errors.New("x402: invalid transaction identifier")

	// ErrInvalidAmount indicates a malformed atomic amount string.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidRequirements indicates the payment requirements from the
	// server are invalid.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrAmountExceeded indicates the payment exceeds the per-call limit.
	ErrAmountExceeded = errors.New("x402: payment amount exceeds per-call limit")

	// ErrNoValidSigner indicates no signer can satisfy the payment
	// requirements.
	ErrNoValidSigner = errors.New("x402: no signer can satisfy payment requirements")

	// ErrSigningFailed indicates the payment signing operation failed.
	ErrSigningFailed = errors.New("x402: payment signing failed")

	// ErrInvalidKey indicates an invalid private key or seed.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrInvalidMnemonic indicates an invalid BIP39 mnemonic phrase.
	ErrInvalidMnemonic = errors.New("x402: invalid mnemonic phrase")

	// ErrNoTokens indicates no tokens are configured for the signer.
	ErrNoTokens = errors.New("x402: no tokens configured")

	// ErrMalformedHeader indicates the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrFacilitatorUnavailable indicates the facilitator service is
	// unavailable.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates payment settlement failed.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrExpiredAuthorization indicates the authorization expiry is not in
	// the future.
	ErrExpiredAuthorization = errors.New("x402: expired authorization")
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeUnsupportedNetwork indicates a network mismatch.
	ErrCodeUnsupportedNetwork ErrorCode = "UNSUPPORTED_NETWORK"

	// ErrCodeUnsupportedAsset indicates an unsupported asset.
	ErrCodeUnsupportedAsset ErrorCode = "UNSUPPORTED_ASSET"

	// ErrCodeNoAcceptableOffer indicates no usable entry in a payment menu.
	ErrCodeNoAcceptableOffer ErrorCode = "NO_ACCEPTABLE_OFFER"

	// ErrCodeUnsupportedScheme indicates an unsupported scheme or version.
	ErrCodeUnsupportedScheme ErrorCode = "UNSUPPORTED_SCHEME"

	// ErrCodeNoValidSigner indicates no signer can satisfy requirements.
	ErrCodeNoValidSigner ErrorCode = "NO_VALID_SIGNER"

	// ErrCodeInvalidRequirements indicates invalid server requirements.
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"

	// ErrCodeSigningFailed indicates the signing operation failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeAllowanceFailed indicates the allowance top-up failed.
	ErrCodeAllowanceFailed ErrorCode = "ALLOWANCE_FAILED"

	// ErrCodeNetworkError indicates a transport-level failure.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]any

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds additional context to the error.
func (e *PaymentError) WithDetails(key string, value any) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}
