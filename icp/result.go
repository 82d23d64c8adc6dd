package icp

import (
	"fmt"
)

// Result is the candid Result variant every facilitator method returns.
// Exactly one branch is set in a well-formed reply.
type Result[T any] struct {
	Ok  *T      `ic:"Ok,variant"`
	Err *string `ic:"Err,variant"`
}

// Unwrap converts a Result into a value or a RemoteError. Plain-string
// rejections are classified as Generic so callers deal with one error
// taxonomy across all canister endpoints. A reply with neither branch set
// is malformed and reported as such.
func (r Result[T]) Unwrap(method string) (T, error) {
	var zero T
	switch {
	case r.Ok != nil:
		return *r.Ok, nil
	case r.Err != nil:
		return zero, &RemoteError{Kind: RemoteGeneric, Method: method, Message: *r.Err}
	default:
		return zero, fmt.Errorf("icp: malformed %s reply: neither Ok nor Err set", method)
	}
}

// RemoteErrorKind classifies canister rejections.
type RemoteErrorKind string

// Rejection kinds reported by canisters. Registry-style endpoints report
// the full set; the x402 facilitator reports plain strings, surfaced as
// RemoteGeneric.
const (
	RemoteNotFound      RemoteErrorKind = "NotFound"
	RemoteAlreadyExists RemoteErrorKind = "AlreadyExists"
	RemoteUnauthorized  RemoteErrorKind = "Unauthorized"
	RemoteForbidden     RemoteErrorKind = "Forbidden"
	RemoteBadRequest    RemoteErrorKind = "BadRequest"
	RemoteNotSupported  RemoteErrorKind = "NotSupported"
	RemoteGeneric       RemoteErrorKind = "Generic"
)

// RemoteError is a rejection reported by a canister. The message is
// produced remotely and passed through verbatim.
type RemoteError struct {
	// Kind classifies the rejection.
	Kind RemoteErrorKind

	// Method is the canister method that rejected.
	Method string

	// Handle is the entity the rejection refers to, when the kind carries
	// one (NotFound, AlreadyExists).
	Handle string

	// Message is the remote error text.
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Handle != "" {
		msg = e.Handle
	}
	return fmt.Sprintf("icp: %s: %s: %s", e.Method, e.Kind, msg)
}

// taggedError is the candid RegistryError variant used by registry-style
// endpoints. Each option carries a record with a single field.
type taggedError struct {
	NotFound *struct {
		Handle string `ic:"handle"`
	} `ic:"NotFound,variant"`
	AlreadyExists *struct {
		Handle string `ic:"handle"`
	} `ic:"AlreadyExists,variant"`
	Unauthorized *struct {
		Error string `ic:"error"`
	} `ic:"Unauthorized,variant"`
	Forbidden *struct {
		Error string `ic:"error"`
	} `ic:"Forbidden,variant"`
	BadRequest *struct {
		Error string `ic:"error"`
	} `ic:"BadRequest,variant"`
	NotSupported *struct {
		Error string `ic:"error"`
	} `ic:"NotSupported,variant"`
	Generic *struct {
		Error string `ic:"error"`
	} `ic:"Generic,variant"`
}

// toRemote converts a tagged rejection to a RemoteError.
func (t taggedError) toRemote(method string) *RemoteError {
	switch {
	case t.NotFound != nil:
		return &RemoteError{Kind: RemoteNotFound, Method: method, Handle: t.NotFound.Handle}
	case t.AlreadyExists != nil:
		return &RemoteError{Kind: RemoteAlreadyExists, Method: method, Handle: t.AlreadyExists.Handle}
	case t.Unauthorized != nil:
		return &RemoteError{Kind: RemoteUnauthorized, Method: method, Message: t.Unauthorized.Error}
	case t.Forbidden != nil:
		return &RemoteError{Kind: RemoteForbidden, Method: method, Message: t.Forbidden.Error}
	case t.BadRequest != nil:
		return &RemoteError{Kind: RemoteBadRequest, Method: method, Message: t.BadRequest.Error}
	case t.NotSupported != nil:
		return &RemoteError{Kind: RemoteNotSupported, Method: method, Message: t.NotSupported.Error}
	case t.Generic != nil:
		return &RemoteError{Kind: RemoteGeneric, Method: method, Message: t.Generic.Error}
	default:
		return &RemoteError{Kind: RemoteGeneric, Method: method, Message: "unknown rejection"}
	}
}

// TaggedResult is the candid Result variant for registry-style endpoints
// whose Err branch is a tagged error record rather than a string.
type TaggedResult[T any] struct {
	Ok  *T           `ic:"Ok,variant"`
	Err *taggedError `ic:"Err,variant"`
}

// Unwrap converts a TaggedResult into a value or a RemoteError.
func (r TaggedResult[T]) Unwrap(method string) (T, error) {
	var zero T
	switch {
	case r.Ok != nil:
		return *r.Ok, nil
	case r.Err != nil:
		return zero, r.Err.toRemote(method)
	default:
		return zero, fmt.Errorf("icp: malformed %s reply: neither Ok nor Err set", method)
	}
}
