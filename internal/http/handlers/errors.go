package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these rather
// than on messages. Content the gateway cannot produce is not an error: it is
// answered with 204 and no body.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeConflict         = "conflict"

	// Written by middleware (auth, rate limiter, panic recovery).
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"

	// ErrCodeInvalidObject rejects a malformed object id or type.
	ErrCodeInvalidObject = "invalid_object"
	// ErrCodeStoreFailed reports a cache store read or write failure.
	ErrCodeStoreFailed = "store_failed"
	// ErrCodeUnavailable is used by the health probe when the store is down.
	ErrCodeUnavailable = "unavailable"
)
