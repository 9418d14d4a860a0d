package domain

import "errors"

// Crypto errors. Fatal for the packet; never retried at the same layer.
var (
	ErrAuthenticationFailed = errors.New("anemochory: authentication failed")
	ErrBadNonce             = errors.New("anemochory: bad nonce")
	ErrKeyExchangeFailed    = errors.New("anemochory: key exchange failed")
	ErrKeyDerivationFailed  = errors.New("anemochory: key derivation failed")
)

// Format errors. Fatal for the packet; silently dropped by the processor.
var (
	ErrInvalidSize      = errors.New("anemochory: invalid size")
	ErrMalformedRouting = errors.New("anemochory: malformed routing")
	ErrPaddingInvalid   = errors.New("anemochory: padding invalid")
)

// Protocol errors. Fatal for the packet; the processor counts but never replies.
var (
	ErrReplayDetected = errors.New("anemochory: replay detected")
	ErrExpired        = errors.New("anemochory: packet expired")
	ErrUnknownSession = errors.New("anemochory: unknown session")
)

// Path errors. Surfaced to the caller; not retryable without pool changes.
var (
	ErrInsufficientNodes   = errors.New("anemochory: insufficient nodes")
	ErrPathConstraintError = errors.New("anemochory: path constraint error")
)

// Transport errors. Transient; the client retries with backoff.
var (
	ErrConnectFailed = errors.New("anemochory: connect failed")
	ErrWriteFailed   = errors.New("anemochory: write failed")
	ErrReadTimeout   = errors.New("anemochory: read timeout")
	ErrFramingError  = errors.New("anemochory: framing error")
)

// Session errors. Caller bugs; surfaced directly.
var ErrSessionStateError = errors.New("anemochory: illegal session state transition")

// Payload errors. Surfaced to the caller.
var (
	ErrPayloadTooLarge = errors.New("anemochory: payload too large")
	ErrEmptyPayload    = errors.New("anemochory: empty payload")
)
