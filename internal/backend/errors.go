package backend

import "errors"

// Error values returned by Client calls; use errors.Is.
var (
	ErrUnauthorized  = errors.New("backend rejected credentials")
	ErrNotFound      = errors.New("backend resource not found")
	ErrUpstream      = errors.New("backend request failed")
	ErrCircuitOpen   = errors.New("backend circuit open")
	ErrInvalidConfig = errors.New("invalid backend config")
)

const (
	errorOperation        = "backend"
	errorCodeUnauthorized = "unauthorized"
	errorCodeNotFound     = "not_found"
	errorCodeUpstream     = "upstream"
	errorCodeCircuitOpen  = "circuit_open"
	errorCodeTransport    = "transport"
	errorCodeDecode       = "decode"
)
