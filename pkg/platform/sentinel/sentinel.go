package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Remote clients, relays and stores
// return these (optionally wrapped) so the flow can translate them into its
// own error kinds.
//
//   - ErrNotFound: record does not exist in a store or on the backend
//   - ErrConflict: a unique resource (session id) was already recorded
//   - ErrExpired: credentials or tokens are past their expiration
//   - ErrUnauthorized: the backend rejected the caller's token
//   - ErrInvalidState: operation not allowed in the current stage
//   - ErrUnavailable: backend, broker or bus temporarily unavailable
//   - ErrClosed: component already shut down
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
)
