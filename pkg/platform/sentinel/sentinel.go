package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, adapters and the session
// arena return these (optionally wrapped) so services can translate them into
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: session, document or record does not exist
// - ErrExpired: OTP code or attestation has expired
// - ErrInvalidState: state machine is in the wrong state for the operation
// - ErrUnavailable: collaborator temporarily unavailable
// - ErrStale: a late result targets a document or session that is no longer current
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrStale        = errors.New("stale result")
)
