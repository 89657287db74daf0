package service

import "holdem-core/internal/engine"

// Sentinel errors for the concerns the engine itself has no notion of: rooms,
// credentials, and sessions. Reuses engine.Error's taxonomy so callers can
// branch on Kind the same way regardless of which package raised the error.
var (
	ErrInvalidConfig     = &engine.Error{Kind: engine.KindInputValidation, Code: "invalid_config", Message: "table configuration is invalid"}
	ErrRoomNotFound      = &engine.Error{Kind: engine.KindPrecondition, Code: "room_not_found", Message: "no table exists for that room code"}
	ErrWeakCredential    = &engine.Error{Kind: engine.KindInputValidation, Code: "weak_credential", Message: "credential does not meet the minimum length requirement"}
	ErrInvalidCredential = &engine.Error{Kind: engine.KindAuthorization, Code: "invalid_credential", Message: "credential does not match the seat on record"}
	ErrSeatNotFound      = &engine.Error{Kind: engine.KindPrecondition, Code: "seat_not_found", Message: "no seat matches that name at the table"}
	ErrUnauthorized      = &engine.Error{Kind: engine.KindAuthorization, Code: "unauthorized", Message: "session token does not grant access to that seat"}
	ErrSessionExpired    = &engine.Error{Kind: engine.KindAuthorization, Code: "session_expired", Message: "session token has expired"}
)
