package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Limiter errors
	ErrRateLimitExceeded = errors.New("too many failed login attempts")
	ErrInvalidTOTP       = errors.New("invalid two-factor code")
	ErrTOTPRequired      = errors.New("two-factor code required")
	ErrTOTPUnavailable   = errors.New("two-factor authentication is not configured")
)
