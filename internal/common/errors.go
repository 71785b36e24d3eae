// Package common defines shared constants and sentinel errors used across
// the auth service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// ErrInvalidCredentials covers unknown email, wrong password, and
	// password-less (OAuth-only) accounts. The caller must not be able to
	// tell these apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid covers expired, malformed, wrong-signature, wrong
	// issuer/audience, and blacklisted access tokens.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrRefreshInvalid covers expired, unknown, and reused refresh tokens.
	// Reuse detection is logged server-side only.
	ErrRefreshInvalid = errors.New("invalid refresh token")

	// ErrAccountConflict is returned when an email is already registered, or
	// an OAuth email collides with an unverified local account.
	ErrAccountConflict = errors.New("account already exists")
)
