package core

import (
	"errors"
	"fmt"
	"time"
)

// Identity errors
var (
	ErrDuplicateEmail     = errors.New("email already registered")   // 409 Conflict
	ErrIdentityNotFound   = errors.New("identity not found")         // 404 Not Found
	ErrInvalidCredentials = errors.New("invalid email or password")  // 401 Unauthorized
	ErrForbidden          = errors.New("forbidden")                  // 403 Forbidden
	ErrUnverified         = errors.New("email address not verified") // 403 Forbidden
	ErrIdentityDisabled   = errors.New("identity disabled")
)

// Credential errors.
//
// The session and token kinds are internal: callers at the external boundary
// only ever see ErrUnauthorized.
var (
	ErrUnauthorized      = errors.New("unauthenticated") // 401
	ErrMissingCredential = errors.New("missing credential")
	ErrSessionNotFound   = errors.New("session not found")
	ErrTokenNotFound     = errors.New("token not found") // 404 on explicit revoke
	ErrSessionExpired    = errors.New("session expired")
	ErrSessionInvalid    = errors.New("session invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenRevoked      = errors.New("token revoked")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrUntrustedOrigin   = errors.New("origin is not a trusted stateful domain")
	ErrCacheNotFound     = errors.New("not found in cache")
)

// Reset and verification errors
var (
	ErrExpiredOrUsedArtifact = errors.New("reset link expired or already used") // 410 Gone
	ErrInvalidVerification   = errors.New("verification link invalid or expired")
)

// Validation errors (client input)
var (
	ErrEmailRequired    = errors.New("email is required")      // 400
	ErrInvalidEmail     = errors.New("invalid email format")   // 400
	ErrPasswordRequired = errors.New("password is required")   // 400
	ErrPasswordTooShort = errors.New("password is too short")  // 400
	ErrPasswordTooLong  = errors.New("password is too long")   // 400
	ErrNameTooLong      = errors.New("name is too long")       // 400
	ErrUnknownAbility   = errors.New("unknown token ability")  // 400
	ErrInvalidLocale    = errors.New("invalid locale")         // 400
	ErrInvalidRole      = errors.New("invalid role")           // 400
)

// Config errors (server-side configuration)
var (
	ErrStorageRequired = errors.New("storage adapter is required") // 500
	ErrHTTPRequired    = errors.New("http adapter is required")    // 500
	ErrSecretRequired  = errors.New("secret is required")          // 500
	ErrSecretTooShort  = errors.New("secret too short")            // 500
)

// TooManyAttemptsError is returned by the rate limiter once a bucket is full.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds up so a client never retries early.
func (e *TooManyAttemptsError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// IsTooManyAttempts unwraps err into a TooManyAttemptsError.
func IsTooManyAttempts(err error) (*TooManyAttemptsError, bool) {
	var tooMany *TooManyAttemptsError
	if errors.As(err, &tooMany) {
		return tooMany, true
	}
	return nil, false
}

