package authclient

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

// Text codes form the closed error taxonomy carried on every structured
// error the client surfaces. UI code branches on these, never on messages.
const (
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeTooManyAttempts     = "TOO_MANY_ATTEMPTS"
	TextCodeTooManyRequests     = "TOO_MANY_REQUESTS"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeSessionRevoked      = "SESSION_REVOKED"
	TextCodeSessionExpired      = "SESSION_EXPIRED"
	TextCodeValidationError     = "VALIDATION_ERROR"
	TextCodeConflict            = "CONFLICT"
	TextCodeUnauthorized        = "UNAUTHORIZED"
	TextCodeForbidden           = "FORBIDDEN"
	TextCodeNotFound            = "NOT_FOUND"
	TextCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	TextCodeNetworkError        = "NETWORK_ERROR"
	TextCodeInvalidTransition   = "INVALID_SESSION_TRANSITION"
)

// ErrInvalidCredentials is returned when the identifier/password pair is rejected.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned when login is blocked pending email verification.
var ErrEmailNotVerified = errors.New("email address has not been verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrAccountLocked is returned when the account is locked server side.
var ErrAccountLocked = errors.New("account is locked", errors.CategoryAuth).
	WithTextCode(TextCodeAccountLocked).
	WithCode(errors.CodeForbidden)

// ErrTooManyAttempts is returned after repeated failed logins.
var ErrTooManyAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrTooManyRequests is returned when the server rate limits the client.
var ErrTooManyRequests = errors.New("too many requests", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests)

// ErrTokenInvalid is returned for malformed or unverifiable tokens.
var ErrTokenInvalid = errors.New("token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its expiration.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrSessionRevoked is returned when the session was revoked from another device.
var ErrSessionRevoked = errors.New("session has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeSessionRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is surfaced after a fatal refresh failure. The store is
// fully cleared before callers ever see this error.
var ErrSessionExpired = errors.New("session has expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrNoRefreshToken is returned when a refresh is requested without a stored
// refresh token.
var ErrNoRefreshToken = errors.New("no refresh token available", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrNoPendingTwoFactor is returned when an OTP is submitted without a
// pending two factor challenge.
var ErrNoPendingTwoFactor = errors.New("no pending two factor challenge", errors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(errors.CodeConflict)

// statusTextCodes maps HTTP statuses to taxonomy codes when the server did
// not send an explicit code in the response envelope.
var statusTextCodes = map[int]string{
	http.StatusBadRequest:          TextCodeValidationError,
	http.StatusUnauthorized:        TextCodeUnauthorized,
	http.StatusForbidden:           TextCodeForbidden,
	http.StatusNotFound:            TextCodeNotFound,
	http.StatusConflict:            TextCodeConflict,
	http.StatusLocked:              TextCodeAccountLocked,
	http.StatusTooManyRequests:     TextCodeTooManyRequests,
	http.StatusUnprocessableEntity: TextCodeValidationError,
}

func categoryForTextCode(code string) errors.Category {
	switch code {
	case TextCodeValidationError:
		return errors.CategoryValidation
	case TextCodeConflict:
		return errors.CategoryConflict
	case TextCodeNotFound:
		return errors.CategoryNotFound
	case TextCodeTooManyAttempts, TextCodeTooManyRequests:
		return errors.CategoryRateLimit
	case TextCodeForbidden:
		return errors.CategoryAuthz
	case TextCodeInternalServerError:
		return errors.CategoryInternal
	case TextCodeNetworkError:
		return errors.CategoryOperation
	default:
		return errors.CategoryAuth
	}
}

// FromWireError builds a structured error from a server error response.
// Codes sent by the server pass through unchanged; otherwise we derive one
// from the HTTP status. The raw status is always kept in metadata.
func FromWireError(status int, serverCode, message string, details map[string]any) *errors.Error {
	code := serverCode
	if code == "" {
		var ok bool
		if code, ok = statusTextCodes[status]; !ok {
			code = TextCodeInternalServerError
		}
	}

	if message == "" {
		message = http.StatusText(status)
	}

	meta := map[string]any{"status": status}
	for k, v := range details {
		meta[k] = v
	}

	return errors.New(message, categoryForTextCode(code)).
		WithTextCode(code).
		WithMetadata(meta)
}

// NewNetworkError wraps a transport level failure (no response received).
// The service layer never leaks raw transport errors to callers.
func NewNetworkError(err error) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, "network request failed").
		WithTextCode(TextCodeNetworkError)
}

// TextCodeOf extracts the taxonomy code from any error, empty when the error
// carries none.
func TextCodeOf(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// IsNetworkError reports whether err represents a transport failure, as
// opposed to a server returned error status.
func IsNetworkError(err error) bool {
	return TextCodeOf(err) == TextCodeNetworkError
}

// IsSessionExpired reports whether err is fatal to the current session.
func IsSessionExpired(err error) bool {
	switch TextCodeOf(err) {
	case TextCodeSessionExpired, TextCodeSessionRevoked:
		return true
	}
	return false
}
