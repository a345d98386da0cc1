// Package apperr defines the domain error taxonomy shared by the identity
// pipeline. Every error surfaced to a caller carries a stable wire code and an
// HTTP status; handlers resolve them with errors.As/errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error with a stable wire code.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope layer. All terminal, no retry.
var (
	ErrMalformedEnvelope = &Error{Code: "US029", Message: "Malformed encrypted payload", Status: http.StatusBadRequest}
	ErrKeyUnwrap         = &Error{Code: "US030", Message: "Failed to unwrap encryption key", Status: http.StatusBadRequest}
	ErrDecryptionFailed  = &Error{Code: "US031", Message: "Payload decryption failed", Status: http.StatusBadRequest}
	ErrRequestExpired    = &Error{Code: "US032", Message: "Request expired", Status: http.StatusRequestTimeout}
)

// Abuse guard.
var (
	ErrClientIPMissing    = &Error{Code: "US027", Message: "Client IP not provided", Status: http.StatusBadRequest}
	ErrIPBlocked          = &Error{Code: "US026", Message: "IP is blocked", Status: http.StatusTooManyRequests}
	ErrOtpTooManyAttempts = &Error{Code: "US025", Message: "OTP too many attempts", Status: http.StatusTooManyRequests}
)

// OTP verification. Recoverable by requesting a new code.
var (
	ErrOtpExpired = &Error{Code: "US024", Message: "OTP expired", Status: http.StatusBadRequest}
	ErrOtpInvalid = &Error{Code: "US033", Message: "OTP does not match", Status: http.StatusBadRequest}
)

// Registration.
var (
	ErrRegistrationSessionClosed = &Error{Code: "US034", Message: "Registration session expired, please try again", Status: http.StatusBadRequest}
	ErrUserAlreadyExists         = &Error{Code: "US001", Message: "User already registered", Status: http.StatusConflict}
	ErrEmailOrMobileRequired     = &Error{Code: "US004", Message: "Either email or mobile number is required", Status: http.StatusBadRequest}
	ErrCallingCodeRequired       = &Error{Code: "US018", Message: "Calling code is required when mobile number is provided", Status: http.StatusBadRequest}
	ErrPasswordRequired          = &Error{Code: "US017", Message: "Password is required", Status: http.StatusBadRequest}
	ErrMobileInvalid             = &Error{Code: "US022", Message: "Mobile number is not valid", Status: http.StatusBadRequest}
)

// Device binder.
var (
	ErrDeviceNotRegistered     = &Error{Code: "US035", Message: "Device not registered", Status: http.StatusBadRequest}
	ErrDeviceAlreadyRegistered = &Error{Code: "US036", Message: "Device already registered", Status: http.StatusConflict}
)

// Sessions and accounts.
var (
	ErrUnauthorized   = &Error{Code: "US020", Message: "Unauthorized access", Status: http.StatusUnauthorized}
	ErrUserNotFound   = &Error{Code: "US037", Message: "User not found", Status: http.StatusNotFound}
	ErrAccountBlocked = &Error{Code: "US038", Message: "Account is blocked", Status: http.StatusForbidden}
)

// Infrastructure.
var (
	ErrDispatchFailed     = &Error{Code: "US021", Message: "Not able to send or validate OTP, please try again", Status: http.StatusBadGateway}
	ErrDatabase           = &Error{Code: "US006", Message: "Failed to execute DB query", Status: http.StatusInternalServerError}
	ErrIntegrityViolation = &Error{Code: "US008", Message: "Database integrity constraint violated", Status: http.StatusConflict}
	ErrCacheDown          = &Error{Code: "US028", Message: "Cache server is down", Status: http.StatusServiceUnavailable}
)

// Wrap attaches cause to a domain error while keeping the sentinel matchable
// with errors.Is.
func Wrap(sentinel *Error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

// From extracts the domain error from err's chain, or returns a generic
// internal error when the chain carries none.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: "US002", Message: "Internal server error", Status: http.StatusInternalServerError}
}
