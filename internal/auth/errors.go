// Package auth implements the account authentication core: signup,
// signin with optional TOTP two-factor, email verification, password
// reset, token refresh and login auditing.  Domain failures are
// expressed as Kind-tagged errors so the HTTP layer can switch on a
// kind instead of matching message strings.
package auth

import "errors"

// Kind enumerates every domain failure the service can report.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindNotFound
	KindInvalidCredentials
	KindNotVerified
	KindAlreadyVerified
	KindInvalidCode
	KindCodeExpired
	KindInvalidOtp
	KindTokenExpired
	KindTokenInvalid
	KindAlreadyEnabled
	KindNotEnabled
	KindSetupNotInitiated
	KindWeakPassword
	KindDeliveryFailure
)

// Error is a domain error with an enumerable kind and a user-facing
// message.  Err, when set, carries the underlying cause for the server
// log; it is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Shared instances for the pure domain-rule violations.  They carry no
// cause and are safe to compare with errors.Is.
var (
	ErrConflict           = &Error{Kind: KindConflict, Message: "email already registered"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "account not found"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrNotVerified        = &Error{Kind: KindNotVerified, Message: "email address not verified"}
	ErrAlreadyVerified    = &Error{Kind: KindAlreadyVerified, Message: "email address already verified"}
	ErrInvalidCode        = &Error{Kind: KindInvalidCode, Message: "invalid or already used code"}
	ErrCodeExpired        = &Error{Kind: KindCodeExpired, Message: "code has expired"}
	ErrInvalidOtp         = &Error{Kind: KindInvalidOtp, Message: "invalid one-time password"}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired, Message: "token has expired"}
	ErrTokenInvalid       = &Error{Kind: KindTokenInvalid, Message: "token is invalid"}
	ErrAlreadyEnabled     = &Error{Kind: KindAlreadyEnabled, Message: "two-factor authentication already enabled"}
	ErrNotEnabled         = &Error{Kind: KindNotEnabled, Message: "two-factor authentication not enabled"}
	ErrSetupNotInitiated  = &Error{Kind: KindSetupNotInitiated, Message: "two-factor setup not initiated"}
	ErrWeakPassword       = &Error{Kind: KindWeakPassword, Message: "password is too short or too common"}
)

// internalErr wraps an infrastructure failure.  Clients only ever see
// the generic message.
func internalErr(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// deliveryErr wraps an email delivery failure.
func deliveryErr(err error) *Error {
	return &Error{Kind: KindDeliveryFailure, Message: "could not deliver email", Err: err}
}

// KindOf extracts the kind from any error.  Non-domain errors read as
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
