package model

import "time"

// Role values stored on accounts and embedded in token claims.  The
// service only distinguishes ordinary users from administrators.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account represents a row in the `users` table.  Email uniqueness is
// enforced by the database with a case-insensitive collation, so the
// repository only lower-cases input for consistency of storage.
//
// The nullable code/expiry pairs travel together: a verification or
// reset code is never persisted without its expiry, and clearing one
// clears the other.  TOTPSecret may exist while TOTPEnabled is still
// false; that is the pending-setup state, confirmed only by a
// successful verification of a live code.
//
// Fields:
//  ID                  – primary key identifier of the account.
//  Email               – unique email address (stored lower-case).
//  FirstName           – given name.
//  LastName            – family name.
//  PasswordHash        – bcrypt hash of the password.
//  Role                – RoleUser or RoleAdmin.
//  IsVerified          – whether the email address has been confirmed.
//  VerificationCode    – pending 6-digit email confirmation code (nullable).
//  CodeExpiry          – absolute expiry of VerificationCode (nullable).
//  ResetPasswordCode   – pending 6-digit password reset code (nullable).
//  ResetPasswordExpiry – absolute expiry of ResetPasswordCode (nullable).
//  TOTPSecret          – base32 shared secret for 2FA (nullable).
//  TOTPEnabled         – whether 2FA has been confirmed and is required at signin.
//  CreatedAt           – timestamp of creation.
//  UpdatedAt           – timestamp of last update.
type Account struct {
	ID                  uint64     // users.id
	Email               string     // users.email
	FirstName           string     // users.first_name
	LastName            string     // users.last_name
	PasswordHash        string     // users.password_hash
	Role                string     // users.role
	IsVerified          bool       // users.is_verified
	VerificationCode    *string    // users.verification_code (nullable)
	CodeExpiry          *time.Time // users.code_expiry (nullable)
	ResetPasswordCode   *string    // users.reset_password_code (nullable)
	ResetPasswordExpiry *time.Time // users.reset_password_expiry (nullable)
	TOTPSecret          *string    // users.totp_secret (nullable)
	TOTPEnabled         bool       // users.totp_enabled
	CreatedAt           time.Time  // users.created_at
	UpdatedAt           time.Time  // users.updated_at
}

// LoginAttempt models an entry in the `login_attempts` audit table.
// One row is appended per signin attempt once the account was resolved
// by email; rows are never updated or deleted by the service.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – account the attempt was made against.
//  IP        – client IP as reported by the HTTP layer.
//  UserAgent – raw User-Agent header.
//  Device    – coarse device class (DESKTOP/MOBILE/TABLET/UNKNOWN).
//  Success   – whether the attempt produced a session.
//  CreatedAt – timestamp of the attempt.
type LoginAttempt struct {
	ID        uint64    // login_attempts.id
	UserID    uint64    // login_attempts.user_id
	IP        string    // login_attempts.ip
	UserAgent string    // login_attempts.user_agent
	Device    string    // login_attempts.device
	Success   bool      // login_attempts.success
	CreatedAt time.Time // login_attempts.created_at
}
