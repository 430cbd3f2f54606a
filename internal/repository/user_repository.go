package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/auth-service/internal/model"
)

// UserRepo persists accounts in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const accountColumns = "id,email,first_name,last_name,password_hash,role,is_verified," +
	"verification_code,code_expiry,reset_password_code,reset_password_expiry," +
	"totp_secret,totp_enabled,created_at,updated_at"

// Create inserts an account and returns its ID.  The caller provides an
// already-hashed password; the repository never sees plaintext.
func (r *UserRepo) Create(ctx context.Context, a *model.Account) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, first_name, last_name, password_hash, role, is_verified, verification_code, code_expiry) VALUES (?,?,?,?,?,?,?,?)",
		strings.ToLower(strings.TrimSpace(a.Email)), a.FirstName, a.LastName,
		a.PasswordHash, a.Role, a.IsVerified, a.VerificationCode, a.CodeExpiry)
	if err != nil {
		// MySQL error 1062 = duplicate entry for the unique email index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches an account by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches an account by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetVerificationCode stores a fresh email verification code and its
// expiry, overwriting any previous pending code.
func (r *UserRepo) SetVerificationCode(ctx context.Context, id uint64, code string, expiry time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET verification_code=?, code_expiry=? WHERE id=?",
		code, expiry, id)
	return err
}

// ConsumeVerificationCode marks the account verified and clears the code
// pair in a single conditional update.  The WHERE clause requires the
// exact code, an unexpired expiry and an unverified account, so two
// racing consumers cannot both succeed: the second observes zero
// affected rows and the caller reports the code as no longer valid.
func (r *UserRepo) ConsumeVerificationCode(ctx context.Context, id uint64, code string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_verified=1, verification_code=NULL, code_expiry=NULL "+
			"WHERE id=? AND is_verified=0 AND verification_code=? AND code_expiry > ?",
		id, code, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetResetCode stores a fresh password reset code and its expiry,
// overwriting any previous pending code.
func (r *UserRepo) SetResetCode(ctx context.Context, id uint64, code string, expiry time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_password_code=?, reset_password_expiry=? WHERE id=?",
		code, expiry, id)
	return err
}

// ConsumeResetCode replaces the password hash and clears the reset code
// pair atomically.  Same at-most-once contract as
// ConsumeVerificationCode: a matched, unexpired code is required and the
// update clears it, so a concurrent second reset fails cleanly.
func (r *UserRepo) ConsumeResetCode(ctx context.Context, id uint64, code, newHash string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, reset_password_code=NULL, reset_password_expiry=NULL "+
			"WHERE id=? AND reset_password_code=? AND reset_password_expiry > ?",
		newHash, id, code, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetPendingTOTPSecret stores an unconfirmed 2FA secret.  totp_enabled
// stays 0; repeating setup simply overwrites the pending secret.
func (r *UserRepo) SetPendingTOTPSecret(ctx context.Context, id uint64, secret string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_secret=?, totp_enabled=0 WHERE id=?",
		secret, id)
	return err
}

// EnableTOTP confirms a pending 2FA secret.  The conditional update
// requires a stored secret and a disabled flag, so enabling is
// at-most-once and never manufactures a secret.
func (r *UserRepo) EnableTOTP(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_enabled=1 WHERE id=? AND totp_secret IS NOT NULL AND totp_enabled=0",
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DisableTOTP wipes the 2FA secret and flag.
func (r *UserRepo) DisableTOTP(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_secret=NULL, totp_enabled=0 WHERE id=?", id)
	return err
}

// scanOne maps a single row into an Account, converting nullable
// columns to pointers.  sql.ErrNoRows becomes ErrNotFound.
func (r *UserRepo) scanOne(row *sql.Row) (*model.Account, error) {
	var (
		a           model.Account
		verifCode   sql.NullString
		codeExpiry  sql.NullTime
		resetCode   sql.NullString
		resetExpiry sql.NullTime
		totpSecret  sql.NullString
	)
	err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &a.Role,
		&a.IsVerified, &verifCode, &codeExpiry, &resetCode, &resetExpiry,
		&totpSecret, &a.TOTPEnabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if verifCode.Valid {
		a.VerificationCode = &verifCode.String
	}
	if codeExpiry.Valid {
		t := codeExpiry.Time
		a.CodeExpiry = &t
	}
	if resetCode.Valid {
		a.ResetPasswordCode = &resetCode.String
	}
	if resetExpiry.Valid {
		t := resetExpiry.Time
		a.ResetPasswordExpiry = &t
	}
	if totpSecret.Valid {
		a.TOTPSecret = &totpSecret.String
	}
	return &a, nil
}
