package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/auth-service/internal/model"
)

// LoginAttemptRepo appends to and reads from the 'login_attempts'
// audit table.  Rows are insert-only; nothing in the service updates
// or deletes them.
type LoginAttemptRepo struct{ DB *sql.DB }

func NewLoginAttemptRepo(db *sql.DB) *LoginAttemptRepo { return &LoginAttemptRepo{DB: db} }

// Create appends one attempt row.
func (r *LoginAttemptRepo) Create(ctx context.Context, a *model.LoginAttempt) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO login_attempts (user_id, ip, user_agent, device, success) VALUES (?,?,?,?,?)",
		a.UserID, a.IP, a.UserAgent, a.Device, a.Success)
	return err
}

// ListByUser returns up to limit attempts for a user, newest first.
func (r *LoginAttemptRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.LoginAttempt, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, ip, user_agent, device, success, created_at "+
			"FROM login_attempts WHERE user_id=? ORDER BY id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LoginAttempt
	for rows.Next() {
		var a model.LoginAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.IP, &a.UserAgent, &a.Device, &a.Success, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
