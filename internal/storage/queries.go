package storage

import (
	"context"
	"database/sql"
)

// UserProfile mirrors a user_profiles row.
type UserProfile struct {
	UserID        string
	Email         string
	LedgerID      sql.NullString
	Plan          string
	PaymentStatus string
	PaymentID     string
	CreatedAt     string
	UpdatedAt     string
}

const getProfile = `SELECT user_id, email, ledger_id, plan, payment_status, payment_id, created_at, updated_at
FROM user_profiles WHERE user_id = ?`

func (q *Queries) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	row := q.db.QueryRowContext(ctx, getProfile, userID)
	var i UserProfile
	err := row.Scan(
		&i.UserID,
		&i.Email,
		&i.LedgerID,
		&i.Plan,
		&i.PaymentStatus,
		&i.PaymentID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const ensureProfile = `INSERT INTO user_profiles (user_id, email, plan, payment_status, payment_id, created_at, updated_at)
VALUES (?, ?, 'free', '', '', ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    email = CASE WHEN user_profiles.email = '' THEN excluded.email ELSE user_profiles.email END`

type EnsureProfileParams struct {
	UserID string
	Email  string
	Now    string
}

func (q *Queries) EnsureProfile(ctx context.Context, arg EnsureProfileParams) error {
	_, err := q.db.ExecContext(ctx, ensureProfile, arg.UserID, arg.Email, arg.Now, arg.Now)
	return err
}

const claimLedger = `UPDATE user_profiles SET ledger_id = ?, updated_at = ?
WHERE user_id = ? AND (ledger_id IS NULL OR ledger_id = '')`

type ClaimLedgerParams struct {
	UserID   string
	LedgerID string
	Now      string
}

// ClaimLedger returns the number of rows updated: zero when a ledger was already set.
func (q *Queries) ClaimLedger(ctx context.Context, arg ClaimLedgerParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, claimLedger, arg.LedgerID, arg.Now, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const upsertPayment = `INSERT INTO user_profiles (user_id, email, plan, payment_status, payment_id, created_at, updated_at)
VALUES (?, '', ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    plan = excluded.plan,
    payment_status = excluded.payment_status,
    payment_id = CASE WHEN excluded.payment_id = '' THEN user_profiles.payment_id ELSE excluded.payment_id END,
    updated_at = excluded.updated_at`

type UpsertPaymentParams struct {
	UserID        string
	Plan          string
	PaymentStatus string
	PaymentID     string
	Now           string
}

func (q *Queries) UpsertPayment(ctx context.Context, arg UpsertPaymentParams) error {
	_, err := q.db.ExecContext(ctx, upsertPayment,
		arg.UserID,
		arg.Plan,
		arg.PaymentStatus,
		arg.PaymentID,
		arg.Now,
		arg.Now,
	)
	return err
}
