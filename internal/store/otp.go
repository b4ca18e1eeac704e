package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/growhive/apiserver/types"
)

// OTPRepository handles persistence for one-time codes and the email
// verifications they produce.
type OTPRepository struct {
	db *sql.DB
}

func NewOTPRepository(db *sql.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Replace deletes every code issued for otp.Email and stores otp in its place,
// inside a single transaction.
func (r *OTPRepository) Replace(ctx context.Context, otp types.OTP) (types.OTP, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.OTP{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM otps WHERE email = $1`, otp.Email); err != nil {
		return types.OTP{}, fmt.Errorf("delete previous codes: %w", err)
	}

	const insert = `
		INSERT INTO otps (email, code, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, insert, otp.Email, otp.Code, otp.CreatedAt, otp.ExpiresAt).Scan(&otp.ID); err != nil {
		return types.OTP{}, fmt.Errorf("insert code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.OTP{}, err
	}
	return otp, nil
}

// Consume deletes the code matching email and code exactly when it has not
// expired at now. It returns ErrNotFound when nothing matched.
func (r *OTPRepository) Consume(ctx context.Context, email, code string, now time.Time) error {
	const query = `DELETE FROM otps WHERE email = $1 AND code = $2 AND expires_at > $3`
	result, err := r.db.ExecContext(ctx, query, email, code, now)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes codes that expired before now.
func (r *OTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otps WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecordVerification stores (or refreshes) a successful verification for email.
func (r *OTPRepository) RecordVerification(ctx context.Context, v types.EmailVerification) error {
	const query = `
		INSERT INTO email_verifications (email, verified_at)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET verified_at = EXCLUDED.verified_at`
	_, err := r.db.ExecContext(ctx, query, v.Email, v.VerifiedAt)
	return err
}

// GetVerification returns the verification recorded for email.
func (r *OTPRepository) GetVerification(ctx context.Context, email string) (types.EmailVerification, error) {
	const query = `SELECT email, verified_at FROM email_verifications WHERE email = $1`
	var v types.EmailVerification
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&v.Email, &v.VerifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.EmailVerification{}, ErrNotFound
		}
		return types.EmailVerification{}, err
	}
	return v, nil
}

// DeleteVerification removes the verification recorded for email.
func (r *OTPRepository) DeleteVerification(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_verifications WHERE email = $1`, email)
	return err
}
