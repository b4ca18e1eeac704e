package types

import "time"

// OTP represents one pending email-verification code.
// Only the most recently issued code for an email is ever valid.
type OTP struct {
	// ID is the unique identifier of the code row.
	ID int64 `json:"id" db:"id"`

	// Email is the normalized address the code was sent to.
	Email string `json:"email" db:"email"`

	// Code is the 6-digit numeric code.
	Code string `json:"-" db:"code"`

	// CreatedAt is when the code was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ExpiresAt is when the code stops verifying.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// EmailVerification records that control of an email was proven through a
// successful OTP verification. Registration consumes it.
type EmailVerification struct {
	Email      string    `json:"email" db:"email"`
	VerifiedAt time.Time `json:"verified_at" db:"verified_at"`
}
