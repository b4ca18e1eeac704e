package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/growhive/apiserver/internal/store"
	"github.com/growhive/apiserver/types"
	"go.uber.org/zap"
)

const (
	defaultOTPTTL  = 10 * time.Minute
	otpMin         = 100000
	otpSpan        = 900000
	cooldownPrefix = "otp:resend:"
)

// OTPRepository defines persistence operations for one-time codes and
// email verifications.
type OTPRepository interface {
	Replace(ctx context.Context, otp types.OTP) (types.OTP, error)
	Consume(ctx context.Context, email, code string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	RecordVerification(ctx context.Context, v types.EmailVerification) error
	GetVerification(ctx context.Context, email string) (types.EmailVerification, error)
	DeleteVerification(ctx context.Context, email string) error
}

// OTPSender delivers a code to an email address.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string) error
}

// ResendLimiter grants at most one acquisition per key within ttl.
type ResendLimiter interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error)
}

// OTPOptions tunes OTPService. Zero values pick defaults; a nil Limiter
// disables the server-side resend cooldown.
type OTPOptions struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	Limiter        ResendLimiter
	Logger         *zap.Logger
}

// OTPService issues and verifies email verification codes.
type OTPService struct {
	users    UserRepository
	otps     OTPRepository
	sender   OTPSender
	limiter  ResendLimiter
	ttl      time.Duration
	cooldown time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewOTPService(users UserRepository, otps OTPRepository, sender OTPSender, opts OTPOptions) *OTPService {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPService{
		users:    users,
		otps:     otps,
		sender:   sender,
		limiter:  opts.Limiter,
		ttl:      ttl,
		cooldown: opts.ResendCooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Request issues a fresh code for email, invalidating every earlier one, and
// hands it to the sender. The code is returned so development builds can
// echo it.
func (s *OTPService) Request(ctx context.Context, rawEmail string) (string, error) {
	if strings.TrimSpace(rawEmail) == "" {
		return "", validationf("Email is required")
	}
	email := NormalizeEmail(rawEmail)
	if email == "" {
		return "", validationf("Please enter a valid email address")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return "", ErrDuplicateAccount
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("check existing user: %w", err)
	}

	if s.limiter != nil && s.cooldown > 0 {
		ok, retryAfter, err := s.limiter.Acquire(ctx, cooldownPrefix+email, s.cooldown)
		if err != nil {
			// A broken limiter must not block signups.
			s.logger.Warn("otp resend limiter failed", zap.Error(err))
		} else if !ok {
			return "", &ResendTooSoonError{RetryAfterSeconds: int(math.Ceil(retryAfter.Seconds()))}
		}
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	now := s.now().UTC()
	if _, err := s.otps.Replace(ctx, types.OTP{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	if err := s.sender.SendOTP(ctx, email, code); err != nil {
		return "", fmt.Errorf("send code: %w", err)
	}

	s.logger.Debug("otp issued", zap.String("email", email))
	return code, nil
}

// Verify consumes the code issued for email. A code verifies at most once.
func (s *OTPService) Verify(ctx context.Context, rawEmail, code string) error {
	email := NormalizeEmail(rawEmail)
	code = strings.TrimSpace(code)
	if strings.TrimSpace(rawEmail) == "" || code == "" {
		return validationf("Email and OTP are required")
	}
	if email == "" {
		return ErrInvalidOrExpiredCode
	}

	now := s.now().UTC()
	if err := s.otps.Consume(ctx, email, code, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidOrExpiredCode
		}
		return fmt.Errorf("consume code: %w", err)
	}

	if err := s.otps.RecordVerification(ctx, types.EmailVerification{Email: email, VerifiedAt: now}); err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	return nil
}

// PurgeExpired deletes codes whose TTL elapsed.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.otps.DeleteExpired(ctx, s.now().UTC())
}

// generateCode returns a uniformly random code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
