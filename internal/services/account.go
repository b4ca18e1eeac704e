package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/growhive/apiserver/internal/store"
	"github.com/growhive/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 6

	defaultVerificationWindow = 30 * time.Minute
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id int64, changes store.ProfileChanges) (types.User, error)
	AppendCertificates(ctx context.Context, id int64, certs []types.Certificate) ([]types.Certificate, error)
	SetProfileImage(ctx context.Context, id int64, url string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// AccountOptions tunes AccountService.
type AccountOptions struct {
	// RequireVerifiedEmail rejects registrations without a recent OTP
	// verification for the email.
	RequireVerifiedEmail bool
	// VerificationWindow bounds how old that verification may be.
	VerificationWindow time.Duration
	Logger             *zap.Logger
}

// AccountService handles registration, login and credential changes.
type AccountService struct {
	users   UserRepository
	otps    OTPRepository
	tokens  *TokenIssuer
	opts    AccountOptions
	logger  *zap.Logger
	now     func() time.Time
	hashFor func(password string) ([]byte, error)
}

func NewAccountService(users UserRepository, otps OTPRepository, tokens *TokenIssuer, opts AccountOptions) *AccountService {
	if opts.VerificationWindow <= 0 {
		opts.VerificationWindow = defaultVerificationWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		users:  users,
		otps:   otps,
		tokens: tokens,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		hashFor: func(password string) ([]byte, error) {
			return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		},
	}
}

// RegisterInput carries the signup form.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates an account for a verified email and returns it with a
// fresh token.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (types.User, string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return types.User{}, "", validationf("Please fill in all fields.")
	}
	email := NormalizeEmail(in.Email)
	if email == "" {
		return types.User{}, "", validationf("Please enter a valid email address")
	}
	if err := checkPassword(in.Password); err != nil {
		return types.User{}, "", err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, "", ErrEmailInUse
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", fmt.Errorf("check existing user: %w", err)
	}

	verified, err := s.hasFreshVerification(ctx, email)
	if err != nil {
		return types.User{}, "", err
	}
	if s.opts.RequireVerifiedEmail && !verified {
		return types.User{}, "", ErrEmailNotVerified
	}

	hashed, err := s.hashFor(in.Password)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		IsVerified:   verified,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, "", ErrEmailInUse
		}
		return types.User{}, "", fmt.Errorf("create user: %w", err)
	}

	if verified {
		if err := s.otps.DeleteVerification(ctx, email); err != nil {
			s.logger.Warn("failed to consume email verification", zap.String("email", email), zap.Error(err))
		}
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *AccountService) hasFreshVerification(ctx context.Context, email string) (bool, error) {
	v, err := s.otps.GetVerification(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load verification: %w", err)
	}
	return s.now().Sub(v.VerifiedAt) <= s.opts.VerificationWindow, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *AccountService) Authenticate(ctx context.Context, rawEmail, password string) (types.User, string, error) {
	email := NormalizeEmail(rawEmail)
	if email == "" || password == "" {
		return types.User{}, "", ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Profile returns the user identified by userID.
func (s *AccountService) Profile(ctx context.Context, userID int64) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if current == "" || next == "" {
		return validationf("Please fill in all fields.")
	}
	if err := checkPassword(next); err != nil {
		return err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := s.hashFor(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hashed)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func checkPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return validationf("Password must be at least %d characters long.", MinPasswordLength)
	}
	return nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

// dummyHash is compared against when the email is unknown so both login
// failure paths cost one bcrypt comparison.
func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("growhive-placeholder"), bcrypt.DefaultCost)
	})
	return dummy
}
