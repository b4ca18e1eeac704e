package client

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// OTPLength is the number of digits in a verification code.
	OTPLength = 6
	// ResendCooldown is how long the app waits before offering a resend.
	ResendCooldown = 60 * time.Second
	// MinPasswordLength mirrors the server's password rule.
	MinPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[A-Za-z]{2,}$`)

// UserError is a client-side validation failure whose text is shown to the
// user as is.
type UserError string

func (e UserError) Error() string { return string(e) }

const (
	ErrEmailRequired    UserError = "Please enter your email address."
	ErrInvalidEmail     UserError = "Please enter a valid email address."
	ErrCooldownActive   UserError = "Please wait before requesting another code."
	ErrIncompleteCode   UserError = "Please enter a valid 6-digit verification code."
	ErrFillAllFields    UserError = "Please fill in all fields."
	ErrVerifyEmailFirst UserError = "Please verify your email address before creating your account."
	ErrPasswordTooShort UserError = "Password must be at least 6 characters long."
	ErrInvalidDigit     UserError = "Verification code digits must be 0-9."
	ErrWrongState       UserError = "This action is not available right now."
)

// SignupState is a phase of the signup screen.
type SignupState int

const (
	StateEditing SignupState = iota
	StateOTPSent
	StateEmailVerified
	StateSubmitting
	StateSuccess
	// StateFailed is a verified session whose last signup attempt failed.
	// It accepts resubmission like StateEmailVerified.
	StateFailed
)

func (s SignupState) String() string {
	switch s {
	case StateEditing:
		return "Editing"
	case StateOTPSent:
		return "OtpSent"
	case StateEmailVerified:
		return "EmailVerified"
	case StateSubmitting:
		return "Submitting"
	case StateSuccess:
		return "Success"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SignupSession is the complete state of the signup screen. Every method
// returns an updated copy and leaves the receiver untouched.
type SignupSession struct {
	State    SignupState
	Name     string
	Email    string
	Password string
	Digits   [OTPLength]string

	// ResendAt is when another code may be requested. Zero means now.
	ResendAt time.Time
	// Message is the latest text to surface to the user.
	Message string
	// Result holds the created account once State is StateSuccess.
	Result *AuthResult
}

func NewSignupSession() SignupSession {
	return SignupSession{State: StateEditing}
}

func (s SignupSession) SetName(name string) SignupSession {
	s.Name = name
	return s
}

func (s SignupSession) SetPassword(password string) SignupSession {
	s.Password = password
	return s
}

// EditEmail changes the email. Changing it after a code was sent or the
// email was verified discards the code and the verification. The resend
// cooldown belongs to the old address and is dropped too.
func (s SignupSession) EditEmail(email string) SignupSession {
	if email == s.Email || s.State == StateSubmitting || s.State == StateSuccess {
		return s
	}
	s.Email = email
	s.ResendAt = time.Time{}
	switch s.State {
	case StateOTPSent, StateEmailVerified, StateFailed:
		s.State = StateEditing
		s.Digits = [OTPLength]string{}
	}
	return s
}

// NormalizedEmail is the email as sent to the server.
func (s SignupSession) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(s.Email))
}

// EmailValid reports whether the email is well formed.
func (s SignupSession) EmailValid() bool {
	return emailPattern.MatchString(strings.TrimSpace(s.Email))
}

// EmailLocked reports whether the email field is read-only.
func (s SignupSession) EmailLocked() bool {
	switch s.State {
	case StateEmailVerified, StateSubmitting, StateSuccess, StateFailed:
		return true
	}
	return false
}

// ValidateOTPRequest checks that a code (or a resend) may be requested now.
func (s SignupSession) ValidateOTPRequest(now time.Time) error {
	if s.State != StateEditing && s.State != StateOTPSent {
		return ErrWrongState
	}
	if strings.TrimSpace(s.Email) == "" {
		return ErrEmailRequired
	}
	if !s.EmailValid() {
		return ErrInvalidEmail
	}
	if s.CooldownRemaining(now) > 0 {
		return ErrCooldownActive
	}
	return nil
}

// CanRequestOTP is ValidateOTPRequest as a predicate.
func (s SignupSession) CanRequestOTP(now time.Time) bool {
	return s.ValidateOTPRequest(now) == nil
}

// OTPRequested records a successful send and starts the resend cooldown.
func (s SignupSession) OTPRequested(now time.Time) SignupSession {
	s.State = StateOTPSent
	s.Digits = [OTPLength]string{}
	s.ResendAt = now.Add(ResendCooldown)
	s.Message = "Verification code sent to your email address. Please check your inbox."
	return s
}

// OTPRequestFailed keeps the current state and does not start a cooldown.
func (s SignupSession) OTPRequestFailed(err error) SignupSession {
	s.Message = Message(err)
	return s
}

// SetDigit sets position i of the code. An empty d clears it.
func (s SignupSession) SetDigit(i int, d string) (SignupSession, error) {
	if s.State != StateOTPSent {
		return s, ErrWrongState
	}
	if i < 0 || i >= OTPLength {
		return s, ErrIncompleteCode
	}
	if d != "" && (len(d) != 1 || d[0] < '0' || d[0] > '9') {
		return s, ErrInvalidDigit
	}
	s.Digits[i] = d
	return s, nil
}

// SetCode fills the digits from a pasted code.
func (s SignupSession) SetCode(code string) (SignupSession, error) {
	code = strings.TrimSpace(code)
	if len(code) != OTPLength {
		return s, ErrIncompleteCode
	}
	var err error
	for i := 0; i < OTPLength; i++ {
		if s, err = s.SetDigit(i, code[i:i+1]); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (s SignupSession) Code() string {
	return strings.Join(s.Digits[:], "")
}

// OTPComplete reports whether all digits are entered.
func (s SignupSession) OTPComplete() bool {
	for _, d := range s.Digits {
		if d == "" {
			return false
		}
	}
	return true
}

// CooldownRemaining is the number of whole seconds until a resend is
// allowed. It is cosmetic: the server may enforce its own limit.
func (s SignupSession) CooldownRemaining(now time.Time) int {
	if s.ResendAt.IsZero() || !now.Before(s.ResendAt) {
		return 0
	}
	return int(math.Ceil(s.ResendAt.Sub(now).Seconds()))
}

// CanResend reports whether the resend action is offered.
func (s SignupSession) CanResend(now time.Time) bool {
	return s.State == StateOTPSent && s.CooldownRemaining(now) == 0
}

// ValidateVerify checks that the entered code can be submitted.
func (s SignupSession) ValidateVerify() error {
	if s.State != StateOTPSent {
		return ErrWrongState
	}
	if !s.OTPComplete() {
		return ErrIncompleteCode
	}
	return nil
}

// Verified locks the email.
func (s SignupSession) Verified() SignupSession {
	s.State = StateEmailVerified
	s.Digits = [OTPLength]string{}
	s.Message = "Email verified successfully!"
	return s
}

// VerifyFailed keeps the code entry open so it can be retried or resent.
func (s SignupSession) VerifyFailed(err error) SignupSession {
	s.Message = Message(err)
	return s
}

// BeginSubmit validates the form and moves to StateSubmitting.
func (s SignupSession) BeginSubmit() (SignupSession, error) {
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Email) == "" || s.Password == "" {
		return s, ErrFillAllFields
	}
	if s.State != StateEmailVerified && s.State != StateFailed {
		return s, ErrVerifyEmailFirst
	}
	if utf8.RuneCountInString(s.Password) < MinPasswordLength {
		return s, ErrPasswordTooShort
	}
	s.State = StateSubmitting
	s.Message = ""
	return s, nil
}

func (s SignupSession) SubmitSucceeded(result AuthResult) SignupSession {
	s.State = StateSuccess
	s.Result = &result
	s.Message = "Account created successfully!"
	return s
}

// SubmitFailed surfaces err and allows resubmission without re-verifying.
func (s SignupSession) SubmitFailed(err error) SignupSession {
	s.State = StateFailed
	s.Message = Message(err)
	return s
}

// SignupAPI is the part of Client used during signup.
type SignupAPI interface {
	SendOTP(ctx context.Context, email string) (SendOTPResult, error)
	VerifyOTP(ctx context.Context, email, code string) error
	Signup(ctx context.Context, name, email, password string) (AuthResult, error)
}

// SignupFlow runs a SignupSession against the API, one call at a time.
type SignupFlow struct {
	api     SignupAPI
	now     func() time.Time
	Session SignupSession
}

func NewSignupFlow(api SignupAPI) *SignupFlow {
	return &SignupFlow{api: api, now: time.Now, Session: NewSignupSession()}
}

// RequestOTP sends (or resends) a verification code.
func (f *SignupFlow) RequestOTP(ctx context.Context) error {
	now := f.now()
	if err := f.Session.ValidateOTPRequest(now); err != nil {
		f.Session.Message = err.Error()
		return err
	}
	if _, err := f.api.SendOTP(ctx, f.Session.NormalizedEmail()); err != nil {
		f.Session = f.Session.OTPRequestFailed(err)
		return err
	}
	f.Session = f.Session.OTPRequested(now)
	return nil
}

// VerifyOTP submits the entered code.
func (f *SignupFlow) VerifyOTP(ctx context.Context) error {
	if err := f.Session.ValidateVerify(); err != nil {
		f.Session.Message = err.Error()
		return err
	}
	if err := f.api.VerifyOTP(ctx, f.Session.NormalizedEmail(), f.Session.Code()); err != nil {
		f.Session = f.Session.VerifyFailed(err)
		return err
	}
	f.Session = f.Session.Verified()
	return nil
}

// Submit creates the account.
func (f *SignupFlow) Submit(ctx context.Context) (AuthResult, error) {
	next, err := f.Session.BeginSubmit()
	if err != nil {
		f.Session.Message = err.Error()
		return AuthResult{}, err
	}
	f.Session = next

	result, err := f.api.Signup(ctx, strings.TrimSpace(f.Session.Name), f.Session.NormalizedEmail(), f.Session.Password)
	if err != nil {
		f.Session = f.Session.SubmitFailed(err)
		return AuthResult{}, err
	}
	f.Session = f.Session.SubmitSucceeded(result)
	return result, nil
}

// IsUserError reports whether err is a client-side validation failure.
func IsUserError(err error) bool {
	var ue UserError
	return errors.As(err, &ue)
}
