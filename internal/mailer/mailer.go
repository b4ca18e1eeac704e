// Package mailer delivers one-time verification codes by email.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/growhive/apiserver/config"
	"go.uber.org/zap"
)

// Mailer sends a verification code to an email address.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

const subject = "Your GrowHive verification code"

func otpBody(code string) string {
	return fmt.Sprintf(
		"Welcome to GrowHive!\n\nYour verification code is %s.\n\n"+
			"Enter it in the app to verify your email address. "+
			"If you did not request this code, you can ignore this email.\n",
		code,
	)
}

// LogMailer writes codes to the log instead of sending them. It is used in
// development and when no SMTP server is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOTP(ctx context.Context, email, code string) error {
	m.logger.Info("otp email (not sent)", zap.String("email", email), zap.String("code", code))
	return nil
}

// NewDelivery returns the mailer that actually delivers email: SMTP when a
// host is configured, the log otherwise.
func NewDelivery(cfg config.SMTPConfig, logger *zap.Logger) (Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		logger.Warn("SMTP_HOST not set, otp emails will only be logged")
		return NewLogMailer(logger), nil
	}
	m, err := NewSMTPMailer(cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}
