package service

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer is the development mail transport. It records that a code was
// dispatched without ever logging the code itself.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that logs dispatches
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, email, code string) error {
	m.logger.Info("verification code dispatched", zap.String("email", email))
	return nil
}

func (m *LogMailer) SendPasswordResetCode(ctx context.Context, email, code string) error {
	m.logger.Info("password reset code dispatched", zap.String("email", email))
	return nil
}
