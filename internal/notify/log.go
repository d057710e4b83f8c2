package notify

import (
	"context"
	"log/slog"
)

// Log writes messages to the logger instead of sending them. Used when no
// mail provider is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SendCredentials(ctx context.Context, msg CredentialsMessage) error {
	email, err := RenderCredentials(msg)
	if err != nil {
		return err
	}
	// the password is never logged
	l.logger.InfoContext(ctx, "credentials email",
		"to", email.To,
		"subject", email.Subject,
		"matricule", msg.Matricule,
		"username", msg.Username,
	)
	return nil
}

func (l *Log) SendPaymentConfirmation(ctx context.Context, msg ConfirmationMessage) error {
	email, err := RenderConfirmation(msg)
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "payment confirmation email",
		"to", email.To,
		"subject", email.Subject,
		"receipt", msg.ReceiptReference,
	)
	return nil
}
