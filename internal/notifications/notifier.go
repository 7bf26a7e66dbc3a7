package notifications

import "context"

type EmailInput struct {
	Email string
	Token string
}

// Notifier delivers account emails carrying a signed token link.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, input EmailInput) error
	SendPasswordResetEmail(ctx context.Context, input EmailInput) error
}

// Recorder observes delivery outcomes; observability.Prom implements it.
type Recorder interface {
	ObserveMail(kind, result string, seconds float64)
}

const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)
