package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

var ErrNotConfigured = errors.New("email service not configured (missing RESEND_API_KEY)")

type ResendNotifier struct {
	client *resend.Client
	from   string
	links  Links
	log    *slog.Logger
}

func NewResendNotifier(apiKey, from string, links Links, log *slog.Logger) *ResendNotifier {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	return &ResendNotifier{client: client, from: from, links: links, log: log}
}

func (n *ResendNotifier) SendVerificationEmail(ctx context.Context, in EmailInput) error {
	return n.send(ctx, KindVerification, in.Email, n.links.Verification(in.Token))
}

func (n *ResendNotifier) SendPasswordResetEmail(ctx context.Context, in EmailInput) error {
	return n.send(ctx, KindPasswordReset, in.Email, n.links.PasswordReset(in.Token))
}

func (n *ResendNotifier) send(ctx context.Context, kind, to string, msg Message) error {
	if n.client == nil {
		return ErrNotConfigured
	}

	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}

	_, err := n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}

	n.log.InfoContext(ctx, "email sent", "type", kind, "to", to)
	return nil
}
