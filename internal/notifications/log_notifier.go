package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// LogNotifier writes emails to the log instead of sending them (dev mode).
type LogNotifier struct {
	log   *slog.Logger
	links Links
}

func NewLogNotifier(log *slog.Logger, links Links) *LogNotifier {
	return &LogNotifier{log: log, links: links}
}

func (n *LogNotifier) SendVerificationEmail(ctx context.Context, in EmailInput) error {
	return n.emit(ctx, KindVerification, in.Email, n.links.Verification(in.Token))
}

func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, in EmailInput) error {
	return n.emit(ctx, KindPasswordReset, in.Email, n.links.PasswordReset(in.Token))
}

func (n *LogNotifier) emit(ctx context.Context, kind, to string, msg Message) error {
	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	n.log.InfoContext(ctx, "email sent (dev mode)",
		"type", kind,
		"to", to,
		"subject", msg.Subject,
		"url", msg.Link,
	)
	return nil
}
