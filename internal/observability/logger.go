package observability

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

type LoggerConfig struct {
	Env       string
	SentryDSN string
	Out       io.Writer
}

// NewLogger builds the process logger: text in dev, JSON elsewhere, trace ids stamped on
// every record and errors fanned out to Sentry when a DSN is configured.
// The returned flush func drains buffered Sentry events.
func NewLogger(cfg LoggerConfig) (*slog.Logger, func()) {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	var base slog.Handler
	if cfg.Env == "dev" {
		base = slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		base = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})
	}

	handlers := []slog.Handler{NewTraceHandler(base)}
	flush := func() {}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
		})
		if err == nil {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
			flush = func() { sentry.Flush(2 * time.Second) }
		} else {
			slog.New(base).Warn("sentry init failed", "err", err)
		}
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	} else {
		handler = handlers[0]
	}

	return slog.New(handler), flush
}
