package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // hard timeout per send
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

type circuitState string

const (
	stateClosed   circuitState = "closed"
	stateOpen     circuitState = "open"
	stateHalfOpen circuitState = "half_open"
)

// ProtectedNotifier bounds every send with a timeout and stops calling a failing provider.
type ProtectedNotifier struct {
	inner    Notifier
	cfg      ProtectedNotifierConfig
	recorder Recorder
	now      func() time.Time

	mu                  sync.Mutex
	state               circuitState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig, recorder Recorder) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedNotifier{
		inner:    inner,
		cfg:      cfg,
		recorder: recorder,
		now:      time.Now,
		state:    stateClosed,
	}
}

func (n *ProtectedNotifier) SendVerificationEmail(ctx context.Context, in EmailInput) error {
	return n.call(ctx, KindVerification, func(ctx context.Context) error {
		return n.inner.SendVerificationEmail(ctx, in)
	})
}

func (n *ProtectedNotifier) SendPasswordResetEmail(ctx context.Context, in EmailInput) error {
	return n.call(ctx, KindPasswordReset, func(ctx context.Context) error {
		return n.inner.SendPasswordResetEmail(ctx, in)
	})
}

func (n *ProtectedNotifier) call(ctx context.Context, kind string, fn func(context.Context) error) error {
	if !n.allowRequest() {
		n.record(kind, "circuit_open", 0)
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	start := n.now()
	err := fn(sendCtx)
	n.afterRequest(err)

	result := "ok"
	if err != nil {
		result = "error"
	}
	n.record(kind, result, n.now().Sub(start).Seconds())

	return err
}

func (n *ProtectedNotifier) record(kind, result string, secs float64) {
	if n.recorder != nil {
		n.recorder.ObserveMail(kind, result, secs)
	}
}

func (n *ProtectedNotifier) allowRequest() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case stateOpen:
		if n.now().Sub(n.openedAt) >= n.cfg.Cooldown {
			n.state = stateHalfOpen
			n.halfOpenInFlight = 1
			return true
		}
		return false
	case stateHalfOpen:
		if n.halfOpenInFlight >= n.cfg.HalfOpenMaxCalls {
			return false
		}
		n.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (n *ProtectedNotifier) afterRequest(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == stateHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}

	if err == nil {
		n.consecutiveFailures = 0
		n.state = stateClosed
		return
	}

	n.consecutiveFailures++

	// a failed trial call reopens immediately
	if n.state == stateHalfOpen {
		n.state = stateOpen
		n.openedAt = n.now()
		return
	}

	if n.consecutiveFailures >= n.cfg.FailureThreshold {
		n.state = stateOpen
		n.openedAt = n.now()
	}
}
