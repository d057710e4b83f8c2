package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Sender is any mail transport.
type Sender interface {
	SendCredentials(ctx context.Context, msg CredentialsMessage) error
	SendPaymentConfirmation(ctx context.Context, msg ConfirmationMessage) error
}

// ErrUnavailable is returned while the breaker refuses calls.
var ErrUnavailable = errors.New("mail provider unavailable")

type BreakerConfig struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
	MaxRequests         uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 5, Timeout: 30 * time.Second, MaxRequests: 1}
}

// Breaker stops hammering a failing provider. Once open, calls fail fast
// with ErrUnavailable until the timeout lets a trial request through.
type Breaker struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Sender, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "mail",
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
		// a cancelled caller says nothing about the provider
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) SendCredentials(ctx context.Context, msg CredentialsMessage) error {
	return b.execute(func() error { return b.next.SendCredentials(ctx, msg) })
}

func (b *Breaker) SendPaymentConfirmation(ctx context.Context, msg ConfirmationMessage) error {
	return b.execute(func() error { return b.next.SendPaymentConfirmation(ctx, msg) })
}

// State reports the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
