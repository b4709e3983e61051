package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerMaxFailures = 3
	defaultBreakerTimeout     = 10 * time.Second
	defaultBreakerInterval    = time.Minute
)

// BreakerConfig configures connect circuit breaking
type BreakerConfig struct {
	// MaxFailures is the number of consecutive connect failures that open the circuit.
	MaxFailures uint32 `yaml:"max_failures" mapstructure:"max_failures" json:"max_failures" default:"3"`
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout" default:"10s"`
	// Interval clears failure counts while closed. Zero keeps counts until the circuit opens.
	Interval time.Duration `yaml:"interval" mapstructure:"interval" json:"interval" default:"1m"`
}

// BreakerTransport wraps a Transport so that repeated connect failures fail
// fast instead of hammering an adapter that keeps refusing.
type BreakerTransport struct {
	Transport
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *logrus.Logger
}

// NewBreakerTransport wraps inner. Zero config fields fall back to defaults.
func NewBreakerTransport(inner Transport, cfg BreakerConfig, logger *logrus.Logger) *BreakerTransport {
	if logger == nil {
		logger = logrus.New()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "ble-connect",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// operator cancellation and duplicate connects say nothing about link health
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrAlreadyConnected)
		},
	})

	return &BreakerTransport{
		Transport: inner,
		breaker:   cb,
		logger:    logger,
	}
}

// Connect routes the inner Connect through the circuit breaker.
func (b *BreakerTransport) Connect(ctx context.Context, target string) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.Transport.Connect(ctx, target)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerTransport) State() gobreaker.State {
	return b.breaker.State()
}
