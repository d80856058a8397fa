package bridge

import (
	"time"

	"github.com/autoserve/autoserve/internal/logging"
)

const (
	// defaultPollInterval matches the worker log's write cadence closely
	// enough that the tail channel stays near-live without busy reading.
	defaultPollInterval = 700 * time.Millisecond

	defaultQueueSize = 256
)

type config struct {
	pollInterval time.Duration
	queueSize    int
	retry        RetryPolicy
	logger       *logging.Logger
}

// Option customizes bridge construction.
type Option func(*config)

// WithPollInterval sets how often the tail channel polls the log file.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}

// WithQueueSize sets the inbound queue capacity.
func WithQueueSize(n int) Option {
	return func(c *config) { c.queueSize = n }
}

// WithRetryPolicy sets the enqueue retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *config) { c.retry = p }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// RetryPolicy is a bounded exponential backoff expressed as data.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// Multiplier scales the delay after each retry.
	Multiplier float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// Delay returns the backoff delay for the given zero-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}
