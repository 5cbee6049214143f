package throughput

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a rejected command is re-sent.
// The delay doubles after every attempt and is capped at MaxDelay.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPHYRetry is applied to the PHY change issued right after connecting.
var DefaultPHYRetry = RetryPolicy{
	Attempts:     8,
	InitialDelay: 10 * time.Millisecond,
	MaxDelay:     320 * time.Millisecond,
}

// backOff builds the exponential schedule without jitter or an elapsed-time cap.
func (p RetryPolicy) backOff() backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = time.Duration(1<<63 - 1)
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	return backoff.WithMaxRetries(exp, uint64(attempts-1))
}

// Do calls fn until it succeeds or the attempts are exhausted, waiting on timer
// between attempts. A nil timer uses a real one. It returns the number of
// attempts made and the last error.
func (p RetryPolicy) Do(timer backoff.Timer, fn func() error) (int, error) {
	attempts := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		attempts++
		return fn()
	}, p.backOff(), nil, timer)
	return attempts, err
}
