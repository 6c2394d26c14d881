package ingest

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// permanentError marks a failure that retrying cannot fix, such as a 404.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// retryWithBackoff calls fn up to maxRetries+1 times. The delay before retry
// n is initialDelay*2^n with ±25% jitter. A permanentError stops at once and
// is returned unwrapped.
func retryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		if attempt == maxRetries {
			break
		}

		delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt)))
		half := max(int64(delay)/2, 1)
		jitter, jerr := rand.Int(rand.Reader, big.NewInt(half))
		if jerr != nil {
			jitter = big.NewInt(0)
		}
		delay = delay - delay/4 + time.Duration(jitter.Int64())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
