package query

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// defaultRetryDelay backs the hard-default RetryDelay resolver with
// cenkalti/backoff's ExponentialBackOff, matching spec.md §4.1's
// delay(attempt) = min(maxDelay, base*2^attempt*(1±jitter)). A fresh
// ExponentialBackOff is walked attempt+1 steps on every call: resolvers must
// stay pure with respect to Query state (spec.md §9), and backoff.NextBackOff
// is otherwise a stateful, mutating API.
func defaultRetryDelay() Resolver[time.Duration] {
	return Func(func(attempt int, _ error) time.Duration {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 1 * time.Second
		b.Multiplier = 2
		b.MaxInterval = 30 * time.Second
		b.RandomizationFactor = 0.2
		b.MaxElapsedTime = 0 // never give up based on elapsed time; attempt cap governs that

		d := b.InitialInterval
		for i := 0; i <= attempt; i++ {
			d = b.NextBackOff()
		}
		return d
	})
}

// runRetrying executes attempt with cenkalti/backoff-style exponential
// sleeps between failures, gated by retry/retryDelay resolvers. It returns
// the last attempt's result. sleep is interrupted by ctx cancellation, in
// which case the returned error satisfies isAborted.
func runRetrying(ctx Signal, retry Resolver[bool], retryDelay Resolver[time.Duration], attempt func(n int) (any, error), onAttemptFailed func(n int, err error)) (any, error) {
	for n := 0; ; n++ {
		v, err := attempt(n)
		if err == nil {
			return v, nil
		}
		if isAborted(err) {
			return nil, err
		}
		onAttemptFailed(n, err)
		if !retry.Resolve(n, err) {
			return nil, err
		}
		d := retryDelay.Resolve(n, err)
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}
