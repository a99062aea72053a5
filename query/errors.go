package query

import (
	"context"

	"github.com/pkg/errors"
)

// FetchError wraps whatever the user's QueryFn returned once the retry
// scheduler has exhausted its attempts. Modeled after gux's api.Error, but
// generalized away from an HTTP status code: the core has no transport
// opinion (spec.md §7).
type FetchError struct {
	cause error
}

func newFetchError(cause error) *FetchError {
	return &FetchError{cause: errors.Wrap(cause, "fetch")}
}

func (e *FetchError) Error() string { return e.cause.Error() }
func (e *FetchError) Unwrap() error { return e.cause }

// AbortedError marks a fetch that ended because its AbortSignal fired,
// whether from Cancel() or from a superseding fetch. It is swallowed by
// Query internally and never surfaces through State.Err (spec.md §7); Fetch
// returns it to its callers, so they can detect it with errors.As and tell a
// cancelled fetch from a failed one. It unwraps to the context error.
type AbortedError struct {
	cause error
}

func (e *AbortedError) Error() string { return "query: fetch aborted: " + e.cause.Error() }
func (e *AbortedError) Unwrap() error { return e.cause }

func isAborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// CallbackError wraps a panic or error recovered from an Observer-level or
// cache-level callback. It is logged, never rethrown into the core, and
// never corrupts Query/Mutation state (spec.md §7).
type CallbackError struct {
	Phase string // e.g. "onSuccess", "notify"
	cause error
}

func (e *CallbackError) Error() string {
	return "query: callback error in " + e.Phase + ": " + e.cause.Error()
}
func (e *CallbackError) Unwrap() error { return e.cause }

func recoverCallback(phase string, logf func(format string, args ...any)) func() {
	return func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = errors.Errorf("%v", r)
			}
			ce := &CallbackError{Phase: phase, cause: err}
			if logf != nil {
				logf("recovered panic: %v", ce)
			}
		}
	}
}
