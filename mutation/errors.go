package mutation

import "github.com/pkg/errors"

// PreconditionError is returned synchronously by Mutate when scope is
// single and a mutation is already pending; no state change occurs
// (spec.md §7).
type PreconditionError struct {
	cause error
}

func newPreconditionError() *PreconditionError {
	return &PreconditionError{cause: errors.New("mutation already pending in single scope")}
}

func (e *PreconditionError) Error() string { return e.cause.Error() }
func (e *PreconditionError) Unwrap() error { return e.cause }

// CallbackError wraps a panic recovered from an observer- or cache-level
// lifecycle callback (spec.md §7). Lifecycle errors for the mutation itself
// (onMutate throwing, etc.) are not CallbackErrors; they end the mutation in
// StatusError per spec.md §4.3 step 2.
type CallbackError struct {
	Phase string
	cause error
}

func (e *CallbackError) Error() string {
	return "mutation: callback error in " + e.Phase + ": " + e.cause.Error()
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
