// Package query implements the per-key Query state machine: fetch
// execution, deduplication, retry, cancellation, invalidation, and the
// Observer that projects Query state into a per-consumer Result.
package query

import "time"

// Status is the coarse lifecycle stage of a Query.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchStatus describes whether a fetcher invocation is currently running.
type FetchStatus int

const (
	FetchIdle FetchStatus = iota
	FetchFetching
	FetchPaused
)

func (s FetchStatus) String() string {
	switch s {
	case FetchIdle:
		return "idle"
	case FetchFetching:
		return "fetching"
	case FetchPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StaleTime is a three-valued duration: a concrete span (Duration), "never
// stale by elapsed time" (Infinite), or "never stale at all" (Static). The
// zero value is Duration(0), so the default, unconfigured StaleTime already
// means "always stale", matching spec.md §4.1.
type StaleTime struct {
	d        time.Duration
	infinite bool
	static   bool
}

// Duration builds a StaleTime that expires after d.
func Duration(d time.Duration) StaleTime { return StaleTime{d: d} }

// Infinite never becomes stale by elapsed time (isInvalidated can still mark
// it stale).
var Infinite = StaleTime{infinite: true}

// Static never reports stale, not even when invalidated, so refetches gated on
// staleness (mount, focus, reconnect) never run. It does not stop
// Query.Invalidate's background refetch or an explicit Fetch/Refetch: the
// Query itself does not know the StaleTime its Observers use.
var Static = StaleTime{static: true}

func (s StaleTime) IsStatic() bool { return s.static }

// State is the immutable snapshot of a Query at a point in time. A new State
// value is produced on every transition; nothing mutates a State in place.
type State[D any, E any] struct {
	Status      Status
	FetchStatus FetchStatus

	HasData       bool
	Data          D
	DataUpdatedAt time.Time
	DataUpdateCount int

	HasErr        bool
	Err           E
	ErrUpdatedAt  time.Time
	ErrUpdateCount int

	FailureCount  int
	HasFailureReason bool
	FailureReason E

	IsInvalidated bool
}

// IsStale reports whether State is eligible for a background refetch, given
// staleTime. Per spec.md §4.1: true if there is no data, if staleTime has
// elapsed since DataUpdatedAt, or if IsInvalidated. Static never reports
// stale; Infinite never reports stale by elapsed time.
func (s State[D, E]) IsStale(staleTime StaleTime, now time.Time) bool {
	if staleTime.IsStatic() {
		return false
	}
	if s.IsInvalidated {
		return true
	}
	if !s.HasData {
		return true
	}
	if staleTime.infinite {
		return false
	}
	return now.Sub(s.DataUpdatedAt) >= staleTime.d
}

func initialState[D any, E any]() State[D, E] {
	return State[D, E]{Status: StatusPending, FetchStatus: FetchIdle}
}
