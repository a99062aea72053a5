package query

import "reflect"

// StructuralShare preserves next's reference identity in favor of prev when
// the two are deeply equal, purely as a memoization aid for downstream
// consumers that compare by identity (spec.md §9 "Structural sharing").
// It is not required for correctness; skipping it is observable only
// through equality checks, never through the data's value. Used by
// InfiniteQuery page assembly so an unchanged page keeps its prior
// identity across a RefetchAll.
func StructuralShare[T any](prev, next T) T {
	if reflect.DeepEqual(prev, next) {
		return prev
	}
	return next
}
