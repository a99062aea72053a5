package client

import (
	"dario.cat/mergo"

	"goquery/query"
)

// ResolveQueryOptions implements spec.md §4.6's three-layer merge: call-site
// options override client defaults, which override hard defaults, via
// mergo.Merge's "don't overwrite non-zero destination fields" semantics —
// dst is merged first against clientDefaults, then against hard defaults,
// so only fields the caller actually set survive untouched (mirroring
// hcat's tfunc.mergeMap(dst, src) shape, but via mergo.Merge directly on
// structs instead of maps since Options is already strongly typed).
func ResolveQueryOptions[D any, E error](callSite, clientDefaults query.Options[D, E]) query.Options[D, E] {
	dst := callSite
	_ = mergo.Merge(&dst, clientDefaults)
	hard := query.HardDefaults[D, E]()
	_ = mergo.Merge(&dst, hard)
	return dst
}

// ResolveObserverOptions layers an ObserverOptions call-site value the same
// way, merging its embedded Options field plus Select/NotifyOnChangeProps.
func ResolveObserverOptions[D any, E error](callSite, clientDefaults query.ObserverOptions[D, E]) query.ObserverOptions[D, E] {
	dst := callSite
	dst.Options = ResolveQueryOptions(callSite.Options, clientDefaults.Options)
	if dst.Select == nil {
		dst.Select = clientDefaults.Select
	}
	if len(dst.NotifyOnChangeProps) == 0 {
		dst.NotifyOnChangeProps = clientDefaults.NotifyOnChangeProps
	}
	return dst
}
