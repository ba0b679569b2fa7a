package ioc

import "sync/atomic"

// resolveDelegate is the single compiled closure the compiler produces for
// one (identity, name) pair (spec.md §5 "Recipe Compiler"). Overrides are
// applied and decorators, initializers and the lifetime are assembled once,
// when the delegate is compiled; calling it runs the assembled chain.
type resolveDelegate func(factory ServiceFactory, scope *Scope, args []any) (any, error)

// lookupTable is the immutable, copy-on-write map the compiler publishes
// compiled delegates into. Resolves read the current snapshot without
// locking; only a (re)compile swaps in a new snapshot, the same discipline
// go-path-di's Container uses for its registration map and the discipline
// spec.md §5 calls for explicitly ("immutable copy-on-write lookup table").
type lookupTable struct {
	snapshot atomic.Pointer[map[DependencyKey]resolveDelegate]
}

func newLookupTable() *lookupTable {
	t := &lookupTable{}
	empty := make(map[DependencyKey]resolveDelegate)
	t.snapshot.Store(&empty)
	return t
}

// get returns the compiled delegate for key, or nil if nothing has compiled
// one yet.
func (t *lookupTable) get(key DependencyKey) resolveDelegate {
	m := *t.snapshot.Load()
	return m[key]
}

// put publishes a new delegate for key, replacing the whole snapshot so
// concurrent readers never observe a partially-updated map.
func (t *lookupTable) put(key DependencyKey, delegate resolveDelegate) {
	for {
		old := t.snapshot.Load()
		next := make(map[DependencyKey]resolveDelegate, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[key] = delegate
		if t.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// clone returns a new table sharing the current snapshot's entries; the
// clone's own puts never mutate the original's snapshot (spec.md §12 Open
// Question ii).
func (t *lookupTable) clone() *lookupTable {
	nt := newLookupTable()
	old := *t.snapshot.Load()
	next := make(map[DependencyKey]resolveDelegate, len(old))
	for k, v := range old {
		next[k] = v
	}
	nt.snapshot.Store(&next)
	return nt
}

// invalidate drops every compiled delegate, forcing the next resolve of
// each key to recompile. The container calls it after every successful
// Register*, Decorate, AddFallback and AddOverride, and after every
// AddInitializer and AddOpenGeneric (which also run after the lock), since
// a key that was already compiled might now resolve differently.
func (t *lookupTable) invalidate() {
	empty := make(map[DependencyKey]resolveDelegate)
	t.snapshot.Store(&empty)
}
