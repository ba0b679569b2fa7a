package ioc

import (
	"sync"
	"sync/atomic"
)

// ConstantsTable is an append-only, index-addressable store for the
// constant values compiled delegates close over — currently only the
// instances of Value registrations — so a
// Clone() of the container can share the already-compiled constants of
// its parent without re-planning them (spec.md §5 "constants table").
//
// Reads are lock-free: Get loads an atomic snapshot slice. Append takes
// the table's mutex, copies the snapshot plus the new value, and publishes
// it, the same copy-on-write discipline lookup.go uses for the compiled
// delegate table.
type ConstantsTable struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]any]
}

func newConstantsTable() *ConstantsTable {
	t := &ConstantsTable{}
	empty := make([]any, 0)
	t.snapshot.Store(&empty)
	return t
}

// Append stores value and returns the index it can later be retrieved by.
func (t *ConstantsTable) Append(value any) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := *t.snapshot.Load()
	next := make([]any, len(old)+1)
	copy(next, old)
	next[len(old)] = value
	t.snapshot.Store(&next)
	return len(old)
}

// Get retrieves the value stored at index. It panics on an out-of-range
// index, which can only happen from a compiler bug since every index handed
// out by Append is valid for the table's entire lifetime.
func (t *ConstantsTable) Get(index int) any {
	return (*t.snapshot.Load())[index]
}

// Len reports how many constants have been appended so far.
func (t *ConstantsTable) Len() int {
	return len(*t.snapshot.Load())
}

// clone returns a new table pre-seeded with a copy of this table's current
// constants; appends to the clone never affect the original and vice versa
// (spec.md §12 Open Question ii, "Clone() preserves decorator indices").
func (t *ConstantsTable) clone() *ConstantsTable {
	nt := newConstantsTable()
	old := *t.snapshot.Load()
	cp := make([]any, len(old))
	copy(cp, old)
	nt.snapshot.Store(&cp)
	return nt
}
