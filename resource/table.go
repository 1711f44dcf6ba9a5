package resource

import (
	"sort"
	"sync"
)

// table tracks issued descriptors. Descriptors are issued monotonically from 1
// and never reused, so a stale handle can never alias a newer resource.
type table struct {
	entries map[uint64]*entry
	next    uint64
	mu      sync.Mutex
	closed  bool
}

type entry struct {
	value   any
	kind    Kind
	pending bool
}

func newTable() *table {
	return &table{
		entries: make(map[uint64]*entry),
		next:    1,
	}
}

// issue allocates the next descriptor and tracks it as pending.
// It returns false once the table is closed.
func (t *table) issue(kind Kind) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, false
	}
	d := t.next
	t.next++
	t.entries[d] = &entry{kind: kind, pending: true}
	return d, true
}

// resolve records the produced resource. It returns false if the entry is gone.
func (t *table) resolve(d uint64, value any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[d]
	if !ok {
		return false
	}
	e.value = value
	e.pending = false
	return true
}

func (t *table) get(d uint64) (entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[d]
	if !ok {
		return entry{}, false
	}
	return *e, true
}

// remove stops tracking d. pending entries are only removed when force is set.
func (t *table) remove(d uint64, force bool) (entry, removeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[d]
	if !ok {
		return entry{}, removeMissing
	}
	if e.pending && !force {
		return *e, removePending
	}
	delete(t.entries, d)
	return *e, removeOK
}

type removeResult uint8

const (
	removeOK removeResult = iota
	removeMissing
	removePending
)

func (t *table) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// snapshot returns tracked descriptors in issue order.
func (t *table) snapshot() ([]uint64, []entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ds := make([]uint64, 0, len(t.entries))
	for d := range t.entries {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })

	es := make([]entry, len(ds))
	for i, d := range ds {
		es[i] = *t.entries[d]
	}
	return ds, es
}

// drain closes the table and returns every tracked entry in issue order.
// It returns nil on the second call.
func (t *table) drain() ([]uint64, []entry) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, nil
	}
	t.closed = true
	t.mu.Unlock()

	ds, es := t.snapshot()

	t.mu.Lock()
	t.entries = make(map[uint64]*entry)
	t.mu.Unlock()
	return ds, es
}

func (t *table) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
