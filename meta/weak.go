package meta

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"weak"

	"github.com/chazu/mop/reflection"
)

// DefaultPruneInterval is the number of writes between prune passes of a
// WeakTable.
const DefaultPruneInterval = 1024

// ---------------------------------------------------------------------------
// WeakTable: per-instance values that do not keep their owner alive
// ---------------------------------------------------------------------------

// WeakTable maps owner instances to values without keeping the owners
// reachable. An entry is removed by a runtime cleanup once its owner has
// been collected; entries whose cleanup has not run yet are dropped by
// Prune, which also runs on its own every pruneEvery writes.
//
// Owners must be non-nil pointers to values of non-zero size.
type WeakTable struct {
	mu         sync.Mutex
	entries    map[weak.Pointer[byte]]any
	writes     int
	pruneEvery int
}

// NewWeakTable creates a table that prunes every pruneEvery writes. A
// non-positive interval selects DefaultPruneInterval.
func NewWeakTable(pruneEvery int) *WeakTable {
	if pruneEvery <= 0 {
		pruneEvery = DefaultPruneInterval
	}
	return &WeakTable{
		entries:    make(map[weak.Pointer[byte]]any),
		pruneEvery: pruneEvery,
	}
}

func ownerPointer(owner any) (*byte, error) {
	rv := reflect.ValueOf(owner)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, fmt.Errorf("weak table: owner must be a non-nil pointer, got %T", owner)
	}
	if rv.Type().Elem().Size() == 0 {
		return nil, fmt.Errorf("weak table: owner %T points to a zero-size value", owner)
	}
	return (*byte)(rv.UnsafePointer()), nil
}

// Get returns the value stored for owner.
func (t *WeakTable) Get(owner any) (any, bool) {
	p, err := ownerPointer(owner)
	if err != nil {
		return nil, false
	}
	key := weak.Make(p)
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[key]
	return v, ok
}

// Set stores v for owner.
func (t *WeakTable) Set(owner any, v any) error {
	p, err := ownerPointer(owner)
	if err != nil {
		return err
	}
	key := weak.Make(p)

	t.mu.Lock()
	_, existed := t.entries[key]
	t.entries[key] = v
	t.writes++
	prune := t.writes%t.pruneEvery == 0
	t.mu.Unlock()

	if !existed {
		runtime.AddCleanup(p, t.evict, key)
	}
	if prune {
		t.Prune()
	}
	return nil
}

// Delete removes the value stored for owner.
func (t *WeakTable) Delete(owner any) {
	p, err := ownerPointer(owner)
	if err != nil {
		return
	}
	t.evict(weak.Make(p))
}

func (t *WeakTable) evict(key weak.Pointer[byte]) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Prune drops entries whose owner has been collected and returns how many
// were dropped.
func (t *WeakTable) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key := range t.entries {
		if key.Value() == nil {
			delete(t.entries, key)
			n++
		}
	}
	if n > 0 {
		log.Debugf("weak table: pruned %d entries", n)
	}
	return n
}

// Len returns the number of entries, including any not yet pruned.
func (t *WeakTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ---------------------------------------------------------------------------
// Managed properties
// ---------------------------------------------------------------------------

// NewManagedProperty builds a property whose value lives beside each
// instance rather than in it. Instances that were never assigned read
// initial. The backing table is sized from reg.
func NewManagedProperty(reg *Registry, name string, typ reflect.Type, initial any) *MetaBeanProperty {
	table := NewWeakTable(reg.WeakPruneInterval())
	getter := synthetic(reflection.GetterNames(name)[0], nil, func(recv any, _ []any) (any, error) {
		if v, ok := table.Get(recv); ok {
			return v, nil
		}
		return initial, nil
	})
	setter := synthetic(reflection.SetterName(name), nil, func(recv any, args []any) (any, error) {
		v := firstArg(args)
		if typ != nil {
			cv, err := reflection.Coerce(v, typ)
			if err != nil {
				return nil, err
			}
			v = cv.Interface()
		}
		return nil, table.Set(recv, v)
	})
	if typ != nil {
		setter.params = []reflect.Type{typ}
	}
	return NewMetaBeanProperty(name, typ, getter, setter)
}
