package meta

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chazu/mop/reflection"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mop.meta")

// sharedCache backs registries that are not given their own reflective
// cache. Native types do not change while the process runs.
var sharedCache = reflection.NewCache()

type entry struct {
	mc         Metaclass
	generation uint64
	explicit   bool
	native     bool // built by DefaultStrategy
}

// Registry maps native types to their metaclasses. Every registry is
// independent; the process-wide one lives in the root package.
//
// The epoch counts changes that may alter the outcome of a dispatch. Call
// sites compare it against the epoch their cache entry was filled in.
type Registry struct {
	id         uuid.UUID
	cache      *reflection.Cache
	flags      *PrimitiveFlags
	pruneEvery int

	entries    sync.Map // reflect.Type -> *entry
	epoch      atomic.Uint64
	generation atomic.Uint64
	keepNative atomic.Bool

	strategyMu sync.RWMutex
	strategy   CreationStrategy // nil means DefaultStrategy

	catMu      sync.RWMutex
	categories []*Category
	catCount   atomic.Int32
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCreationStrategy sets the initial creation strategy.
func WithCreationStrategy(s CreationStrategy) RegistryOption {
	return func(r *Registry) {
		r.strategy = s
		r.flags.withoutCustomHandle.Store(s == nil)
	}
}

// WithReflectionCache uses c instead of the shared reflective cache.
func WithReflectionCache(c *reflection.Cache) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithKeepNativeMetaclasses sets the initial keep-native flag.
func WithKeepNativeMetaclasses(keep bool) RegistryOption {
	return func(r *Registry) { r.keepNative.Store(keep) }
}

// WithWeakPruneInterval sets how many writes a WeakTable created for this
// registry accepts between prune passes.
func WithWeakPruneInterval(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.pruneEvery = n
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		id:         uuid.New(),
		cache:      sharedCache,
		flags:      newPrimitiveFlags(),
		pruneEvery: DefaultPruneInterval,
	}
	r.epoch.Store(1)
	for _, opt := range opts {
		opt(r)
	}
	log.Debugf("registry %s created", r.id)
	return r
}

func (r *Registry) ID() uuid.UUID               { return r.id }
func (r *Registry) Cache() *reflection.Cache    { return r.cache }
func (r *Registry) Primitives() *PrimitiveFlags { return r.flags }
func (r *Registry) Epoch() uint64               { return r.epoch.Load() }
func (r *Registry) Generation() uint64          { return r.generation.Load() }
func (r *Registry) KeepNativeMetaclasses() bool { return r.keepNative.Load() }
func (r *Registry) WeakPruneInterval() int      { return r.pruneEvery }

func (r *Registry) bump(reason string) uint64 {
	e := r.epoch.Add(1)
	log.Debugf("registry %s: epoch %d (%s)", r.id, e, reason)
	return e
}

// metaclassChanged is called by a metaclass of t after a mutation.
func (r *Registry) metaclassChanged(t reflect.Type, reason string) {
	r.flags.touch(t)
	r.bump(fmt.Sprintf("%s: %s", t, reason))
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// current reports whether e may still be served.
func (r *Registry) current(e *entry) bool {
	if e.explicit || e.generation == r.generation.Load() {
		return true
	}
	return e.native && r.keepNative.Load() && !e.mc.IsModified()
}

// Lookup returns the metaclass of t if one has been created and is still
// current. It never creates one.
func (r *Registry) Lookup(t reflect.Type) (Metaclass, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := r.entries.Load(t)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if !r.current(e) {
		return nil, false
	}
	return e.mc, true
}

// LookupName finds a current metaclass by the string form of its type.
func (r *Registry) LookupName(name string) (Metaclass, bool) {
	var found Metaclass
	r.entries.Range(func(k, v any) bool {
		if k.(reflect.Type).String() == name && r.current(v.(*entry)) {
			found = v.(*entry).mc
			return false
		}
		return true
	})
	return found, found != nil
}

// GetMetaclass returns the canonical metaclass of t, creating it with the
// current strategy on first use. When two goroutines race to create it,
// the first to publish wins and the other adopts its metaclass.
func (r *Registry) GetMetaclass(t reflect.Type) (Metaclass, error) {
	if t == nil {
		return nil, &MetaclassCreationError{Cause: fmt.Errorf("nil type")}
	}
	for {
		v, loaded := r.entries.Load(t)
		if loaded && r.current(v.(*entry)) {
			return v.(*entry).mc, nil
		}

		fresh, err := r.create(t)
		if err != nil {
			return nil, err
		}
		if !loaded {
			if actual, lost := r.entries.LoadOrStore(t, fresh); lost {
				if r.current(actual.(*entry)) {
					return actual.(*entry).mc, nil
				}
				continue
			}
			log.Debugf("created %s metaclass for %s", fresh.mc.Kind(), t)
			return fresh.mc, nil
		}
		if r.entries.CompareAndSwap(t, v, fresh) {
			log.Debugf("rebuilt %s metaclass for %s", fresh.mc.Kind(), t)
			return fresh.mc, nil
		}
	}
}

func (r *Registry) create(t reflect.Type) (e *entry, err error) {
	r.strategyMu.RLock()
	s := r.strategy
	gen := r.generation.Load()
	r.strategyMu.RUnlock()

	native := s == nil
	if native {
		s = DefaultStrategy
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warningf("creation strategy panicked for %s: %v\n%s", t, p, debug.Stack())
			e, err = nil, &MetaclassCreationError{Type: t, Cause: &reflection.PanicError{Value: p}}
		}
	}()
	mc, err := s.CreateMetaclass(r, t)
	if err != nil {
		log.Warningf("creation strategy failed for %s: %s", t, err)
		return nil, &MetaclassCreationError{Type: t, Cause: err}
	}
	if mc == nil {
		return nil, &MetaclassCreationError{Type: t, Cause: fmt.Errorf("strategy returned no metaclass")}
	}
	return &entry{mc: mc, generation: gen, native: native}, nil
}

// ---------------------------------------------------------------------------
// Administration
// ---------------------------------------------------------------------------

// SetMetaclass installs mc as the metaclass of t. It survives strategy
// changes until removed.
func (r *Registry) SetMetaclass(t reflect.Type, mc Metaclass) error {
	if t == nil || mc == nil {
		return fmt.Errorf("set metaclass: nil type or metaclass")
	}
	if mc.Type() != t {
		return fmt.Errorf("set metaclass: metaclass of %s cannot serve %s", mc.Type(), t)
	}
	r.entries.Store(t, &entry{mc: mc, generation: r.generation.Load(), explicit: true})
	r.flags.touch(t)
	r.bump("metaclass set for " + t.String())
	return nil
}

// RemoveMetaclass forgets the metaclass of t; the next lookup creates a
// fresh one.
func (r *Registry) RemoveMetaclass(t reflect.Type) {
	if _, ok := r.entries.LoadAndDelete(t); ok {
		r.bump("metaclass removed for " + t.String())
	}
}

// SetCreationStrategy replaces the strategy used for metaclasses created
// from now on. Existing metaclasses that were not set explicitly become
// stale, except unmodified default ones while keep-native is on. Passing
// nil restores DefaultStrategy.
func (r *Registry) SetCreationStrategy(s CreationStrategy) {
	r.strategyMu.Lock()
	r.strategy = s
	r.generation.Add(1)
	r.strategyMu.Unlock()
	r.flags.withoutCustomHandle.Store(s == nil)
	log.Infof("registry %s: creation strategy replaced", r.id)
	r.bump("creation strategy")
}

// SetKeepNativeMetaclasses controls whether unmodified metaclasses built by
// DefaultStrategy outlive a strategy change.
func (r *Registry) SetKeepNativeMetaclasses(keep bool) {
	if r.keepNative.Swap(keep) != keep {
		r.bump("keep native metaclasses")
	}
}

// RegisterConstructor adds a constructor for t to the reflective cache.
func (r *Registry) RegisterConstructor(t reflect.Type, fn any) error {
	if err := r.cache.RegisterConstructor(t, fn); err != nil {
		return err
	}
	r.flags.touch(t)
	r.bump("constructor for " + t.String())
	return nil
}

// Metaclasses returns the current metaclasses ordered by type name.
func (r *Registry) Metaclasses() []Metaclass {
	var out []Metaclass
	r.entries.Range(func(_, v any) bool {
		if e := v.(*entry); r.current(e) {
			out = append(out, e.mc)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Type().String() < out[j].Type().String() })
	return out
}

// Reset returns the registry to its initial state. The epoch keeps
// counting so that call sites filled before the reset go stale.
func (r *Registry) Reset() {
	r.entries.Clear()
	r.strategyMu.Lock()
	r.strategy = nil
	r.generation.Add(1)
	r.strategyMu.Unlock()
	r.catMu.Lock()
	for _, c := range r.categories {
		c.detach(r)
	}
	r.categories = nil
	r.catCount.Store(0)
	r.catMu.Unlock()
	r.keepNative.Store(false)
	r.flags.reset()
	log.Infof("registry %s: reset", r.id)
	r.bump("reset")
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

// ActivateCategory makes c's methods visible to every dispatch through
// this registry. Later activations take precedence over earlier ones. A nil
// category is ignored.
func (r *Registry) ActivateCategory(c *Category) {
	if c == nil {
		return
	}
	c.attach(r)
	r.catMu.Lock()
	r.categories = append(r.categories, c)
	r.catCount.Store(int32(len(r.categories)))
	r.catMu.Unlock()
	r.flags.categoryUsed.Store(true)
	r.bump("category " + c.Name() + " activated")
}

// DeactivateCategory removes the most recent activation of c.
func (r *Registry) DeactivateCategory(c *Category) {
	if c == nil {
		return
	}
	r.catMu.Lock()
	i := len(r.categories) - 1
	for i >= 0 && r.categories[i] != c {
		i--
	}
	if i >= 0 {
		r.categories = slices.Delete(r.categories, i, i+1)
		c.detach(r)
	}
	n := len(r.categories)
	r.catCount.Store(int32(n))
	r.catMu.Unlock()
	if i < 0 {
		return
	}
	r.flags.categoryUsed.Store(n > 0)
	r.bump("category " + c.Name() + " deactivated")
}

// UseCategory runs fn with c active.
func (r *Registry) UseCategory(c *Category, fn func() error) error {
	r.ActivateCategory(c)
	defer r.DeactivateCategory(c)
	return fn()
}

// ActiveCategories lists the active categories, oldest first.
func (r *Registry) ActiveCategories() []*Category {
	r.catMu.RLock()
	defer r.catMu.RUnlock()
	return slices.Clone(r.categories)
}

// categoryMethods returns the candidates of the most recently activated
// category that has any method named name for t.
func (r *Registry) categoryMethods(t reflect.Type, name string) []*MetaMethod {
	if r.catCount.Load() == 0 {
		return nil
	}
	r.catMu.RLock()
	cats := slices.Clone(r.categories)
	r.catMu.RUnlock()
	for i := len(cats) - 1; i >= 0; i-- {
		if ms := cats[i].methodsFor(t, name); len(ms) > 0 {
			return ms
		}
	}
	return nil
}
