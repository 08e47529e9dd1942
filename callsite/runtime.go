package callsite

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/chazu/mop/meta"
	"github.com/chazu/mop/reflection"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mop.callsite")

// DefaultPolymorphicThreshold is the number of receiver types a call site
// may see before it stops caching.
const DefaultPolymorphicThreshold = 8

// Runtime connects call sites to a registry. Compiled code owns one Array
// per compilation unit; embedding code may also dispatch through the
// Runtime directly, which never caches.
type Runtime struct {
	reg       *meta.Registry
	threshold int

	mu     sync.RWMutex
	arrays []*Array
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithPolymorphicThreshold sets how many distinct receiver types a call
// site tolerates before it turns megamorphic.
func WithPolymorphicThreshold(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.threshold = n
		}
	}
}

// New creates a runtime over reg. A nil reg gets a fresh registry.
func New(reg *meta.Registry, opts ...Option) *Runtime {
	if reg == nil {
		reg = meta.NewRegistry()
	}
	rt := &Runtime{reg: reg, threshold: DefaultPolymorphicThreshold}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Runtime) Registry() *meta.Registry { return rt.reg }

// PolymorphicThreshold returns the configured threshold.
func (rt *Runtime) PolymorphicThreshold() int { return rt.threshold }

// NewArray allocates the call sites of one compilation unit.
func (rt *Runtime) NewArray(owner string, specs ...SiteSpec) *Array {
	a := &Array{owner: owner, rt: rt, sites: make([]*CallSite, len(specs))}
	for i, spec := range specs {
		a.sites[i] = &CallSite{spec: spec, index: i, array: a}
	}
	rt.mu.Lock()
	rt.arrays = append(rt.arrays, a)
	rt.mu.Unlock()
	log.Debugf("array %s: %d call sites", owner, len(specs))
	return a
}

// Arrays lists the arrays allocated so far.
func (rt *Runtime) Arrays() []*Array {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]*Array, len(rt.arrays))
	copy(out, rt.arrays)
	return out
}

// ---------------------------------------------------------------------------
// Uncached entry points
// ---------------------------------------------------------------------------

// MetaclassOf returns the metaclass dispatch would use for recv together
// with the value to dispatch on. Wrapped values use their pinned metaclass.
func (rt *Runtime) MetaclassOf(recv any) (meta.Metaclass, any, error) {
	v, pinned := meta.Unwrap(recv)
	if pinned != nil {
		return pinned, v, nil
	}
	if v == nil {
		return nil, nil, meta.ErrNilReceiver
	}
	mc, err := rt.reg.GetMetaclass(reflect.TypeOf(v))
	return mc, v, err
}

// InvokeMethod calls method name on recv without a call-site cache.
func (rt *Runtime) InvokeMethod(recv any, name string, args ...any) (any, error) {
	return rt.InvokeMethodWith(recv, name, args, meta.Options{})
}

// InvokeMethodWith dispatches a method call. Basic values whose type is
// still standard run their intrinsic operators directly.
func (rt *Runtime) InvokeMethodWith(recv any, name string, args []any, opts meta.Options) (any, error) {
	if recv != nil && opts == (meta.Options{}) {
		t := reflect.TypeOf(recv)
		if rt.reg.Primitives().IsStandard(t) {
			if m, ok := meta.LookupIntrinsic(t, name, reflection.TypesOf(args)); ok {
				return m.Invoke(recv, args)
			}
		}
	}
	mc, v, err := rt.MetaclassOf(recv)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}
	return mc.InvokeMethodWith(v, name, args, opts)
}

// GetProperty reads property name of recv.
func (rt *Runtime) GetProperty(recv any, name string) (any, error) {
	return rt.GetPropertyWith(recv, name, meta.Options{})
}

// GetPropertyWith reads property name of recv as seen from opts.
func (rt *Runtime) GetPropertyWith(recv any, name string, opts meta.Options) (any, error) {
	mc, v, err := rt.MetaclassOf(recv)
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", name, err)
	}
	return mc.GetPropertyWith(v, name, opts)
}

// SetProperty writes property name of recv.
func (rt *Runtime) SetProperty(recv any, name string, value any) error {
	return rt.SetPropertyWith(recv, name, value, meta.Options{})
}

// SetPropertyWith writes property name of recv as seen from opts.
func (rt *Runtime) SetPropertyWith(recv any, name string, value any, opts meta.Options) error {
	mc, v, err := rt.MetaclassOf(recv)
	if err != nil {
		return fmt.Errorf("set property %s: %w", name, err)
	}
	return mc.SetPropertyWith(v, name, value, opts)
}

// GetAttribute reads field name of recv, bypassing accessors.
func (rt *Runtime) GetAttribute(recv any, name string) (any, error) {
	return rt.GetAttributeWith(recv, name, meta.Options{})
}

// GetAttributeWith is GetAttribute with explicit options.
func (rt *Runtime) GetAttributeWith(recv any, name string, opts meta.Options) (any, error) {
	mc, v, err := rt.MetaclassOf(recv)
	if err != nil {
		return nil, fmt.Errorf("get attribute %s: %w", name, err)
	}
	return mc.GetAttribute(v, name, opts)
}

// SetAttribute writes field name of recv, bypassing accessors.
func (rt *Runtime) SetAttribute(recv any, name string, value any) error {
	return rt.SetAttributeWith(recv, name, value, meta.Options{})
}

// SetAttributeWith is SetAttribute with explicit options.
func (rt *Runtime) SetAttributeWith(recv any, name string, value any, opts meta.Options) error {
	mc, v, err := rt.MetaclassOf(recv)
	if err != nil {
		return fmt.Errorf("set attribute %s: %w", name, err)
	}
	return mc.SetAttribute(v, name, value, opts)
}

// InvokeStatic calls a static method registered on the metaclass of t.
func (rt *Runtime) InvokeStatic(t reflect.Type, name string, args ...any) (any, error) {
	mc, err := rt.reg.GetMetaclass(t)
	if err != nil {
		return nil, err
	}
	return mc.InvokeStaticMethod(name, args...)
}

// NewInstance runs the most specific constructor of t.
func (rt *Runtime) NewInstance(t reflect.Type, args ...any) (any, error) {
	mc, err := rt.reg.GetMetaclass(t)
	if err != nil {
		return nil, err
	}
	return mc.InvokeConstructor(args...)
}

// MethodClosure returns a function that calls method name on recv each
// time it runs, resolving it afresh.
func (rt *Runtime) MethodClosure(recv any, name string) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		return rt.InvokeMethodWith(recv, name, args, meta.Options{})
	}
}

// IsStaticallyResolvable reports whether a call of name on receivers of
// exactly type t with the given argument types would reach a native method
// or intrinsic that no runtime customization can replace at present.
// Compilers use it to skip dynamic dispatch.
func (rt *Runtime) IsStaticallyResolvable(t reflect.Type, name string, argTypes []reflect.Type) bool {
	flags := rt.reg.Primitives()
	if flags.IsStandard(t) {
		_, ok := meta.LookupIntrinsic(t, name, argTypes)
		return ok
	}
	if !flags.WithoutCustomHandle() || flags.CategoryUsed() {
		return false
	}
	mc, err := rt.reg.GetMetaclass(t)
	if err != nil || mc.IsModified() || mc.Kind() == meta.KindDelegating {
		return false
	}
	m, err := mc.Resolve(name, argTypes, meta.Options{})
	if err != nil {
		return false
	}
	switch m.Origin() {
	case meta.OriginNative, meta.OriginIntrinsic:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// Stats aggregates the state of every call site of a runtime.
type Stats struct {
	Epoch         uint64
	Arrays        int
	Sites         int
	Uninitialized int
	Monomorphic   int
	Megamorphic   int
	Hits          uint64
	Misses        uint64
	HitRate       float64 // percent
}

// Stats collects statistics over all arrays.
func (rt *Runtime) Stats() Stats {
	s := Stats{Epoch: rt.reg.Epoch()}
	for _, a := range rt.Arrays() {
		s.Arrays++
		for _, cs := range a.sites {
			s.Sites++
			switch cs.State() {
			case StateUninitialized:
				s.Uninitialized++
			case StateMonomorphic:
				s.Monomorphic++
			case StateMegamorphic:
				s.Megamorphic++
			}
			s.Hits += cs.hits.Load()
			s.Misses += cs.misses.Load()
		}
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) * 100 / float64(total)
	}
	return s
}
