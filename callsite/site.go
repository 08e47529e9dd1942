package callsite

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/chazu/mop/meta"
	"github.com/chazu/mop/reflection"
)

// maxSigArgs is the largest argument count a cache entry can key on.
// Calls with more arguments always take the slow path.
const maxSigArgs = 4

// argSig is the argument-type part of a cache key.
type argSig struct {
	n     int
	types [maxSigArgs]reflect.Type
}

func signatureOf(types []reflect.Type) (argSig, bool) {
	if len(types) > maxSigArgs {
		return argSig{}, false
	}
	s := argSig{n: len(types)}
	copy(s.types[:], types)
	return s, true
}

// target is an immutable cache entry. Entries are replaced whole, so a
// reader sees either the old or the new one.
type target struct {
	epoch uint64
	recv  reflect.Type
	args  argSig
	m     *meta.MetaMethod
}

// CallSite caches the outcome of one dynamic operation for the receiver
// type it last saw. A cached entry is served only while the registry epoch,
// the receiver type and the argument types all match; anything else
// resolves through the metaclass and refills the entry. Once a site has
// been refilled for more receiver types than the runtime's threshold it
// turns megamorphic and stops caching for good.
//
// Call sites are safe for concurrent use.
type CallSite struct {
	spec  SiteSpec
	index int
	array *Array

	entry    atomic.Pointer[target]
	mega     atomic.Bool
	observed atomic.Int64
	hits     atomic.Uint64
	misses   atomic.Uint64
}

func (cs *CallSite) Name() string  { return cs.spec.Name }
func (cs *CallSite) Kind() Kind    { return cs.spec.Kind }
func (cs *CallSite) Index() int    { return cs.index }
func (cs *CallSite) Array() *Array { return cs.array }

// State reports the cache state.
func (cs *CallSite) State() State {
	switch {
	case cs.mega.Load():
		return StateMegamorphic
	case cs.entry.Load() == nil:
		return StateUninitialized
	}
	return StateMonomorphic
}

// Cached returns the receiver type of the current entry.
func (cs *CallSite) Cached() (reflect.Type, bool) {
	if e := cs.entry.Load(); e != nil {
		return e.recv, true
	}
	return nil, false
}

// Observed is the number of receiver types the site has been filled for.
func (cs *CallSite) Observed() int { return int(cs.observed.Load()) }

func (cs *CallSite) Hits() uint64   { return cs.hits.Load() }
func (cs *CallSite) Misses() uint64 { return cs.misses.Load() }

// Reset returns the site to its uninitialized state.
func (cs *CallSite) Reset() {
	cs.entry.Store(nil)
	cs.mega.Store(false)
	cs.observed.Store(0)
	cs.hits.Store(0)
	cs.misses.Store(0)
}

func (cs *CallSite) registry() *meta.Registry { return cs.array.rt.reg }

func (cs *CallSite) String() string {
	return fmt.Sprintf("%s[%d] %s %s", cs.array.owner, cs.index, cs.spec.Kind, cs.spec.Name)
}

func (cs *CallSite) expect(k Kind) error {
	if cs.spec.Kind != k {
		return fmt.Errorf("call site %s cannot %s", cs, k)
	}
	return nil
}

// lookup returns the cached method for the key, counting a hit or a miss.
func (cs *CallSite) lookup(epoch uint64, recv reflect.Type, sig argSig, ok bool) *meta.MetaMethod {
	if ok {
		if e := cs.entry.Load(); e != nil && e.epoch == epoch && e.recv == recv && e.args == sig {
			cs.hits.Add(1)
			return e.m
		}
	}
	cs.misses.Add(1)
	return nil
}

// fill publishes a successful resolution.
func (cs *CallSite) fill(epoch uint64, recv reflect.Type, sig argSig, m *meta.MetaMethod) {
	if cs.mega.Load() {
		return
	}
	if prev := cs.entry.Load(); prev == nil || prev.recv != recv {
		if n := cs.observed.Add(1); n > int64(cs.array.rt.threshold) {
			if !cs.mega.Swap(true) {
				log.Debugf("%s: megamorphic after %d receiver types", cs, n)
			}
			cs.entry.Store(nil)
			return
		}
	}
	cs.entry.Store(&target{epoch: epoch, recv: recv, args: sig, m: m})
}

// ---------------------------------------------------------------------------
// Method calls
// ---------------------------------------------------------------------------

// Call invokes the site's method on recv.
func (cs *CallSite) Call(recv any, args ...any) (any, error) {
	if err := cs.expect(KindCall); err != nil {
		return nil, err
	}
	return cs.call(recv, args, cs.spec.Options())
}

// CallWith invokes the method with options other than the site's own.
// Such calls bypass the cache.
func (cs *CallSite) CallWith(opts meta.Options, recv any, args ...any) (any, error) {
	if err := cs.expect(KindCall); err != nil {
		return nil, err
	}
	if opts == cs.spec.Options() {
		return cs.call(recv, args, opts)
	}
	return cs.array.rt.InvokeMethodWith(recv, cs.spec.Name, args, opts)
}

func (cs *CallSite) call(recv any, args []any, opts meta.Options) (any, error) {
	if recv == nil {
		return nil, fmt.Errorf("invoke %s: %w", cs.spec.Name, meta.ErrNilReceiver)
	}
	if _, wrapped := recv.(*meta.Wrapper); wrapped {
		return cs.array.rt.InvokeMethodWith(recv, cs.spec.Name, args, opts)
	}

	reg := cs.registry()
	epoch := reg.Epoch()
	t := reflect.TypeOf(recv)
	argTypes := reflection.TypesOf(args)
	sig, cacheable := signatureOf(argTypes)
	if m := cs.lookup(epoch, t, sig, cacheable); m != nil {
		return m.Invoke(recv, args)
	}

	if opts == (meta.Options{}) && reg.Primitives().IsStandard(t) {
		if m, ok := meta.LookupIntrinsic(t, cs.spec.Name, argTypes); ok {
			if cacheable {
				cs.fill(epoch, t, sig, m)
			}
			return m.Invoke(recv, args)
		}
	}

	mc, err := reg.GetMetaclass(t)
	if err != nil {
		return nil, err
	}
	m, err := mc.Resolve(cs.spec.Name, argTypes, opts)
	if err != nil {
		var mm *meta.MissingMethodError
		if errors.As(err, &mm) && !mm.Ambiguous() {
			// Callable properties and missing-method hooks are never cached.
			return mc.InvokeMethodWith(recv, cs.spec.Name, args, opts)
		}
		return nil, err
	}
	if cacheable {
		cs.fill(epoch, t, sig, m)
	}
	return m.Invoke(recv, args)
}

// CallSafe returns nil without dispatching when recv is nil or a nil
// pointer, map, slice, func, channel or interface.
func (cs *CallSite) CallSafe(recv any, args ...any) (any, error) {
	if IsNull(recv) {
		return nil, nil
	}
	return cs.Call(recv, args...)
}

// CallSpreadSafe calls the method on every element of the slice or array
// recv, skipping null elements, and collects the results. A null recv
// yields nil.
func (cs *CallSite) CallSpreadSafe(recv any, args ...any) ([]any, error) {
	return cs.spread(recv, func(elem any) (any, error) { return cs.CallSafe(elem, args...) })
}

func (cs *CallSite) spread(recv any, fn func(any) (any, error)) ([]any, error) {
	if IsNull(recv) {
		return nil, nil
	}
	rv := reflect.ValueOf(recv)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%s: spread over %T, want a slice or array", cs, recv)
	}
	out := make([]any, rv.Len())
	for i := range out {
		v, err := fn(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("%s: element %d: %w", cs, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// IsNull reports whether v counts as absent for safe navigation.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// ---------------------------------------------------------------------------
// Statics and constructors
// ---------------------------------------------------------------------------

// CallStatic invokes the site's static method on type t.
func (cs *CallSite) CallStatic(t reflect.Type, args ...any) (any, error) {
	if err := cs.expect(KindCallStatic); err != nil {
		return nil, err
	}
	return cs.callType(t, args, func(mc meta.Metaclass, argTypes []reflect.Type) (*meta.MetaMethod, error) {
		return mc.ResolveStatic(cs.spec.Name, argTypes)
	})
}

// CallConstructor builds a value of type t.
func (cs *CallSite) CallConstructor(t reflect.Type, args ...any) (any, error) {
	if err := cs.expect(KindCallConstructor); err != nil {
		return nil, err
	}
	return cs.callType(t, args, func(mc meta.Metaclass, argTypes []reflect.Type) (*meta.MetaMethod, error) {
		return mc.ResolveConstructor(argTypes)
	})
}

func (cs *CallSite) callType(t reflect.Type, args []any, resolve func(meta.Metaclass, []reflect.Type) (*meta.MetaMethod, error)) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("%s: nil type", cs)
	}
	reg := cs.registry()
	epoch := reg.Epoch()
	argTypes := reflection.TypesOf(args)
	sig, cacheable := signatureOf(argTypes)
	if m := cs.lookup(epoch, t, sig, cacheable); m != nil {
		return m.Invoke(nil, args)
	}
	mc, err := reg.GetMetaclass(t)
	if err != nil {
		return nil, err
	}
	m, err := resolve(mc, argTypes)
	if err != nil {
		return nil, err
	}
	if cacheable {
		cs.fill(epoch, t, sig, m)
	}
	return m.Invoke(nil, args)
}

// ---------------------------------------------------------------------------
// Properties and attributes
// ---------------------------------------------------------------------------

func (cs *CallSite) accessor(op meta.Access, recv any, valueType reflect.Type) (*meta.MetaMethod, any, error) {
	if recv == nil {
		return nil, nil, fmt.Errorf("%s %s: %w", op, cs.spec.Name, meta.ErrNilReceiver)
	}
	opts := cs.spec.Options()
	if _, wrapped := recv.(*meta.Wrapper); wrapped {
		mc, v, err := cs.array.rt.MetaclassOf(recv)
		if err != nil {
			return nil, nil, err
		}
		return mc.ResolveAccessor(op, cs.spec.Name, valueType, opts), v, nil
	}

	reg := cs.registry()
	epoch := reg.Epoch()
	t := reflect.TypeOf(recv)
	var sig argSig
	if op == meta.AccessSetProperty || op == meta.AccessSetAttribute {
		sig, _ = signatureOf([]reflect.Type{valueType})
	}
	if m := cs.lookup(epoch, t, sig, true); m != nil {
		return m, recv, nil
	}
	mc, err := reg.GetMetaclass(t)
	if err != nil {
		return nil, nil, err
	}
	m := mc.ResolveAccessor(op, cs.spec.Name, valueType, opts)
	cs.fill(epoch, t, sig, m)
	return m, recv, nil
}

// GetProperty reads the site's property from recv.
func (cs *CallSite) GetProperty(recv any) (any, error) {
	if err := cs.expect(KindGetProperty); err != nil {
		return nil, err
	}
	m, v, err := cs.accessor(meta.AccessGetProperty, recv, nil)
	if err != nil {
		return nil, err
	}
	return m.Invoke(v, nil)
}

// GetPropertySafe returns nil without dispatching when recv is null.
func (cs *CallSite) GetPropertySafe(recv any) (any, error) {
	if IsNull(recv) {
		return nil, nil
	}
	return cs.GetProperty(recv)
}

// GetPropertySpreadSafe reads the property from every non-null element of
// the slice or array recv.
func (cs *CallSite) GetPropertySpreadSafe(recv any) ([]any, error) {
	return cs.spread(recv, cs.GetPropertySafe)
}

// SetProperty writes the site's property on recv.
func (cs *CallSite) SetProperty(recv any, value any) error {
	if err := cs.expect(KindSetProperty); err != nil {
		return err
	}
	m, v, err := cs.accessor(meta.AccessSetProperty, recv, typeOf(value))
	if err != nil {
		return err
	}
	_, err = m.Invoke(v, []any{value})
	return err
}

// GetAttribute reads the site's field from recv, bypassing accessors.
func (cs *CallSite) GetAttribute(recv any) (any, error) {
	if err := cs.expect(KindGetAttribute); err != nil {
		return nil, err
	}
	m, v, err := cs.accessor(meta.AccessGetAttribute, recv, nil)
	if err != nil {
		return nil, err
	}
	return m.Invoke(v, nil)
}

// SetAttribute writes the site's field on recv, bypassing accessors.
func (cs *CallSite) SetAttribute(recv any, value any) error {
	if err := cs.expect(KindSetAttribute); err != nil {
		return err
	}
	m, v, err := cs.accessor(meta.AccessSetAttribute, recv, typeOf(value))
	if err != nil {
		return err
	}
	_, err = m.Invoke(v, []any{value})
	return err
}

func typeOf(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}
