package meta

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/mop/reflection"
)

// maxInheritDepth bounds the walk through embedded types when collecting
// inherited meta methods.
const maxInheritDepth = 16

// memoArity is the largest argument count whose selection is memoized.
const memoArity = 4

type memoKey struct {
	name string
	opts Options
	n    int
	args [memoArity]reflect.Type
}

type memoEntry struct {
	epoch uint64
	m     *MetaMethod
}

func newMemoKey(name string, args []reflect.Type, opts Options) (memoKey, bool) {
	if len(args) > memoArity {
		return memoKey{}, false
	}
	k := memoKey{name: name, opts: opts, n: len(args)}
	copy(k.args[:], args)
	return k, true
}

// core is the resolution machinery shared by the object and primitive
// variants. The lock covers the method, property and hook tables; the
// reflective view of the type never changes.
type core struct {
	reg  *Registry
	typ  reflect.Type
	ct   *reflection.CachedType
	kind Kind

	mu                 sync.RWMutex
	methods            map[string][]*MetaMethod
	statics            map[string][]*MetaMethod
	properties         map[string]*MetaBeanProperty
	methodMissing      MethodMissingFunc
	propertyMissing    PropertyMissingFunc
	propertySetMissing PropertySetMissingFunc

	modified atomic.Bool
	memo     sync.Map // memoKey -> memoEntry
}

func (c *core) init(reg *Registry, t reflect.Type, kind Kind) {
	c.reg = reg
	c.typ = t
	c.kind = kind
	c.ct = reg.cache.Get(t)
	c.methods = make(map[string][]*MetaMethod)
	c.statics = make(map[string][]*MetaMethod)
	c.properties = make(map[string]*MetaBeanProperty)
	for _, cm := range c.ct.Methods() {
		c.methods[cm.MemberName()] = append(c.methods[cm.MemberName()], fromCached(cm, OriginNative))
	}
}

func (c *core) Type() reflect.Type  { return c.typ }
func (c *core) Kind() Kind          { return c.kind }
func (c *core) Registry() *Registry { return c.reg }
func (c *core) IsModified() bool    { return c.modified.Load() }

func (c *core) GetProperty(recv any, name string) (any, error) {
	return c.GetPropertyWith(recv, name, Options{})
}

func (c *core) SetProperty(recv any, name string, value any) error {
	return c.SetPropertyWith(recv, name, value, Options{})
}

func (c *core) InvokeMethod(recv any, name string, args ...any) (any, error) {
	return c.InvokeMethodWith(recv, name, args, Options{})
}

// ---------------------------------------------------------------------------
// Method resolution
// ---------------------------------------------------------------------------

func (c *core) table(name string) []*MetaMethod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.methods[name]
}

func (c *core) missing(name string, argTypes []reflect.Type, ambiguous []*MetaMethod) *MissingMethodError {
	return &MissingMethodError{Type: c.typ, Name: name, ArgTypes: argTypes, Candidates: ambiguous}
}

func (c *core) Resolve(name string, argTypes []reflect.Type, opts Options) (*MetaMethod, error) {
	epoch := c.reg.Epoch()
	key, memoable := newMemoKey(name, argTypes, opts)
	if memoable {
		if v, ok := c.memo.Load(key); ok {
			if e := v.(memoEntry); e.epoch == epoch {
				return e.m, nil
			}
		}
	}
	m, err := c.resolve(name, argTypes, opts)
	if err != nil {
		return nil, err
	}
	if memoable {
		c.memo.Store(key, memoEntry{epoch: epoch, m: m})
	}
	return m, nil
}

func (c *core) resolve(name string, argTypes []reflect.Type, opts Options) (*MetaMethod, error) {
	if opts.UseSuper {
		return c.resolveSuper(name, argTypes, opts)
	}
	if cats := c.reg.categoryMethods(c.typ, name); len(cats) > 0 {
		m, ambiguous, ok := reflection.SelectMostSpecific(cats, argTypes)
		if ok {
			return m, nil
		}
		if len(ambiguous) > 0 {
			return nil, c.missing(name, argTypes, ambiguous)
		}
	}
	cands := slices.Concat(c.table(name), c.inherited(name))
	m, ambiguous, ok := reflection.SelectMostSpecific(cands, argTypes)
	if ok {
		return m, nil
	}
	return nil, c.missing(name, argTypes, ambiguous)
}

// superType is the metaclass type for the first embedded field, matching
// the pointer-ness of SuperValue's result for receivers of t.
func superType(t, sup reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer && sup.Kind() != reflect.Pointer {
		return reflect.PointerTo(sup)
	}
	return sup
}

func (c *core) resolveSuper(name string, argTypes []reflect.Type, opts Options) (*MetaMethod, error) {
	sup := c.ct.Super()
	if sup == nil {
		return nil, c.missing(name, argTypes, nil)
	}
	smc, err := c.reg.GetMetaclass(superType(c.typ, sup))
	if err != nil {
		return nil, err
	}
	m, err := smc.Resolve(name, argTypes, Options{FromInside: opts.FromInside})
	if err != nil {
		return nil, err
	}
	return m.via(m.depth+1, c.ct.SuperValue), nil
}

// inherited collects meta methods added to the metaclasses of embedded
// types. Native promoted methods are already in the table.
func (c *core) inherited(name string) []*MetaMethod {
	var out []*MetaMethod
	var path []func(any) (any, error)
	ct, t := c.ct, c.typ
	for depth := 1; depth <= maxInheritDepth; depth++ {
		sup := ct.Super()
		if sup == nil {
			break
		}
		path = append(path, ct.SuperValue)
		st := superType(t, sup)
		if mc, ok := c.reg.Lookup(st); ok {
			extract := chain(slices.Clone(path))
			for _, m := range mc.Methods() {
				if m.name == name && m.origin == OriginMeta {
					out = append(out, m.via(depth, extract))
				}
			}
		}
		t = st
		ct = c.reg.cache.Get(st)
	}
	return out
}

func chain(steps []func(any) (any, error)) func(any) (any, error) {
	return func(v any) (any, error) {
		for _, step := range steps {
			var err error
			if v, err = step(v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

func (c *core) InvokeMethodWith(recv any, name string, args []any, opts Options) (any, error) {
	if recv == nil {
		return nil, fmt.Errorf("invoke %s: %w", name, ErrNilReceiver)
	}
	m, err := c.Resolve(name, reflection.TypesOf(args), opts)
	if err == nil {
		return m.Invoke(recv, args)
	}
	var mm *MissingMethodError
	if !errors.As(err, &mm) || mm.Ambiguous() {
		return nil, err
	}
	if !opts.UseSuper {
		if fn, ok := c.callableProperty(recv, name, opts); ok {
			return callValue(name, fn, args)
		}
	}

	c.mu.RLock()
	hook := c.methodMissing
	c.mu.RUnlock()
	if hook != nil {
		return hook(recv, name, args)
	}
	if c.ct.Capabilities().MethodMissing {
		if h, ok := recv.(MethodMissing); ok {
			return h.MethodMissing(name, args)
		}
	}
	return nil, err
}

// callableProperty finds a property holding a func.
func (c *core) callableProperty(recv any, name string, opts Options) (any, bool) {
	v, found, err := c.lookupProperty(recv, name, opts)
	if err != nil || !found || v == nil {
		return nil, false
	}
	if rv := reflect.ValueOf(v); rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, false
	}
	return v, true
}

func callValue(name string, fn any, args []any) (any, error) {
	cm, err := reflection.MethodOf(name, fn, false)
	if err != nil {
		return nil, err
	}
	return cm.InvokeFrom(reflection.CallerRuntime, nil, args)
}

func (c *core) ResolveStatic(name string, argTypes []reflect.Type) (*MetaMethod, error) {
	c.mu.RLock()
	cands := c.statics[name]
	c.mu.RUnlock()
	m, ambiguous, ok := reflection.SelectMostSpecific(cands, argTypes)
	if ok {
		return m, nil
	}
	return nil, &MissingMethodError{Type: c.typ, Name: name, ArgTypes: argTypes, Static: true, Candidates: ambiguous}
}

func (c *core) InvokeStaticMethod(name string, args ...any) (any, error) {
	m, err := c.ResolveStatic(name, reflection.TypesOf(args))
	if err != nil {
		return nil, err
	}
	return m.Invoke(nil, args)
}

// ResolveConstructor considers registered constructors, the zero-value
// constructor and static meta methods named "new". A meta constructor
// replaces a native one with the same parameters.
func (c *core) ResolveConstructor(argTypes []reflect.Type) (*MetaMethod, error) {
	c.mu.RLock()
	cands := slices.Clone(c.statics["new"])
	c.mu.RUnlock()
	for _, cc := range c.reg.cache.Get(c.typ).Constructors() {
		m := fromConstructor(c.typ, cc)
		if !slices.ContainsFunc(cands, m.sameSignature) {
			cands = append(cands, m)
		}
	}
	m, ambiguous, ok := reflection.SelectMostSpecific(cands, argTypes)
	if ok {
		return m, nil
	}
	return nil, &MissingMethodError{Type: c.typ, Name: "new", ArgTypes: argTypes, Static: true, Candidates: ambiguous}
}

func (c *core) InvokeConstructor(args ...any) (any, error) {
	m, err := c.ResolveConstructor(reflection.TypesOf(args))
	if err != nil {
		return nil, err
	}
	return m.Invoke(nil, args)
}

// ---------------------------------------------------------------------------
// Properties and attributes
// ---------------------------------------------------------------------------

func (c *core) property(name string) *MetaBeanProperty {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.properties[name]
}

func (c *core) getter(name string) *MetaMethod {
	for _, g := range reflection.GetterNames(name) {
		m, err := c.Resolve(g, nil, Options{})
		if err != nil {
			continue
		}
		// IsX reads only boolean properties.
		if strings.HasPrefix(g, "Is") && !m.returnsBool() {
			continue
		}
		return m
	}
	return nil
}

func (c *core) setter(name string, valueType reflect.Type) *MetaMethod {
	m, err := c.Resolve(reflection.SetterName(name), []reflect.Type{valueType}, Options{})
	if err != nil {
		return nil
	}
	return m
}

// anySetter returns some one-argument setter for name, for introspection.
func (c *core) anySetter(name string) *MetaMethod {
	for _, m := range c.table(reflection.SetterName(name)) {
		if len(m.params) == 1 && !m.variadic {
			return m
		}
	}
	return nil
}

func (c *core) field(name string, opts Options) *reflection.CachedField {
	for _, n := range []string{reflection.ExportedName(name), name} {
		if f := c.ct.Field(n); f != nil && (f.Exported() || opts.FromInside) {
			return f
		}
	}
	return nil
}

// attribute finds a field regardless of visibility; access is checked when
// the field is used.
func (c *core) attribute(name string) *reflection.CachedField {
	if f := c.ct.Field(name); f != nil {
		return f
	}
	return c.ct.Field(reflection.ExportedName(name))
}

// lookupProperty runs the property order up to, not including, the missing
// property hooks.
func (c *core) lookupProperty(recv any, name string, opts Options) (any, bool, error) {
	if p := c.property(name); p != nil {
		if p.getter == nil {
			return nil, true, &MissingPropertyError{Type: c.typ, Name: name, WriteOnly: true}
		}
		v, err := p.getter.Invoke(recv, nil)
		return v, true, err
	}
	if m := c.getter(name); m != nil {
		v, err := m.Invoke(recv, nil)
		return v, true, err
	}
	if f := c.field(name, opts); f != nil {
		v, err := f.Get(recv, opts.FromInside)
		return v, true, err
	}
	if v, ok := mapGet(recv, name); ok {
		return v, true, nil
	}
	return nil, false, nil
}

func (c *core) viaSuper(recv any, missing error, fn func(Metaclass, any) (any, error)) (any, error) {
	if c.ct.Super() == nil {
		return nil, missing
	}
	sv, err := c.ct.SuperValue(recv)
	if err != nil {
		return nil, err
	}
	smc, err := c.reg.GetMetaclass(reflect.TypeOf(sv))
	if err != nil {
		return nil, err
	}
	return fn(smc, sv)
}

func (c *core) GetPropertyWith(recv any, name string, opts Options) (any, error) {
	if recv == nil {
		return nil, fmt.Errorf("get property %s: %w", name, ErrNilReceiver)
	}
	if opts.UseSuper {
		return c.viaSuper(recv, &MissingPropertyError{Type: c.typ, Name: name}, func(smc Metaclass, sv any) (any, error) {
			return smc.GetPropertyWith(sv, name, Options{FromInside: opts.FromInside})
		})
	}
	v, found, err := c.lookupProperty(recv, name, opts)
	if found {
		return v, err
	}

	c.mu.RLock()
	hook := c.propertyMissing
	c.mu.RUnlock()
	if hook != nil {
		return hook(recv, name)
	}
	if c.ct.Capabilities().PropertyMissing {
		if h, ok := recv.(PropertyMissing); ok {
			return h.PropertyMissing(name)
		}
	}
	return nil, &MissingPropertyError{Type: c.typ, Name: name}
}

func (c *core) SetPropertyWith(recv any, name string, value any, opts Options) error {
	if recv == nil {
		return fmt.Errorf("set property %s: %w", name, ErrNilReceiver)
	}
	if opts.UseSuper {
		_, err := c.viaSuper(recv, &MissingPropertyError{Type: c.typ, Name: name}, func(smc Metaclass, sv any) (any, error) {
			return nil, smc.SetPropertyWith(sv, name, value, Options{FromInside: opts.FromInside})
		})
		return err
	}
	if p := c.property(name); p != nil {
		if p.setter == nil {
			return &MissingPropertyError{Type: c.typ, Name: name, ReadOnly: true}
		}
		_, err := p.setter.Invoke(recv, []any{value})
		return err
	}
	if m := c.setter(name, typeOf(value)); m != nil {
		_, err := m.Invoke(recv, []any{value})
		return err
	}
	if f := c.field(name, opts); f != nil {
		return f.Set(recv, value, opts.FromInside)
	}
	if ok, err := mapSet(recv, name, value); ok {
		return err
	}

	c.mu.RLock()
	hook := c.propertySetMissing
	c.mu.RUnlock()
	if hook != nil {
		return hook(recv, name, value)
	}
	if c.ct.Capabilities().PropertySetMissing {
		if h, ok := recv.(PropertySetMissing); ok {
			return h.PropertySetMissing(name, value)
		}
	}
	if c.getter(name) != nil {
		return &MissingPropertyError{Type: c.typ, Name: name, ReadOnly: true}
	}
	return &MissingPropertyError{Type: c.typ, Name: name}
}

func (c *core) GetAttribute(recv any, name string, opts Options) (any, error) {
	if recv == nil {
		return nil, fmt.Errorf("get attribute %s: %w", name, ErrNilReceiver)
	}
	if opts.UseSuper {
		return c.viaSuper(recv, &MissingPropertyError{Type: c.typ, Name: name}, func(smc Metaclass, sv any) (any, error) {
			return smc.GetAttribute(sv, name, Options{FromInside: opts.FromInside})
		})
	}
	if f := c.attribute(name); f != nil {
		return f.Get(recv, opts.FromInside)
	}
	if v, ok := mapGet(recv, name); ok {
		return v, nil
	}
	return nil, &MissingPropertyError{Type: c.typ, Name: name}
}

func (c *core) SetAttribute(recv any, name string, value any, opts Options) error {
	if recv == nil {
		return fmt.Errorf("set attribute %s: %w", name, ErrNilReceiver)
	}
	if opts.UseSuper {
		_, err := c.viaSuper(recv, &MissingPropertyError{Type: c.typ, Name: name}, func(smc Metaclass, sv any) (any, error) {
			return nil, smc.SetAttribute(sv, name, value, Options{FromInside: opts.FromInside})
		})
		return err
	}
	if f := c.attribute(name); f != nil {
		return f.Set(recv, value, opts.FromInside)
	}
	if ok, err := mapSet(recv, name, value); ok {
		return err
	}
	return &MissingPropertyError{Type: c.typ, Name: name}
}

func (c *core) ResolveAccessor(op Access, name string, valueType reflect.Type, opts Options) *MetaMethod {
	if !opts.UseSuper {
		switch op {
		case AccessGetProperty:
			if p := c.property(name); p != nil {
				if p.getter != nil {
					return p.getter
				}
				break
			}
			if m := c.getter(name); m != nil {
				return m
			}
			if f := c.field(name, opts); f != nil {
				return fieldGetter(c.typ, f, opts.FromInside)
			}
		case AccessSetProperty:
			if p := c.property(name); p != nil {
				if p.setter != nil {
					return p.setter
				}
				break
			}
			if m := c.setter(name, valueType); m != nil {
				return m
			}
			if f := c.field(name, opts); f != nil {
				return fieldSetter(c.typ, f, opts.FromInside)
			}
		case AccessGetAttribute:
			if f := c.attribute(name); f != nil {
				return fieldGetter(c.typ, f, opts.FromInside)
			}
		case AccessSetAttribute:
			if f := c.attribute(name); f != nil {
				return fieldSetter(c.typ, f, opts.FromInside)
			}
		}
	}
	return genericAccessor(c, op, name, opts)
}

// genericAccessor performs the full lookup on every call.
func genericAccessor(mc Metaclass, op Access, name string, opts Options) *MetaMethod {
	var fn InvokeFunc
	switch op {
	case AccessGetProperty:
		fn = func(recv any, _ []any) (any, error) { return mc.GetPropertyWith(recv, name, opts) }
	case AccessSetProperty:
		fn = func(recv any, args []any) (any, error) {
			return nil, mc.SetPropertyWith(recv, name, firstArg(args), opts)
		}
	case AccessGetAttribute:
		fn = func(recv any, _ []any) (any, error) { return mc.GetAttribute(recv, name, opts) }
	default:
		fn = func(recv any, args []any) (any, error) {
			return nil, mc.SetAttribute(recv, name, firstArg(args), opts)
		}
	}
	return synthetic(name, mc.Type(), fn)
}

func fieldGetter(t reflect.Type, f *reflection.CachedField, inside bool) *MetaMethod {
	return synthetic(f.MemberName(), t, func(recv any, _ []any) (any, error) {
		return f.Get(recv, inside)
	})
}

func fieldSetter(t reflect.Type, f *reflection.CachedField, inside bool) *MetaMethod {
	m := synthetic(f.MemberName(), t, func(recv any, args []any) (any, error) {
		return nil, f.Set(recv, firstArg(args), inside)
	})
	m.params = []reflect.Type{f.Type()}
	return m
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func typeOf(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}

// ---------------------------------------------------------------------------
// Map receivers
// ---------------------------------------------------------------------------

func stringKeyedMap(recv any) (reflect.Value, bool) {
	rv := reflect.ValueOf(recv)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return rv, false
	}
	return rv, true
}

// mapGet reads key name. A missing key reads as nil.
func mapGet(recv any, name string) (any, bool) {
	rv, ok := stringKeyedMap(recv)
	if !ok {
		return nil, false
	}
	v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, true
	}
	return v.Interface(), true
}

func mapHas(recv any, name string) bool {
	rv, ok := stringKeyedMap(recv)
	return ok && rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())).IsValid()
}

func mapSet(recv any, name string, value any) (bool, error) {
	rv, ok := stringKeyedMap(recv)
	if !ok {
		return false, nil
	}
	if rv.IsNil() {
		return true, fmt.Errorf("set %s: assignment to nil map", name)
	}
	v, err := reflection.Coerce(value, rv.Type().Elem())
	if err != nil {
		return true, err
	}
	rv.SetMapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()), v)
	return true, nil
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func (c *core) RespondsTo(recv any, name string, argTypes ...reflect.Type) []*MetaMethod {
	cands := slices.Concat(c.reg.categoryMethods(c.typ, name), c.table(name), c.inherited(name))
	if len(argTypes) == 0 {
		return cands
	}
	var out []*MetaMethod
	for _, m := range cands {
		if reflection.ApplicableTo(m, argTypes) {
			out = append(out, m)
		}
	}
	return out
}

func (c *core) HasProperty(recv any, name string) *MetaBeanProperty {
	if p := c.property(name); p != nil {
		return p
	}
	var typ reflect.Type
	f := c.field(name, Options{})
	if f != nil {
		typ = f.Type()
	}
	getter, setter := c.getter(name), c.anySetter(name)
	if getter != nil || setter != nil {
		if typ == nil && setter != nil {
			typ = setter.params[0]
		}
		return NewMetaBeanProperty(name, typ, getter, setter)
	}
	if f != nil {
		return NewMetaBeanProperty(name, typ, fieldGetter(c.typ, f, false), fieldSetter(c.typ, f, false))
	}
	if mapHas(recv, name) {
		return NewMetaBeanProperty(name, reflect.TypeOf(recv).Elem(),
			genericAccessor(c, AccessGetProperty, name, Options{}),
			genericAccessor(c, AccessSetProperty, name, Options{}))
	}
	return nil
}

func (c *core) Methods() []*MetaMethod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return flatten(c.methods)
}

func (c *core) StaticMethods() []*MetaMethod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return flatten(c.statics)
}

func flatten(table map[string][]*MetaMethod) []*MetaMethod {
	var out []*MetaMethod
	for _, ms := range table {
		out = append(out, ms...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return len(out[i].params) < len(out[j].params)
	})
	return out
}

func (c *core) Properties() []*MetaBeanProperty {
	seen := make(map[string]*MetaBeanProperty)
	c.mu.RLock()
	for name, p := range c.properties {
		seen[name] = p
	}
	var accessors []string
	for name, ms := range c.methods {
		if prop := reflection.PropertyName(name); prop != "" {
			for _, m := range ms {
				getter := len(m.params) == 0 && (!strings.HasPrefix(name, "Is") || m.returnsBool())
				if getter || (len(m.params) == 1 && strings.HasPrefix(name, "Set")) {
					accessors = append(accessors, prop)
					break
				}
			}
		}
	}
	c.mu.RUnlock()

	for _, prop := range accessors {
		if _, ok := seen[prop]; !ok {
			if p := c.HasProperty(nil, prop); p != nil {
				seen[prop] = p
			}
		}
	}
	for _, f := range c.ct.Fields() {
		if !f.Exported() {
			continue
		}
		prop := reflection.PropertyName("Get" + f.MemberName())
		if _, ok := seen[prop]; ok {
			continue
		}
		seen[prop] = NewMetaBeanProperty(prop, f.Type(), fieldGetter(c.typ, f, false), fieldSetter(c.typ, f, false))
	}

	out := make([]*MetaBeanProperty, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ---------------------------------------------------------------------------
// Mutation
// ---------------------------------------------------------------------------

// changed records a mutation: the metaclass is modified, its memo is
// dropped and every call site cache in the registry goes stale.
func (c *core) changed(reason string) {
	c.modified.Store(true)
	c.memo.Clear()
	c.reg.metaclassChanged(c.typ, reason)
}

func validMethod(m *MetaMethod) error {
	if m == nil {
		return fmt.Errorf("nil meta method")
	}
	if m.name == "" {
		return fmt.Errorf("meta method has no name")
	}
	if m.invoke == nil {
		return fmt.Errorf("meta method %s has no body", m.name)
	}
	return nil
}

// replaceOrAppend returns a new slice in which m takes the place of any
// method with the same signature.
func replaceOrAppend(list []*MetaMethod, m *MetaMethod) []*MetaMethod {
	out := make([]*MetaMethod, 0, len(list)+1)
	replaced := false
	for _, e := range list {
		if e.sameSignature(m) {
			if !replaced {
				out = append(out, m)
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, m)
	}
	return out
}

func (c *core) AddMetaMethod(m *MetaMethod) error {
	if err := validMethod(m); err != nil {
		return err
	}
	m = m.clone()
	m.origin = OriginMeta
	m.static = false
	m.depth = 0
	if m.declaring == nil {
		m.declaring = c.typ
	}
	c.mu.Lock()
	c.methods[m.name] = replaceOrAppend(c.methods[m.name], m)
	c.mu.Unlock()
	c.changed("meta method " + m.name)
	return nil
}

func (c *core) AddStaticMethod(m *MetaMethod) error {
	if err := validMethod(m); err != nil {
		return err
	}
	m = m.clone()
	m.origin = OriginMeta
	m.static = true
	if m.declaring == nil {
		m.declaring = c.typ
	}
	c.mu.Lock()
	c.statics[m.name] = replaceOrAppend(c.statics[m.name], m)
	c.mu.Unlock()
	c.changed("static method " + m.name)
	return nil
}

func (c *core) AddMetaBeanProperty(p *MetaBeanProperty) error {
	if p == nil || p.name == "" {
		return fmt.Errorf("invalid property")
	}
	if p.getter == nil && p.setter == nil {
		return fmt.Errorf("property %s has no accessors", p.name)
	}
	c.mu.Lock()
	c.properties[p.name] = p
	c.mu.Unlock()
	c.changed("property " + p.name)
	return nil
}

func (c *core) SetMethodMissing(h MethodMissingFunc) {
	c.mu.Lock()
	c.methodMissing = h
	c.mu.Unlock()
	c.changed("method missing hook")
}

func (c *core) SetPropertyMissing(get PropertyMissingFunc, set PropertySetMissingFunc) {
	c.mu.Lock()
	c.propertyMissing = get
	c.propertySetMissing = set
	c.mu.Unlock()
	c.changed("property missing hooks")
}

// ---------------------------------------------------------------------------
// ObjectMetaclass
// ---------------------------------------------------------------------------

// ObjectMetaclass is the default metaclass for struct, pointer and other
// composite types.
type ObjectMetaclass struct {
	core
}

var _ Metaclass = (*ObjectMetaclass)(nil)

// NewObjectMetaclass builds the reflective metaclass of t.
func NewObjectMetaclass(reg *Registry, t reflect.Type) *ObjectMetaclass {
	mc := &ObjectMetaclass{}
	mc.init(reg, t, KindObject)
	return mc
}
