package reflection

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mop.reflection")

// maxEmbedDepth bounds the walk through embedded fields.
const maxEmbedDepth = 16

// Cache maps native types to their member tables. Entries are computed once
// per type and never mutated afterwards; registering a constructor replaces
// the entry.
type Cache struct {
	entries sync.Map // reflect.Type -> *cacheEntry
	policy  AccessPolicy

	mu    sync.Mutex
	ctors map[reflect.Type][]reflect.Value
}

type cacheEntry struct {
	once sync.Once
	ct   *CachedType
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithAccessPolicy replaces DefaultAccessPolicy.
func WithAccessPolicy(p AccessPolicy) CacheOption {
	return func(c *Cache) { c.policy = p }
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		policy: DefaultAccessPolicy,
		ctors:  make(map[reflect.Type][]reflect.Value),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the member tables of t, building them on first use.
func (c *Cache) Get(t reflect.Type) *CachedType {
	if t == nil {
		return nil
	}
	v, ok := c.entries.Load(t)
	if !ok {
		v, _ = c.entries.LoadOrStore(t, &cacheEntry{})
	}
	e := v.(*cacheEntry)
	e.once.Do(func() { e.ct = c.build(t) })
	return e.ct
}

// RegisterConstructor adds a factory for t. fn must be a function returning
// t or (t, error).
func (c *Cache) RegisterConstructor(t reflect.Type, fn any) error {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func || fv.IsNil() {
		return fmt.Errorf("constructor for %s: %T is not a function", typeName(t), fn)
	}
	ft := fv.Type()
	switch {
	case ft.NumOut() == 1 && ft.Out(0) == t:
	case ft.NumOut() == 2 && ft.Out(0) == t && ft.Out(1) == errorType:
	default:
		return fmt.Errorf("constructor for %s: %s must return %s or (%s, error)", typeName(t), ft, t, t)
	}

	c.mu.Lock()
	c.ctors[t] = append(c.ctors[t], fv)
	c.entries.Store(t, &cacheEntry{})
	c.mu.Unlock()
	return nil
}

func (c *Cache) constructorFuncs(t reflect.Type) []reflect.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]reflect.Value(nil), c.ctors[t]...)
}

// ---------------------------------------------------------------------------
// CachedType
// ---------------------------------------------------------------------------

// CachedType is the immutable member view of one type.
type CachedType struct {
	typ     reflect.Type
	methods []*CachedMethod
	byName  map[string][]*CachedMethod
	fields  []*CachedField
	byField map[string]*CachedField
	ctors   []*CachedConstructor
	super   reflect.Type
	superAt []int
	caps    Capabilities
}

func (ct *CachedType) Type() reflect.Type                       { return ct.typ }
func (ct *CachedType) Methods() []*CachedMethod                 { return ct.methods }
func (ct *CachedType) MethodsNamed(name string) []*CachedMethod { return ct.byName[name] }
func (ct *CachedType) Fields() []*CachedField                   { return ct.fields }
func (ct *CachedType) Constructors() []*CachedConstructor       { return ct.ctors }
func (ct *CachedType) Capabilities() Capabilities               { return ct.caps }

// Field returns the field called name, or nil.
func (ct *CachedType) Field(name string) *CachedField { return ct.byField[name] }

// Super returns the type of the first embedded field, or nil.
func (ct *CachedType) Super() reflect.Type { return ct.super }

// SuperValue extracts the first embedded field from recv. When recv is a
// pointer the result addresses the field in place.
func (ct *CachedType) SuperValue(recv any) (any, error) {
	if ct.super == nil {
		return nil, fmt.Errorf("%s has no embedded type", ct.typ)
	}
	rv := reflect.ValueOf(recv)
	if !rv.IsValid() {
		return nil, ErrNilReceiver
	}
	ptr := rv.Kind() == reflect.Pointer
	if ptr {
		if rv.IsNil() {
			return nil, ErrNilReceiver
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s is not a struct", rv.Type())
	}
	idx := ct.superAt[0]
	fv := rv.Field(idx)
	if !fv.CanAddr() {
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		fv = cp.Field(idx)
	}
	fv = reflect.NewAt(fv.Type(), fv.Addr().UnsafePointer()).Elem()
	if ptr && fv.Kind() != reflect.Pointer {
		fv = fv.Addr()
	}
	return fv.Interface(), nil
}

func (c *Cache) build(t reflect.Type) *CachedType {
	ct := &CachedType{
		typ:     t,
		byName:  make(map[string][]*CachedMethod),
		byField: make(map[string]*CachedField),
		caps:    capabilitiesOf(t),
	}

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.Func.IsValid() {
			continue // interface method
		}
		cm := newCachedMethod(m.Name, m.Func, true, c.policy)
		cm.declaring, cm.depth = declaredAt(t, m.Name, 0)
		ct.methods = append(ct.methods, cm)
		ct.byName[m.Name] = append(ct.byName[m.Name], cm)
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(st) {
			if prev, ok := ct.byField[f.Name]; ok && len(prev.index) <= len(f.Index) {
				continue
			}
			ct.byField[f.Name] = &CachedField{
				name:     f.Name,
				owner:    st,
				index:    f.Index,
				typ:      f.Type,
				exported: f.IsExported(),
				policy:   c.policy,
			}
		}
		for i := 0; i < st.NumField(); i++ {
			if f := st.Field(i); f.Anonymous {
				ct.super = f.Type
				ct.superAt = f.Index
				break
			}
		}
	}
	for _, f := range ct.byField {
		ct.fields = append(ct.fields, f)
	}
	sort.Slice(ct.fields, func(i, j int) bool { return ct.fields[i].name < ct.fields[j].name })

	for _, fn := range c.constructorFuncs(t) {
		ct.ctors = append(ct.ctors, newConstructor(t, fn, c.policy))
	}
	ct.ctors = append(ct.ctors, newConstructor(t, reflect.Value{}, c.policy))

	log.Debugf("cached %s: %d methods, %d fields, %d constructors", t, len(ct.methods), len(ct.fields), len(ct.ctors))
	return ct
}

// declaredAt finds the type that declares method name, following embedded
// fields that carry a method with the same signature.
func declaredAt(t reflect.Type, name string, level int) (reflect.Type, int) {
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct || level >= maxEmbedDepth {
		return t, 0
	}
	own, ok := t.MethodByName(name)
	if !ok {
		return t, 0
	}
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.Anonymous {
			continue
		}
		for _, et := range []reflect.Type{f.Type, reflect.PointerTo(f.Type)} {
			em, ok := et.MethodByName(name)
			if ok && sameSignature(own.Type, em.Type) && generated(own.Func) {
				d, depth := declaredAt(et, name, level+1)
				return d, depth + 1
			}
		}
	}
	return t, 0
}

// generated reports whether fn is a compiler-written wrapper, which is how
// promoted methods appear in a method set.
func generated(fn reflect.Value) bool {
	pc := fn.Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return true
	}
	file, _ := f.FileLine(pc)
	return file == "<autogenerated>"
}

// sameSignature compares method func types ignoring the receiver.
func sameSignature(a, b reflect.Type) bool {
	if a.NumIn() != b.NumIn() || a.NumOut() != b.NumOut() || a.IsVariadic() != b.IsVariadic() {
		return false
	}
	for i := 1; i < a.NumIn(); i++ {
		if a.In(i) != b.In(i) {
			return false
		}
	}
	for i := 0; i < a.NumOut(); i++ {
		if a.Out(i) != b.Out(i) {
			return false
		}
	}
	return true
}
