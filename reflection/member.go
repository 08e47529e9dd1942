package reflection

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// Caller identifies who is invoking a member. Panics carrying runtime or
// dispatch errors surface unwrapped only for the dispatch runtime itself.
type Caller uint8

const (
	CallerExternal Caller = iota
	CallerRuntime
)

var errorType = reflect.TypeFor[error]()

// accessGate memoizes one access decision.
type accessGate struct {
	once sync.Once
	err  error
}

func (g *accessGate) check(policy AccessPolicy, m Member) error {
	g.once.Do(func() {
		if policy != nil {
			g.err = policy(m)
		}
	})
	return g.err
}

// resultShape describes how a func's results map onto (any, error).
type resultShape struct {
	values  int
	errLast bool
}

func shapeOf(ft reflect.Type) resultShape {
	n := ft.NumOut()
	if n > 0 && ft.Out(n-1) == errorType {
		return resultShape{values: n - 1, errLast: true}
	}
	return resultShape{values: n}
}

func (s resultShape) collect(member string, out []reflect.Value) (any, error) {
	if s.errLast {
		last := out[len(out)-1]
		if !last.IsNil() {
			return nil, wrapResult(member, last.Interface().(error))
		}
		out = out[:len(out)-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	vals := make([]any, len(out))
	for i, v := range out {
		vals[i] = v.Interface()
	}
	return vals, nil
}

func call(member string, fn reflect.Value, in []reflect.Value, sliced bool, shape resultShape, caller Caller) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, wrapPanic(member, r, caller)
		}
	}()
	var out []reflect.Value
	if sliced {
		out = fn.CallSlice(in)
	} else {
		out = fn.Call(in)
	}
	return shape.collect(member, out)
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// CachedMethod is a callable method or receiver-first function.
type CachedMethod struct {
	name      string
	declaring reflect.Type
	recv      reflect.Type // nil for functions without a receiver
	depth     int
	params    []reflect.Type
	variadic  bool
	fn        reflect.Value
	shape     resultShape
	exported  bool
	policy    AccessPolicy
	gate      accessGate
}

func newCachedMethod(name string, fn reflect.Value, hasRecv bool, policy AccessPolicy) *CachedMethod {
	ft := fn.Type()
	m := &CachedMethod{
		name:     name,
		fn:       fn,
		variadic: ft.IsVariadic(),
		shape:    shapeOf(ft),
		exported: IsExportedName(name),
		policy:   policy,
	}
	start := 0
	if hasRecv {
		m.recv = ft.In(0)
		m.declaring = m.recv
		start = 1
	}
	for i := start; i < ft.NumIn(); i++ {
		m.params = append(m.params, ft.In(i))
	}
	return m
}

// ResultType is the type of the single non-error result, or nil when the
// method returns no value or several.
func (m *CachedMethod) ResultType() reflect.Type {
	if m.shape.values != 1 {
		return nil
	}
	return m.fn.Type().Out(0)
}

// MethodOf adapts a plain function. When withReceiver is set the first
// parameter receives the dispatch receiver.
func MethodOf(name string, fn any, withReceiver bool) (*CachedMethod, error) {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, fmt.Errorf("method %s: %T is not a function", name, fn)
	}
	if withReceiver && fv.Type().NumIn() == 0 {
		return nil, fmt.Errorf("method %s: function takes no receiver parameter", name)
	}
	m := newCachedMethod(name, fv, withReceiver, AllowAll)
	m.exported = true
	return m, nil
}

func (m *CachedMethod) MemberName() string          { return m.name }
func (m *CachedMethod) MemberKind() MemberKind      { return KindMethod }
func (m *CachedMethod) DeclaringType() reflect.Type { return m.declaring }
func (m *CachedMethod) Exported() bool              { return m.exported }
func (m *CachedMethod) ParamTypes() []reflect.Type  { return m.params }
func (m *CachedMethod) IsVariadic() bool            { return m.variadic }
func (m *CachedMethod) Depth() int                  { return m.depth }

// ReceiverType is the type the receiver is converted to, or nil.
func (m *CachedMethod) ReceiverType() reflect.Type { return m.recv }

// Invoke calls the method on recv.
func (m *CachedMethod) Invoke(recv any, args []any) (any, error) {
	return m.InvokeFrom(CallerExternal, recv, args)
}

// InvokeFrom calls the method on behalf of caller.
func (m *CachedMethod) InvokeFrom(caller Caller, recv any, args []any) (any, error) {
	if err := m.gate.check(m.policy, m); err != nil {
		return nil, err
	}
	in, sliced, err := CoerceArgs(m.name, m.params, m.variadic, args)
	if err != nil {
		return nil, err
	}
	if m.recv != nil {
		rv, err := receiverValue(m.name, recv, m.recv)
		if err != nil {
			return nil, err
		}
		in = append([]reflect.Value{rv}, in...)
	}
	return call(m.name, m.fn, in, sliced, m.shape, caller)
}

func receiverValue(member string, recv any, want reflect.Type) (reflect.Value, error) {
	if recv == nil {
		if Nilable(want) {
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("%s: %w", member, ErrNilReceiver)
	}
	rv := reflect.ValueOf(recv)
	if rv.Type().AssignableTo(want) {
		return rv, nil
	}
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(want) {
		return rv.Elem(), nil
	}
	if want.Kind() == reflect.Pointer && rv.Type() == want.Elem() {
		p := reflect.New(want.Elem())
		p.Elem().Set(rv)
		return p, nil
	}
	return reflect.Value{}, &ArgumentCoercionError{Member: member, Position: -1, From: rv.Type(), To: want}
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// CachedField is a struct field reachable from the cached type, including
// promoted fields.
type CachedField struct {
	name     string
	owner    reflect.Type // struct type holding the index path
	index    []int
	typ      reflect.Type
	exported bool
	policy   AccessPolicy
	gate     accessGate
}

func (f *CachedField) MemberName() string          { return f.name }
func (f *CachedField) MemberKind() MemberKind      { return KindField }
func (f *CachedField) DeclaringType() reflect.Type { return f.owner }
func (f *CachedField) Exported() bool              { return f.exported }

// Type is the field's declared type.
func (f *CachedField) Type() reflect.Type { return f.typ }

// Get reads the field. inside permits unexported fields regardless of the
// access policy.
func (f *CachedField) Get(recv any, inside bool) (any, error) {
	if !inside {
		if err := f.gate.check(f.policy, f); err != nil {
			return nil, err
		}
	}
	sv, err := f.structValue(recv)
	if err != nil {
		return nil, err
	}
	fv, err := sv.FieldByIndexErr(f.index)
	if err != nil {
		return nil, &InvocationError{Member: f.name, Cause: err}
	}
	if !fv.CanInterface() {
		if !inside {
			return nil, &AccessError{Type: f.owner, Member: f.name, Reason: "unexported field"}
		}
		if !fv.CanAddr() {
			cp := reflect.New(sv.Type()).Elem()
			cp.Set(sv)
			fv = cp.FieldByIndex(f.index)
		}
		fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
	}
	return fv.Interface(), nil
}

// Set writes the field. The receiver must be a pointer.
func (f *CachedField) Set(recv any, v any, inside bool) error {
	if !inside {
		if err := f.gate.check(f.policy, f); err != nil {
			return err
		}
	}
	if recv != nil && reflect.TypeOf(recv).Kind() != reflect.Pointer {
		return &AccessError{Type: f.owner, Member: f.name, Reason: "receiver is not addressable"}
	}
	sv, err := f.structValue(recv)
	if err != nil {
		return err
	}
	fv, err := sv.FieldByIndexErr(f.index)
	if err != nil {
		return &InvocationError{Member: f.name, Cause: err}
	}
	val, err := Coerce(v, f.typ)
	if err != nil {
		return positioned(err, f.name, 0)
	}
	if !fv.CanSet() {
		if !inside || !fv.CanAddr() {
			return &AccessError{Type: f.owner, Member: f.name, Reason: "field is not settable"}
		}
		fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
	}
	fv.Set(val)
	return nil
}

func (f *CachedField) structValue(recv any) (reflect.Value, error) {
	rv := reflect.ValueOf(recv)
	if !rv.IsValid() {
		return rv, fmt.Errorf("field %s: %w", f.name, ErrNilReceiver)
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return rv, fmt.Errorf("field %s: %w", f.name, ErrNilReceiver)
		}
		rv = rv.Elem()
	}
	if rv.Type() != f.owner {
		return rv, &ArgumentCoercionError{Member: f.name, Position: -1, From: rv.Type(), To: f.owner}
	}
	return rv, nil
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// CachedConstructor builds values of one type. A constructor without a
// function is the implicit zero-value constructor.
type CachedConstructor struct {
	typ      reflect.Type
	params   []reflect.Type
	variadic bool
	fn       reflect.Value
	shape    resultShape
	policy   AccessPolicy
	gate     accessGate
}

func newConstructor(t reflect.Type, fn reflect.Value, policy AccessPolicy) *CachedConstructor {
	c := &CachedConstructor{typ: t, fn: fn, policy: policy}
	if fn.IsValid() {
		ft := fn.Type()
		c.variadic = ft.IsVariadic()
		c.shape = shapeOf(ft)
		for i := 0; i < ft.NumIn(); i++ {
			c.params = append(c.params, ft.In(i))
		}
	}
	return c
}

func (c *CachedConstructor) MemberName() string          { return "new " + typeName(c.typ) }
func (c *CachedConstructor) MemberKind() MemberKind      { return KindConstructor }
func (c *CachedConstructor) DeclaringType() reflect.Type { return c.typ }
func (c *CachedConstructor) Exported() bool              { return true }
func (c *CachedConstructor) ParamTypes() []reflect.Type  { return c.params }
func (c *CachedConstructor) IsVariadic() bool            { return c.variadic }
func (c *CachedConstructor) Depth() int                  { return 0 }

// IsImplicit reports whether this is the zero-value constructor.
func (c *CachedConstructor) IsImplicit() bool { return !c.fn.IsValid() }

// Invoke builds a new value.
func (c *CachedConstructor) Invoke(args []any) (any, error) {
	return c.InvokeFrom(CallerExternal, args)
}

// InvokeFrom builds a new value on behalf of caller.
func (c *CachedConstructor) InvokeFrom(caller Caller, args []any) (any, error) {
	if err := c.gate.check(c.policy, c); err != nil {
		return nil, err
	}
	if c.typ.Kind() == reflect.Interface {
		return nil, &InvocationError{Member: c.MemberName(), Cause: fmt.Errorf("cannot instantiate interface type %s", c.typ)}
	}
	if !c.fn.IsValid() {
		if len(args) != 0 {
			return nil, &ArgumentCoercionError{Member: c.MemberName(), Position: 0, Reason: "zero-value constructor takes no arguments"}
		}
		return zeroValue(c.typ), nil
	}
	in, sliced, err := CoerceArgs(c.MemberName(), c.params, c.variadic, args)
	if err != nil {
		return nil, err
	}
	return call(c.MemberName(), c.fn, in, sliced, c.shape, caller)
}

func zeroValue(t reflect.Type) any {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.New(t).Elem().Interface()
}
