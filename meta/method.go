package meta

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/chazu/mop/reflection"
)

// Origin tells where a MetaMethod came from.
type Origin uint8

const (
	OriginNative    Origin = iota // method of the Go type
	OriginMeta                    // added at runtime
	OriginCategory                // contributed by an active category
	OriginIntrinsic               // built-in operator on a basic type
	OriginSynthetic               // handle produced by the runtime itself
)

func (o Origin) String() string {
	switch o {
	case OriginNative:
		return "native"
	case OriginMeta:
		return "meta"
	case OriginCategory:
		return "category"
	case OriginIntrinsic:
		return "intrinsic"
	case OriginSynthetic:
		return "synthetic"
	}
	return "unknown"
}

// InvokeFunc is the body of a MetaMethod.
type InvokeFunc func(recv any, args []any) (any, error)

// MetaMethod is a resolved, callable method handle.
type MetaMethod struct {
	name      string
	declaring reflect.Type
	params    []reflect.Type
	result    reflect.Type // nil when unknown
	variadic  bool
	static    bool
	origin    Origin
	depth     int
	coerce    bool
	invoke    InvokeFunc
}

// NewMetaMethod wraps fn. Arguments are coerced to params before fn runs.
func NewMetaMethod(name string, params []reflect.Type, fn InvokeFunc) *MetaMethod {
	return &MetaMethod{
		name:   name,
		params: params,
		origin: OriginMeta,
		coerce: true,
		invoke: fn,
	}
}

// MethodFunc adapts a Go function whose first parameter is the receiver.
func MethodFunc(name string, fn any) (*MetaMethod, error) {
	cm, err := reflection.MethodOf(name, fn, true)
	if err != nil {
		return nil, err
	}
	m := fromCached(cm, OriginMeta)
	return m, nil
}

// MustMethodFunc is MethodFunc that panics on error.
func MustMethodFunc(name string, fn any) *MetaMethod {
	m, err := MethodFunc(name, fn)
	if err != nil {
		panic(err)
	}
	return m
}

// StaticFunc adapts a Go function as a static method.
func StaticFunc(name string, fn any) (*MetaMethod, error) {
	cm, err := reflection.MethodOf(name, fn, false)
	if err != nil {
		return nil, err
	}
	m := fromCached(cm, OriginMeta)
	m.static = true
	return m, nil
}

func fromCached(cm *reflection.CachedMethod, origin Origin) *MetaMethod {
	return &MetaMethod{
		name:      cm.MemberName(),
		declaring: cm.DeclaringType(),
		params:    cm.ParamTypes(),
		result:    cm.ResultType(),
		variadic:  cm.IsVariadic(),
		origin:    origin,
		depth:     cm.Depth(),
		invoke: func(recv any, args []any) (any, error) {
			return cm.InvokeFrom(reflection.CallerRuntime, recv, args)
		},
	}
}

func fromConstructor(t reflect.Type, cc *reflection.CachedConstructor) *MetaMethod {
	return &MetaMethod{
		name:      "new",
		declaring: t,
		params:    cc.ParamTypes(),
		variadic:  cc.IsVariadic(),
		static:    true,
		origin:    OriginNative,
		invoke: func(_ any, args []any) (any, error) {
			return cc.InvokeFrom(reflection.CallerRuntime, args)
		},
	}
}

func synthetic(name string, declaring reflect.Type, fn InvokeFunc) *MetaMethod {
	return &MetaMethod{name: name, declaring: declaring, origin: OriginSynthetic, invoke: fn}
}

func (m *MetaMethod) Name() string                { return m.name }
func (m *MetaMethod) DeclaringType() reflect.Type { return m.declaring }
func (m *MetaMethod) ParamTypes() []reflect.Type  { return m.params }
func (m *MetaMethod) ResultType() reflect.Type    { return m.result }
func (m *MetaMethod) IsVariadic() bool            { return m.variadic }
func (m *MetaMethod) IsStatic() bool              { return m.static }
func (m *MetaMethod) Origin() Origin              { return m.origin }
func (m *MetaMethod) Depth() int                  { return m.depth }

// Invoke calls the method on recv. Static methods ignore recv.
func (m *MetaMethod) Invoke(recv any, args []any) (any, error) {
	if !m.coerce {
		return m.invoke(recv, args)
	}
	in, err := coerceArgs(m.name, m.params, m.variadic, args)
	if err != nil {
		return nil, err
	}
	return reflection.Guard(m.name, reflection.CallerRuntime, func() (any, error) {
		return m.invoke(recv, in)
	})
}

// returnsBool reports whether m is known to return a bool.
func (m *MetaMethod) returnsBool() bool {
	return m.result != nil && m.result.Kind() == reflect.Bool
}

func (m *MetaMethod) String() string {
	return fmt.Sprintf("%s %s.%s(%s)", m.origin, typeString(m.declaring), m.name, typeList(m.params))
}

// sameSignature reports whether two methods would be indistinguishable to
// overload selection.
func (m *MetaMethod) sameSignature(o *MetaMethod) bool {
	return m.variadic == o.variadic && slices.Equal(m.params, o.params)
}

func (m *MetaMethod) clone() *MetaMethod {
	c := *m
	return &c
}

func (m *MetaMethod) withDepth(d int) *MetaMethod {
	c := m.clone()
	c.depth = d
	return c
}

// via returns a copy that first maps the receiver through extract.
func (m *MetaMethod) via(depth int, extract func(any) (any, error)) *MetaMethod {
	c := m.withDepth(depth)
	inner := m
	c.coerce = false
	c.invoke = func(recv any, args []any) (any, error) {
		r, err := extract(recv)
		if err != nil {
			return nil, err
		}
		return inner.Invoke(r, args)
	}
	return c
}

func coerceArgs(member string, params []reflect.Type, variadic bool, args []any) ([]any, error) {
	if params == nil && !variadic {
		return args, nil
	}
	in, sliced, err := reflection.CoerceArgs(member, params, variadic, args)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(in))
	for i, v := range in {
		if sliced && i == len(in)-1 {
			for j := 0; j < v.Len(); j++ {
				out = append(out, v.Index(j).Interface())
			}
			continue
		}
		out = append(out, v.Interface())
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

// MetaBeanProperty is a property defined by a getter and an optional setter.
type MetaBeanProperty struct {
	name   string
	typ    reflect.Type
	getter *MetaMethod
	setter *MetaMethod
}

// NewMetaBeanProperty builds a property. Either accessor may be nil.
func NewMetaBeanProperty(name string, typ reflect.Type, getter, setter *MetaMethod) *MetaBeanProperty {
	return &MetaBeanProperty{name: name, typ: typ, getter: getter, setter: setter}
}

// PropertyFuncs builds a property from func(recv R) V and func(recv R, v V).
// set may be nil for a read-only property.
func PropertyFuncs(name string, get, set any) (*MetaBeanProperty, error) {
	p := &MetaBeanProperty{name: name}
	if get != nil {
		g, err := MethodFunc(reflection.GetterNames(name)[0], get)
		if err != nil {
			return nil, err
		}
		gt := reflect.TypeOf(get)
		if gt.NumOut() > 0 {
			p.typ = gt.Out(0)
		}
		p.getter = g
	}
	if set != nil {
		s, err := MethodFunc(reflection.SetterName(name), set)
		if err != nil {
			return nil, err
		}
		if params := s.ParamTypes(); len(params) != 1 {
			return nil, fmt.Errorf("property %s: setter must take one value", name)
		} else if p.typ == nil {
			p.typ = params[0]
		}
		p.setter = s
	}
	if p.getter == nil && p.setter == nil {
		return nil, fmt.Errorf("property %s: no accessors", name)
	}
	return p, nil
}

func (p *MetaBeanProperty) Name() string        { return p.name }
func (p *MetaBeanProperty) Type() reflect.Type  { return p.typ }
func (p *MetaBeanProperty) Getter() *MetaMethod { return p.getter }
func (p *MetaBeanProperty) Setter() *MetaMethod { return p.setter }

// Get reads the property from recv.
func (p *MetaBeanProperty) Get(recv any) (any, error) {
	if p.getter == nil {
		return nil, &MissingPropertyError{Name: p.name, WriteOnly: true}
	}
	return p.getter.Invoke(recv, nil)
}

// Set writes the property on recv.
func (p *MetaBeanProperty) Set(recv any, v any) error {
	if p.setter == nil {
		return &MissingPropertyError{Name: p.name, ReadOnly: true}
	}
	_, err := p.setter.Invoke(recv, []any{v})
	return err
}
