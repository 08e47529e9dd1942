package meta

import "reflect"

// Forwarding lists the operations a DelegatingMetaclass overrides. Each
// override receives the wrapped metaclass as next; a nil entry forwards to
// next unchanged. Use OrElse inside an override to fall back to next on a
// missing member.
type Forwarding struct {
	InvokeMethod      func(next Metaclass, recv any, name string, args []any, opts Options) (any, error)
	GetProperty       func(next Metaclass, recv any, name string, opts Options) (any, error)
	SetProperty       func(next Metaclass, recv any, name string, value any, opts Options) error
	GetAttribute      func(next Metaclass, recv any, name string, opts Options) (any, error)
	SetAttribute      func(next Metaclass, recv any, name string, value any, opts Options) error
	InvokeStatic      func(next Metaclass, name string, args []any) (any, error)
	InvokeConstructor func(next Metaclass, args []any) (any, error)
}

// DelegatingMetaclass wraps another metaclass. Wrappers compose: the
// delegate may itself be a DelegatingMetaclass.
type DelegatingMetaclass struct {
	next Metaclass
	fwd  Forwarding
}

var _ Metaclass = (*DelegatingMetaclass)(nil)

// NewDelegatingMetaclass wraps next with the overrides in fwd.
func NewDelegatingMetaclass(next Metaclass, fwd Forwarding) *DelegatingMetaclass {
	return &DelegatingMetaclass{next: next, fwd: fwd}
}

// Delegate returns the wrapped metaclass.
func (d *DelegatingMetaclass) Delegate() Metaclass { return d.next }

func (d *DelegatingMetaclass) Type() reflect.Type  { return d.next.Type() }
func (d *DelegatingMetaclass) Kind() Kind          { return KindDelegating }
func (d *DelegatingMetaclass) Registry() *Registry { return d.next.Registry() }
func (d *DelegatingMetaclass) IsModified() bool    { return d.next.IsModified() }

func (d *DelegatingMetaclass) InvokeMethod(recv any, name string, args ...any) (any, error) {
	return d.InvokeMethodWith(recv, name, args, Options{})
}

func (d *DelegatingMetaclass) GetProperty(recv any, name string) (any, error) {
	return d.GetPropertyWith(recv, name, Options{})
}

func (d *DelegatingMetaclass) SetProperty(recv any, name string, value any) error {
	return d.SetPropertyWith(recv, name, value, Options{})
}

func (d *DelegatingMetaclass) InvokeMethodWith(recv any, name string, args []any, opts Options) (any, error) {
	if d.fwd.InvokeMethod != nil {
		return d.fwd.InvokeMethod(d.next, recv, name, args, opts)
	}
	return d.next.InvokeMethodWith(recv, name, args, opts)
}

func (d *DelegatingMetaclass) GetPropertyWith(recv any, name string, opts Options) (any, error) {
	if d.fwd.GetProperty != nil {
		return d.fwd.GetProperty(d.next, recv, name, opts)
	}
	return d.next.GetPropertyWith(recv, name, opts)
}

func (d *DelegatingMetaclass) SetPropertyWith(recv any, name string, value any, opts Options) error {
	if d.fwd.SetProperty != nil {
		return d.fwd.SetProperty(d.next, recv, name, value, opts)
	}
	return d.next.SetPropertyWith(recv, name, value, opts)
}

func (d *DelegatingMetaclass) GetAttribute(recv any, name string, opts Options) (any, error) {
	if d.fwd.GetAttribute != nil {
		return d.fwd.GetAttribute(d.next, recv, name, opts)
	}
	return d.next.GetAttribute(recv, name, opts)
}

func (d *DelegatingMetaclass) SetAttribute(recv any, name string, value any, opts Options) error {
	if d.fwd.SetAttribute != nil {
		return d.fwd.SetAttribute(d.next, recv, name, value, opts)
	}
	return d.next.SetAttribute(recv, name, value, opts)
}

func (d *DelegatingMetaclass) InvokeStaticMethod(name string, args ...any) (any, error) {
	if d.fwd.InvokeStatic != nil {
		return d.fwd.InvokeStatic(d.next, name, args)
	}
	return d.next.InvokeStaticMethod(name, args...)
}

func (d *DelegatingMetaclass) InvokeConstructor(args ...any) (any, error) {
	if d.fwd.InvokeConstructor != nil {
		return d.fwd.InvokeConstructor(d.next, args)
	}
	return d.next.InvokeConstructor(args...)
}

// Resolve returns the delegate's method unless invocation is overridden,
// in which case the handle dispatches through the override on every call.
func (d *DelegatingMetaclass) Resolve(name string, argTypes []reflect.Type, opts Options) (*MetaMethod, error) {
	if d.fwd.InvokeMethod == nil {
		return d.next.Resolve(name, argTypes, opts)
	}
	m := synthetic(name, d.Type(), func(recv any, args []any) (any, error) {
		return d.InvokeMethodWith(recv, name, args, opts)
	})
	m.params = argTypes
	return m, nil
}

func (d *DelegatingMetaclass) ResolveStatic(name string, argTypes []reflect.Type) (*MetaMethod, error) {
	if d.fwd.InvokeStatic == nil {
		return d.next.ResolveStatic(name, argTypes)
	}
	m := synthetic(name, d.Type(), func(_ any, args []any) (any, error) {
		return d.InvokeStaticMethod(name, args...)
	})
	m.params, m.static = argTypes, true
	return m, nil
}

func (d *DelegatingMetaclass) ResolveConstructor(argTypes []reflect.Type) (*MetaMethod, error) {
	if d.fwd.InvokeConstructor == nil {
		return d.next.ResolveConstructor(argTypes)
	}
	m := synthetic("new", d.Type(), func(_ any, args []any) (any, error) {
		return d.InvokeConstructor(args...)
	})
	m.params, m.static = argTypes, true
	return m, nil
}

func (d *DelegatingMetaclass) ResolveAccessor(op Access, name string, valueType reflect.Type, opts Options) *MetaMethod {
	overridden := false
	switch op {
	case AccessGetProperty:
		overridden = d.fwd.GetProperty != nil
	case AccessSetProperty:
		overridden = d.fwd.SetProperty != nil
	case AccessGetAttribute:
		overridden = d.fwd.GetAttribute != nil
	case AccessSetAttribute:
		overridden = d.fwd.SetAttribute != nil
	}
	if overridden {
		return genericAccessor(d, op, name, opts)
	}
	return d.next.ResolveAccessor(op, name, valueType, opts)
}

func (d *DelegatingMetaclass) RespondsTo(recv any, name string, argTypes ...reflect.Type) []*MetaMethod {
	return d.next.RespondsTo(recv, name, argTypes...)
}

func (d *DelegatingMetaclass) HasProperty(recv any, name string) *MetaBeanProperty {
	return d.next.HasProperty(recv, name)
}

func (d *DelegatingMetaclass) Methods() []*MetaMethod          { return d.next.Methods() }
func (d *DelegatingMetaclass) StaticMethods() []*MetaMethod    { return d.next.StaticMethods() }
func (d *DelegatingMetaclass) Properties() []*MetaBeanProperty { return d.next.Properties() }

func (d *DelegatingMetaclass) AddMetaMethod(m *MetaMethod) error   { return d.next.AddMetaMethod(m) }
func (d *DelegatingMetaclass) AddStaticMethod(m *MetaMethod) error { return d.next.AddStaticMethod(m) }

func (d *DelegatingMetaclass) AddMetaBeanProperty(p *MetaBeanProperty) error {
	return d.next.AddMetaBeanProperty(p)
}

func (d *DelegatingMetaclass) SetMethodMissing(h MethodMissingFunc) { d.next.SetMethodMissing(h) }

func (d *DelegatingMetaclass) SetPropertyMissing(get PropertyMissingFunc, set PropertySetMissingFunc) {
	d.next.SetPropertyMissing(get, set)
}
