package meta

import (
	"reflect"

	"github.com/chazu/mop/reflection"
)

// Hook interfaces a receiver may implement to take part in dispatch.
type (
	MethodMissing      = reflection.MethodMissing
	PropertyMissing    = reflection.PropertyMissing
	PropertySetMissing = reflection.PropertySetMissing
)

// Hooks installed on a metaclass. They run before the receiver's own hook
// interfaces.
type (
	MethodMissingFunc      func(recv any, name string, args []any) (any, error)
	PropertyMissingFunc    func(recv any, name string) (any, error)
	PropertySetMissingFunc func(recv any, name string, value any) error
)

// Kind distinguishes metaclass variants.
type Kind uint8

const (
	KindObject Kind = iota
	KindPrimitive
	KindDelegating
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindPrimitive:
		return "primitive"
	case KindDelegating:
		return "delegating"
	}
	return "unknown"
}

// Options modify a single dispatch.
type Options struct {
	// FromInside permits unexported fields, as code inside the type's
	// package would.
	FromInside bool
	// UseSuper resolves against the first embedded type.
	UseSuper bool
}

// Access selects the accessor ResolveAccessor returns.
type Access uint8

const (
	AccessGetProperty Access = iota
	AccessSetProperty
	AccessGetAttribute
	AccessSetAttribute
)

func (a Access) String() string {
	switch a {
	case AccessGetProperty:
		return "getProperty"
	case AccessSetProperty:
		return "setProperty"
	case AccessGetAttribute:
		return "getAttribute"
	case AccessSetAttribute:
		return "setAttribute"
	}
	return "access"
}

// Dispatchable is the minimal dynamic interface.
type Dispatchable interface {
	GetProperty(recv any, name string) (any, error)
	SetProperty(recv any, name string, value any) error
	InvokeMethod(recv any, name string, args ...any) (any, error)
}

// Metaclass holds the dynamic behavior of one native type.
type Metaclass interface {
	Dispatchable

	Type() reflect.Type
	Kind() Kind
	Registry() *Registry
	IsModified() bool

	InvokeMethodWith(recv any, name string, args []any, opts Options) (any, error)
	GetPropertyWith(recv any, name string, opts Options) (any, error)
	SetPropertyWith(recv any, name string, value any, opts Options) error
	GetAttribute(recv any, name string, opts Options) (any, error)
	SetAttribute(recv any, name string, value any, opts Options) error
	InvokeStaticMethod(name string, args ...any) (any, error)
	InvokeConstructor(args ...any) (any, error)

	// Resolve selects the method a call with the given argument types
	// would run, without running it.
	Resolve(name string, argTypes []reflect.Type, opts Options) (*MetaMethod, error)
	ResolveStatic(name string, argTypes []reflect.Type) (*MetaMethod, error)
	ResolveConstructor(argTypes []reflect.Type) (*MetaMethod, error)
	// ResolveAccessor returns a handle for a property or attribute access.
	// It never fails; when nothing more direct exists the handle performs
	// the full lookup on every call.
	ResolveAccessor(op Access, name string, valueType reflect.Type, opts Options) *MetaMethod

	RespondsTo(recv any, name string, argTypes ...reflect.Type) []*MetaMethod
	HasProperty(recv any, name string) *MetaBeanProperty
	Methods() []*MetaMethod
	StaticMethods() []*MetaMethod
	Properties() []*MetaBeanProperty

	AddMetaMethod(m *MetaMethod) error
	AddStaticMethod(m *MetaMethod) error
	AddMetaBeanProperty(p *MetaBeanProperty) error
	SetMethodMissing(h MethodMissingFunc)
	SetPropertyMissing(get PropertyMissingFunc, set PropertySetMissingFunc)
}
