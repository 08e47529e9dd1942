package reflection

import "reflect"

// Receivers implementing these interfaces take part in dispatch when normal
// resolution finds nothing.

// MethodMissing is consulted after method resolution fails.
type MethodMissing interface {
	MethodMissing(name string, args []any) (any, error)
}

// PropertyMissing is consulted after property reads fail.
type PropertyMissing interface {
	PropertyMissing(name string) (any, error)
}

// PropertySetMissing is consulted after property writes fail.
type PropertySetMissing interface {
	PropertySetMissing(name string, value any) error
}

// Capabilities records which hook interfaces a type implements.
type Capabilities struct {
	MethodMissing      bool
	PropertyMissing    bool
	PropertySetMissing bool
}

// Any reports whether the type implements at least one hook.
func (c Capabilities) Any() bool {
	return c.MethodMissing || c.PropertyMissing || c.PropertySetMissing
}

var (
	methodMissingType      = reflect.TypeFor[MethodMissing]()
	propertyMissingType    = reflect.TypeFor[PropertyMissing]()
	propertySetMissingType = reflect.TypeFor[PropertySetMissing]()
)

func capabilitiesOf(t reflect.Type) Capabilities {
	return Capabilities{
		MethodMissing:      t.Implements(methodMissingType),
		PropertyMissing:    t.Implements(propertyMissingType),
		PropertySetMissing: t.Implements(propertySetMissingType),
	}
}
