package meta

import "reflect"

// CreationStrategy builds the metaclass for a type on first use.
type CreationStrategy interface {
	CreateMetaclass(reg *Registry, t reflect.Type) (Metaclass, error)
}

// StrategyFunc adapts a function to CreationStrategy.
type StrategyFunc func(reg *Registry, t reflect.Type) (Metaclass, error)

func (f StrategyFunc) CreateMetaclass(reg *Registry, t reflect.Type) (Metaclass, error) {
	return f(reg, t)
}

// DefaultStrategy builds primitive metaclasses for basic types and object
// metaclasses for everything else.
var DefaultStrategy CreationStrategy = StrategyFunc(NewDefaultMetaclass)

// NewDefaultMetaclass is the metaclass DefaultStrategy builds for t.
func NewDefaultMetaclass(reg *Registry, t reflect.Type) (Metaclass, error) {
	if IsBasic(t) {
		return NewPrimitiveMetaclass(reg, t)
	}
	return NewObjectMetaclass(reg, t), nil
}
