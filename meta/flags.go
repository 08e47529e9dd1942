package meta

import (
	"reflect"
	"sync/atomic"
)

// PrimitiveFlags tracks whether the basic types still behave as shipped.
// While a type is standard the runtime may run its intrinsic operators
// without looking up a metaclass.
//
// A type stops being standard when its metaclass is replaced or modified,
// when a custom creation strategy is installed, or while any category is
// in use.
type PrimitiveFlags struct {
	orig                [reflect.String + 1]atomic.Bool
	withoutCustomHandle atomic.Bool
	categoryUsed        atomic.Bool
}

func newPrimitiveFlags() *PrimitiveFlags {
	f := &PrimitiveFlags{}
	f.reset()
	return f
}

func (f *PrimitiveFlags) reset() {
	for k := range f.orig {
		f.orig[k].Store(predeclared[reflect.Kind(k)] != nil)
	}
	f.withoutCustomHandle.Store(true)
	f.categoryUsed.Store(false)
}

var predeclared = map[reflect.Kind]reflect.Type{
	reflect.Bool:    reflect.TypeFor[bool](),
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint:    reflect.TypeFor[uint](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Uintptr: reflect.TypeFor[uintptr](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
	reflect.String:  reflect.TypeFor[string](),
}

// IsPredeclared reports whether t is one of Go's predeclared basic types,
// as opposed to a named type with a basic kind.
func IsPredeclared(t reflect.Type) bool {
	return t != nil && predeclared[t.Kind()] == t
}

// IsStandard reports whether calls on t may take the intrinsic fast path.
func (f *PrimitiveFlags) IsStandard(t reflect.Type) bool {
	if !IsPredeclared(t) {
		return false
	}
	return f.orig[t.Kind()].Load() && f.withoutCustomHandle.Load() && !f.categoryUsed.Load()
}

// IsOriginal reports the per-type flag alone.
func (f *PrimitiveFlags) IsOriginal(t reflect.Type) bool {
	return IsPredeclared(t) && f.orig[t.Kind()].Load()
}

// WithoutCustomHandle is false while a custom creation strategy is active.
func (f *PrimitiveFlags) WithoutCustomHandle() bool { return f.withoutCustomHandle.Load() }

// CategoryUsed is true while any category is active.
func (f *PrimitiveFlags) CategoryUsed() bool { return f.categoryUsed.Load() }

// touch clears the standard flag of t when t is predeclared.
func (f *PrimitiveFlags) touch(t reflect.Type) {
	if IsPredeclared(t) {
		f.orig[t.Kind()].Store(false)
	}
}
