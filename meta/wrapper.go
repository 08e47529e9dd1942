package meta

import "reflect"

// Wrapper pins a metaclass to a single value. Dispatch on a *Wrapper uses
// the pinned metaclass instead of the registry's, and always takes the
// slow path.
type Wrapper struct {
	value any
	mc    Metaclass
}

// Wrap pins mc to v. mc must serve the dynamic type of v.
func Wrap(v any, mc Metaclass) *Wrapper {
	return &Wrapper{value: v, mc: mc}
}

func (w *Wrapper) Unwrap() any          { return w.value }
func (w *Wrapper) Metaclass() Metaclass { return w.mc }

// Type is the dynamic type of the wrapped value.
func (w *Wrapper) Type() reflect.Type { return typeOf(w.value) }

// Unwrap returns the wrapped value and its pinned metaclass, or v and nil
// when v is not a *Wrapper.
func Unwrap(v any) (any, Metaclass) {
	if w, ok := v.(*Wrapper); ok && w != nil {
		return w.value, w.mc
	}
	return v, nil
}
