package reflection

import (
	"math"
	"reflect"
)

// ---------------------------------------------------------------------------
// Numeric ranks
// ---------------------------------------------------------------------------

type numClass uint8

const (
	notNumeric numClass = iota
	signedInt
	unsignedInt
	floating
)

// rank orders kinds within their class. uint and uintptr share the uint64
// rank with int sitting between int32 and int64.
func numericRank(k reflect.Kind) (numClass, int) {
	switch k {
	case reflect.Int8:
		return signedInt, 1
	case reflect.Int16:
		return signedInt, 2
	case reflect.Int32:
		return signedInt, 3
	case reflect.Int:
		return signedInt, 4
	case reflect.Int64:
		return signedInt, 5
	case reflect.Uint8:
		return unsignedInt, 1
	case reflect.Uint16:
		return unsignedInt, 2
	case reflect.Uint32:
		return unsignedInt, 3
	case reflect.Uint:
		return unsignedInt, 4
	case reflect.Uint64, reflect.Uintptr:
		return unsignedInt, 5
	case reflect.Float32:
		return floating, 1
	case reflect.Float64:
		return floating, 2
	}
	return notNumeric, 0
}

// IsNumeric reports whether t is an integer or floating point type.
func IsNumeric(t reflect.Type) bool {
	if t == nil {
		return false
	}
	c, _ := numericRank(t.Kind())
	return c != notNumeric
}

// Widens reports whether a value of type from converts to type to without
// loss for every possible value. Identical types do not widen.
func Widens(from, to reflect.Type) bool {
	if from == nil || to == nil || from == to {
		return false
	}
	fc, fr := numericRank(from.Kind())
	tc, tr := numericRank(to.Kind())
	if fc == notNumeric || tc == notNumeric {
		return false
	}
	switch {
	case fc == tc:
		return fr < tr || (fr == tr && from.Kind() != to.Kind())
	case fc == unsignedInt && tc == signedInt:
		return tr > fr
	case tc == floating:
		if tr == 1 {
			return fr <= 2
		}
		return true
	}
	return false
}

// Nilable reports whether nil is a valid value of t.
func Nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Coercion
// ---------------------------------------------------------------------------

// Coerce converts v to a value of type to. Nil becomes the zero value of a
// nilable type, assignable values pass through, numeric values convert when
// the result is exactly representable and basic values convert between named
// types of the same kind.
func Coerce(v any, to reflect.Type) (reflect.Value, error) {
	if v == nil {
		if Nilable(to) {
			return reflect.Zero(to), nil
		}
		return reflect.Value{}, &ArgumentCoercionError{To: to, Reason: "nil for non-nilable type"}
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(to) {
		return rv, nil
	}
	if IsNumeric(rv.Type()) && IsNumeric(to) {
		out, ok := convertNumber(rv, to)
		if !ok {
			return reflect.Value{}, &ArgumentCoercionError{From: rv.Type(), To: to, Reason: "value not representable"}
		}
		return out, nil
	}
	if sameBasicKind(rv.Type(), to) && rv.Type().ConvertibleTo(to) {
		return rv.Convert(to), nil
	}
	return reflect.Value{}, &ArgumentCoercionError{From: rv.Type(), To: to}
}

func sameBasicKind(a, b reflect.Type) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case reflect.Bool, reflect.String:
		return true
	}
	return IsNumeric(a)
}

func convertNumber(v reflect.Value, to reflect.Type) (reflect.Value, bool) {
	out := reflect.New(to).Elem()
	fc, _ := numericRank(v.Kind())
	tc, _ := numericRank(to.Kind())

	switch tc {
	case signedInt:
		switch fc {
		case signedInt:
			i := v.Int()
			if out.OverflowInt(i) {
				return out, false
			}
			out.SetInt(i)
		case unsignedInt:
			u := v.Uint()
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return out, false
			}
			out.SetInt(int64(u))
		case floating:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return out, false
			}
			out.SetInt(int64(f))
		}
	case unsignedInt:
		switch fc {
		case signedInt:
			i := v.Int()
			if i < 0 || out.OverflowUint(uint64(i)) {
				return out, false
			}
			out.SetUint(uint64(i))
		case unsignedInt:
			u := v.Uint()
			if out.OverflowUint(u) {
				return out, false
			}
			out.SetUint(u)
		case floating:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return out, false
			}
			out.SetUint(uint64(f))
		}
	case floating:
		var f float64
		switch fc {
		case signedInt:
			i := v.Int()
			f = float64(i)
			if int64(f) != i {
				return out, false
			}
		case unsignedInt:
			u := v.Uint()
			f = float64(u)
			if f >= math.MaxUint64 || uint64(f) != u {
				return out, false
			}
		case floating:
			f = v.Float()
		}
		if to.Kind() == reflect.Float32 {
			if out.OverflowFloat(f) || float64(float32(f)) != f && !math.IsNaN(f) {
				return out, false
			}
		}
		out.SetFloat(f)
	}
	return out, true
}

// CoerceArgs converts args to the parameter list params. For variadic
// parameter lists the trailing arguments are collected into the final slice
// unless exactly one argument already has the slice type.
func CoerceArgs(member string, params []reflect.Type, variadic bool, args []any) ([]reflect.Value, bool, error) {
	n := len(params)
	if !variadic {
		if len(args) != n {
			return nil, false, &ArgumentCoercionError{Member: member, Position: len(args), Reason: "wrong number of arguments"}
		}
		in := make([]reflect.Value, n)
		for i, a := range args {
			v, err := Coerce(a, params[i])
			if err != nil {
				return nil, false, positioned(err, member, i)
			}
			in[i] = v
		}
		return in, false, nil
	}

	if len(args) < n-1 {
		return nil, false, &ArgumentCoercionError{Member: member, Position: len(args), Reason: "too few arguments"}
	}
	sliceType := params[n-1]
	if len(args) == n {
		if last := args[n-1]; last != nil && reflect.TypeOf(last).AssignableTo(sliceType) {
			in := make([]reflect.Value, n)
			for i := 0; i < n-1; i++ {
				v, err := Coerce(args[i], params[i])
				if err != nil {
					return nil, false, positioned(err, member, i)
				}
				in[i] = v
			}
			in[n-1] = reflect.ValueOf(last)
			return in, true, nil
		}
	}
	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < n-1; i++ {
		v, err := Coerce(args[i], params[i])
		if err != nil {
			return nil, false, positioned(err, member, i)
		}
		in = append(in, v)
	}
	elem := sliceType.Elem()
	for i := n - 1; i < len(args); i++ {
		v, err := Coerce(args[i], elem)
		if err != nil {
			return nil, false, positioned(err, member, i)
		}
		in = append(in, v)
	}
	return in, false, nil
}

func positioned(err error, member string, pos int) error {
	if ce, ok := err.(*ArgumentCoercionError); ok {
		ce.Member = member
		ce.Position = pos
	}
	return err
}
