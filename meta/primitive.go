package meta

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/chazu/mop/reflection"
)

// PrimitiveMetaclass is the metaclass of a basic type. Besides the type's
// own methods it carries the intrinsic operators.
type PrimitiveMetaclass struct {
	core
}

var _ Metaclass = (*PrimitiveMetaclass)(nil)

// NewPrimitiveMetaclass builds the metaclass of a basic type.
func NewPrimitiveMetaclass(reg *Registry, t reflect.Type) (*PrimitiveMetaclass, error) {
	if !IsBasic(t) {
		return nil, fmt.Errorf("%s is not a basic type", t)
	}
	mc := &PrimitiveMetaclass{}
	mc.init(reg, t, KindPrimitive)
	for name, ms := range intrinsicsFor(t) {
		for _, m := range ms {
			if !slices.ContainsFunc(mc.methods[name], m.sameSignature) {
				mc.methods[name] = append(mc.methods[name], m)
			}
		}
	}
	return mc, nil
}

// IsBasic reports whether t has a boolean, numeric or string kind.
func IsBasic(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String:
		return true
	}
	return reflection.IsNumeric(t)
}

// ---------------------------------------------------------------------------
// Intrinsics
// ---------------------------------------------------------------------------

var intrinsicTables sync.Map // reflect.Type -> map[string][]*MetaMethod

// ErrDivisionByZero is returned by integer div and mod intrinsics.
var ErrDivisionByZero = errors.New("division by zero")

var float64Type = reflect.TypeFor[float64]()

func intrinsicsFor(t reflect.Type) map[string][]*MetaMethod {
	if v, ok := intrinsicTables.Load(t); ok {
		return v.(map[string][]*MetaMethod)
	}
	table := buildIntrinsics(t)
	v, _ := intrinsicTables.LoadOrStore(t, table)
	return v.(map[string][]*MetaMethod)
}

// LookupIntrinsic finds the operator for a call on a basic type without
// consulting any metaclass.
func LookupIntrinsic(t reflect.Type, name string, argTypes []reflect.Type) (*MetaMethod, bool) {
	if !IsBasic(t) {
		return nil, false
	}
	cands := intrinsicsFor(t)[name]
	if len(cands) == 0 {
		return nil, false
	}
	m, _, ok := reflection.SelectMostSpecific(cands, argTypes)
	return m, ok
}

func intrinsic(t reflect.Type, name string, params []reflect.Type, fn InvokeFunc) *MetaMethod {
	return &MetaMethod{
		name:      name,
		declaring: t,
		params:    params,
		origin:    OriginIntrinsic,
		coerce:    true,
		invoke:    fn,
	}
}

func buildIntrinsics(t reflect.Type) map[string][]*MetaMethod {
	table := make(map[string][]*MetaMethod)
	add := func(name string, params []reflect.Type, fn InvokeFunc) {
		table[name] = append(table[name], intrinsic(t, name, params, fn))
	}
	self := []reflect.Type{t}
	anyParam := []reflect.Type{reflect.TypeFor[any]()}

	add("equals", anyParam, func(recv any, args []any) (any, error) {
		return basicEqual(recv, args[0]), nil
	})
	add("toString", nil, func(recv any, _ []any) (any, error) {
		return fmt.Sprint(recv), nil
	})

	switch {
	case t.Kind() == reflect.Bool:
		add("and", self, boolOp(t, func(a, b bool) bool { return a && b }))
		add("or", self, boolOp(t, func(a, b bool) bool { return a || b }))
		add("xor", self, boolOp(t, func(a, b bool) bool { return a != b }))
		add("not", nil, func(recv any, _ []any) (any, error) {
			out := reflect.New(t).Elem()
			out.SetBool(!reflect.ValueOf(recv).Bool())
			return out.Interface(), nil
		})

	case t.Kind() == reflect.String:
		add("plus", anyParam, func(recv any, args []any) (any, error) {
			out := reflect.New(t).Elem()
			out.SetString(reflect.ValueOf(recv).String() + fmt.Sprint(args[0]))
			return out.Interface(), nil
		})
		add("size", nil, func(recv any, _ []any) (any, error) {
			return len([]rune(reflect.ValueOf(recv).String())), nil
		})
		add("toUpperCase", nil, stringOp(t, strings.ToUpper))
		add("toLowerCase", nil, stringOp(t, strings.ToLower))
		add("compareTo", self, func(recv any, args []any) (any, error) {
			return cmp.Compare(reflect.ValueOf(recv).String(), reflect.ValueOf(args[0]).String()), nil
		})
		add("getAt", []reflect.Type{reflect.TypeFor[int]()}, func(recv any, args []any) (any, error) {
			rs := []rune(reflect.ValueOf(recv).String())
			i := args[0].(int)
			if i < 0 {
				i += len(rs)
			}
			if i < 0 || i >= len(rs) {
				return nil, fmt.Errorf("getAt: index %d out of range [0:%d]", args[0], len(rs))
			}
			v := reflect.New(t).Elem()
			v.SetString(string(rs[i]))
			return v.Interface(), nil
		})

	default:
		for _, op := range []string{"plus", "minus", "multiply", "div"} {
			add(op, self, arith(t, op))
			if t != float64Type {
				add(op, []reflect.Type{float64Type}, floatArith(op))
			}
		}
		if !isFloat(t) {
			add("mod", self, arith(t, "mod"))
		}
		add("negative", nil, func(recv any, _ []any) (any, error) {
			v := reflect.ValueOf(recv)
			out := reflect.New(t).Elem()
			switch {
			case isFloat(t):
				out.SetFloat(-v.Float())
			case isUnsigned(t):
				out.SetUint(-v.Uint())
			default:
				out.SetInt(-v.Int())
			}
			return out.Interface(), nil
		})
		add("compareTo", self, func(recv any, args []any) (any, error) {
			a, b := reflect.ValueOf(recv), reflect.ValueOf(args[0])
			switch {
			case isFloat(t):
				return cmp.Compare(a.Float(), b.Float()), nil
			case isUnsigned(t):
				return cmp.Compare(a.Uint(), b.Uint()), nil
			}
			return cmp.Compare(a.Int(), b.Int()), nil
		})
		add("intValue", nil, func(recv any, _ []any) (any, error) {
			v := reflect.ValueOf(recv)
			switch {
			case isFloat(t):
				return int(v.Float()), nil
			case isUnsigned(t):
				return int(v.Uint()), nil
			}
			return int(v.Int()), nil
		})
		add("doubleValue", nil, func(recv any, _ []any) (any, error) {
			return toFloat(reflect.ValueOf(recv)), nil
		})
	}
	return table
}

func isFloat(t reflect.Type) bool {
	return t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
}

func isUnsigned(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isFloat(v.Type()):
		return v.Float()
	case isUnsigned(v.Type()):
		return float64(v.Uint())
	}
	return float64(v.Int())
}

func boolOp(t reflect.Type, op func(a, b bool) bool) InvokeFunc {
	return func(recv any, args []any) (any, error) {
		out := reflect.New(t).Elem()
		out.SetBool(op(reflect.ValueOf(recv).Bool(), reflect.ValueOf(args[0]).Bool()))
		return out.Interface(), nil
	}
}

func stringOp(t reflect.Type, op func(string) string) InvokeFunc {
	return func(recv any, _ []any) (any, error) {
		out := reflect.New(t).Elem()
		out.SetString(op(reflect.ValueOf(recv).String()))
		return out.Interface(), nil
	}
}

// arith applies op to two values of t and returns a value of t.
func arith(t reflect.Type, op string) InvokeFunc {
	return func(recv any, args []any) (any, error) {
		a, b := reflect.ValueOf(recv), reflect.ValueOf(args[0])
		out := reflect.New(t).Elem()
		switch {
		case isFloat(t):
			x, y := a.Float(), b.Float()
			switch op {
			case "plus":
				out.SetFloat(x + y)
			case "minus":
				out.SetFloat(x - y)
			case "multiply":
				out.SetFloat(x * y)
			case "div":
				out.SetFloat(x / y)
			}
		case isUnsigned(t):
			x, y := a.Uint(), b.Uint()
			if (op == "div" || op == "mod") && y == 0 {
				return nil, ErrDivisionByZero
			}
			switch op {
			case "plus":
				out.SetUint(x + y)
			case "minus":
				out.SetUint(x - y)
			case "multiply":
				out.SetUint(x * y)
			case "div":
				out.SetUint(x / y)
			case "mod":
				out.SetUint(x % y)
			}
		default:
			x, y := a.Int(), b.Int()
			if (op == "div" || op == "mod") && y == 0 {
				return nil, ErrDivisionByZero
			}
			switch op {
			case "plus":
				out.SetInt(x + y)
			case "minus":
				out.SetInt(x - y)
			case "multiply":
				out.SetInt(x * y)
			case "div":
				out.SetInt(x / y)
			case "mod":
				out.SetInt(x % y)
			}
		}
		return out.Interface(), nil
	}
}

// floatArith promotes the receiver to float64.
func floatArith(op string) InvokeFunc {
	return func(recv any, args []any) (any, error) {
		x, y := toFloat(reflect.ValueOf(recv)), args[0].(float64)
		switch op {
		case "plus":
			return x + y, nil
		case "minus":
			return x - y, nil
		case "multiply":
			return x * y, nil
		}
		return x / y, nil
	}
}

// basicEqual compares numbers by value across kinds and everything else
// with ==.
func basicEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if reflection.IsNumeric(av.Type()) && reflection.IsNumeric(bv.Type()) {
		switch {
		case isFloat(av.Type()) || isFloat(bv.Type()):
			return toFloat(av) == toFloat(bv)
		case isUnsigned(av.Type()) && isUnsigned(bv.Type()):
			return av.Uint() == bv.Uint()
		case isUnsigned(av.Type()):
			return bv.Int() >= 0 && uint64(bv.Int()) == av.Uint()
		case isUnsigned(bv.Type()):
			return av.Int() >= 0 && uint64(av.Int()) == bv.Uint()
		}
		return av.Int() == bv.Int()
	}
	if av.Type().Comparable() && bv.Type().Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
