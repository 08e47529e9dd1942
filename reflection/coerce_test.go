package reflection

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

type celsius float64

func TestCoerce(t *testing.T) {
	tests := []struct {
		in   any
		to   reflect.Type
		want any
	}{
		{3, tInt64, int64(3)},
		{int8(-2), tInt, -2},
		{3, tFloat64, 3.0},
		{2.0, tInt, 2},
		{uint8(200), tInt64, int64(200)},
		{1.5, tFloat32, float32(1.5)},
		{21.5, reflect.TypeFor[celsius](), celsius(21.5)},
		{"x", tAny, "x"},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.in, tt.to)
		if err != nil {
			t.Errorf("Coerce(%v, %v): %v", tt.in, tt.to, err)
			continue
		}
		if got.Interface() != tt.want {
			t.Errorf("Coerce(%v, %v) = %#v, want %#v", tt.in, tt.to, got.Interface(), tt.want)
		}
	}
}

func TestCoerceRejectsLoss(t *testing.T) {
	tests := []struct {
		in any
		to reflect.Type
	}{
		{2.5, tInt},
		{300, tUint8},
		{-1, tUint64},
		{math.MaxInt64, tInt8},
		{0.1, tFloat32},
		{"1", tInt},
		{nil, tInt},
	}
	for _, tt := range tests {
		_, err := Coerce(tt.in, tt.to)
		var ce *ArgumentCoercionError
		if !errors.As(err, &ce) {
			t.Errorf("Coerce(%v, %v) error = %v, want ArgumentCoercionError", tt.in, tt.to, err)
		}
	}
}

func TestCoerceNil(t *testing.T) {
	v, err := Coerce(nil, tError)
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsNil() {
		t.Error("nil coerced to error should be a nil interface")
	}
}

func TestCoerceArgsVariadic(t *testing.T) {
	in, sliced, err := CoerceArgs("f", types(tString, tInts), true, []any{"a", 1, int8(2)})
	if err != nil {
		t.Fatal(err)
	}
	if sliced || len(in) != 3 {
		t.Fatalf("sliced = %v, len = %d", sliced, len(in))
	}
	if in[2].Interface() != 2 {
		t.Errorf("in[2] = %v, want int 2", in[2].Interface())
	}

	_, sliced, err = CoerceArgs("f", types(tString, tInts), true, []any{"a", []int{1}})
	if err != nil || !sliced {
		t.Errorf("slice pass-through: sliced = %v, err = %v", sliced, err)
	}

	if _, _, err := CoerceArgs("f", types(tString), false, nil); err == nil {
		t.Error("missing argument should fail")
	}
}
