package meta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/chazu/mop/reflection"
)

var (
	// ErrAmbiguousOverload is matched by a MissingMethodError raised because
	// several candidates were equally specific.
	ErrAmbiguousOverload = errors.New("ambiguous overload")

	ErrNilReceiver = reflection.ErrNilReceiver
)

// Errors raised by reflective members.
type (
	AccessError           = reflection.AccessError
	ArgumentCoercionError = reflection.ArgumentCoercionError
	InvocationError       = reflection.InvocationError
)

// MissingMethodError reports a method that could not be resolved.
type MissingMethodError struct {
	Type     reflect.Type
	Name     string
	ArgTypes []reflect.Type
	Static   bool

	// Candidates holds the equally specific methods of an ambiguous call.
	Candidates []*MetaMethod
}

func (e *MissingMethodError) Error() string {
	kind := "method"
	if e.Static {
		kind = "static method"
	}
	call := fmt.Sprintf("%s(%s)", e.Name, typeList(e.ArgTypes))
	if e.Ambiguous() {
		return fmt.Sprintf("ambiguous call to %s %s on %s: %d candidates", kind, call, typeString(e.Type), len(e.Candidates))
	}
	return fmt.Sprintf("no %s %s on %s", kind, call, typeString(e.Type))
}

// Ambiguous reports whether resolution failed on a tie.
func (e *MissingMethodError) Ambiguous() bool { return len(e.Candidates) > 0 }

func (e *MissingMethodError) Is(target error) bool {
	return target == ErrAmbiguousOverload && e.Ambiguous()
}

func (e *MissingMethodError) IsDispatchError() bool { return true }

// MissingPropertyError reports a property that could not be read or written.
type MissingPropertyError struct {
	Type      reflect.Type
	Name      string
	ReadOnly  bool
	WriteOnly bool
}

func (e *MissingPropertyError) Error() string {
	switch {
	case e.ReadOnly:
		return fmt.Sprintf("property %s on %s is read-only", e.Name, typeString(e.Type))
	case e.WriteOnly:
		return fmt.Sprintf("property %s on %s is write-only", e.Name, typeString(e.Type))
	}
	return fmt.Sprintf("no property %s on %s", e.Name, typeString(e.Type))
}

func (e *MissingPropertyError) IsDispatchError() bool { return true }

// MetaclassCreationError reports a creation strategy that failed.
type MetaclassCreationError struct {
	Type  reflect.Type
	Cause error
}

func (e *MetaclassCreationError) Error() string {
	return fmt.Sprintf("creating metaclass for %s: %v", typeString(e.Type), e.Cause)
}

func (e *MetaclassCreationError) Unwrap() error { return e.Cause }

func (e *MetaclassCreationError) IsDispatchError() bool { return true }

// IsMissing reports whether err is a missing method or property, not counting
// ambiguous calls.
func IsMissing(err error) bool {
	var mm *MissingMethodError
	if errors.As(err, &mm) {
		return !mm.Ambiguous()
	}
	var mp *MissingPropertyError
	return errors.As(err, &mp)
}

// OrElse runs primary and falls back to fallback when primary reports a
// missing method or property.
func OrElse(primary, fallback func() (any, error)) (any, error) {
	v, err := primary()
	if err != nil && IsMissing(err) {
		return fallback()
	}
	return v, err
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}

func typeList(ts []reflect.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = typeString(t)
	}
	return strings.Join(parts, ", ")
}
