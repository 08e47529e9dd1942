package reflection

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
)

// ErrNilReceiver is returned when a member is used on a nil receiver.
var ErrNilReceiver = errors.New("nil receiver")

// DispatchError is implemented by errors raised by the dispatch runtime
// itself. Invoke lets them through without an InvocationError wrapper so a
// failed nested dispatch reads the same at every level.
type DispatchError interface {
	error
	IsDispatchError() bool
}

// AccessError reports a member the access policy refused.
type AccessError struct {
	Type   reflect.Type
	Member string
	Reason string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access to %s.%s denied: %s", typeName(e.Type), e.Member, e.Reason)
}

func (e *AccessError) IsDispatchError() bool { return true }

// ArgumentCoercionError reports an argument that could not be converted to
// the declared parameter type.
type ArgumentCoercionError struct {
	Member   string
	Position int // -1 for the receiver
	From     reflect.Type
	To       reflect.Type
	Reason   string
}

func (e *ArgumentCoercionError) Error() string {
	where := fmt.Sprintf("argument %d", e.Position)
	if e.Position < 0 {
		where = "receiver"
	}
	msg := fmt.Sprintf("%s: %s: cannot use %s as %s", e.Member, where, typeName(e.From), typeName(e.To))
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *ArgumentCoercionError) IsDispatchError() bool { return true }

// InvocationError wraps an error returned by, or a panic raised inside, an
// invoked member.
type InvocationError struct {
	Member   string
	Cause    error
	Panicked bool
}

func (e *InvocationError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("%s panicked: %v", e.Member, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Member, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

func (e *InvocationError) IsDispatchError() bool { return true }

// PanicError carries a recovered panic value that was not itself an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprint(e.Value) }

// isDispatchError reports whether err marks itself as raised by the runtime.
func isDispatchError(err error) bool {
	d, ok := err.(DispatchError)
	return ok && d.IsDispatchError()
}

// Guard runs fn under the same error and panic treatment Invoke applies to
// reflective members.
func Guard(member string, caller Caller, fn func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, wrapPanic(member, r, caller)
		}
	}()
	result, err = fn()
	if err != nil {
		return nil, wrapResult(member, err)
	}
	return result, nil
}

// wrapResult decides how an error returned by a member reaches the caller.
func wrapResult(member string, err error) error {
	if isDispatchError(err) {
		return err
	}
	return &InvocationError{Member: member, Cause: err}
}

// wrapPanic converts a recovered panic value. Runtime errors and dispatch
// errors surface unwrapped when the caller is the dispatch runtime.
func wrapPanic(member string, r any, caller Caller) error {
	err, ok := r.(error)
	if !ok {
		err = &PanicError{Value: r}
	}
	if caller == CallerRuntime {
		if isDispatchError(err) {
			return err
		}
		if _, ok := err.(runtime.Error); ok {
			return err
		}
	}
	return &InvocationError{Member: member, Cause: err, Panicked: true}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}
