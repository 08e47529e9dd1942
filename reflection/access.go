package reflection

import "reflect"

// MemberKind distinguishes the cached member tables.
type MemberKind uint8

const (
	KindMethod MemberKind = iota
	KindField
	KindConstructor
)

func (k MemberKind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindConstructor:
		return "constructor"
	}
	return "member"
}

// Member is what an AccessPolicy sees.
type Member interface {
	MemberName() string
	MemberKind() MemberKind
	DeclaringType() reflect.Type
	Exported() bool
}

// AccessPolicy decides whether a member may be used. A nil result allows it.
// A cache consults its policy at most once per member.
type AccessPolicy func(Member) error

// DefaultAccessPolicy denies unexported members.
func DefaultAccessPolicy(m Member) error {
	if m.Exported() {
		return nil
	}
	return &AccessError{Type: m.DeclaringType(), Member: m.MemberName(), Reason: "unexported " + m.MemberKind().String()}
}

// AllowAll permits every member.
func AllowAll(Member) error { return nil }
