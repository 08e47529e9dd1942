package callsite

import "fmt"

// Kind is the operation a call site performs.
type Kind uint8

const (
	KindCall Kind = iota
	KindCallStatic
	KindCallConstructor
	KindGetProperty
	KindSetProperty
	KindGetAttribute
	KindSetAttribute
)

var kindNames = [...]string{
	KindCall:            "call",
	KindCallStatic:      "callStatic",
	KindCallConstructor: "callConstructor",
	KindGetProperty:     "getProperty",
	KindSetProperty:     "setProperty",
	KindGetAttribute:    "getAttribute",
	KindSetAttribute:    "setAttribute",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown call site kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown call site kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// State is the cache state of a call site.
type State uint8

const (
	StateUninitialized State = iota
	StateMonomorphic
	StateMegamorphic
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateMonomorphic:
		return "monomorphic"
	case StateMegamorphic:
		return "megamorphic"
	}
	return "unknown"
}
