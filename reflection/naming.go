package reflection

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Bean-style naming between property names and accessor methods.
//
//	x <-> GetX / IsX / SetX

// ExportedName upper-cases the first rune of name.
func ExportedName(name string) string {
	if name == "" {
		return ""
	}
	r, n := utf8.DecodeRuneInString(name)
	if unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToUpper(r)) + name[n:]
}

// PropertyName returns the property an accessor method stands for, or "" if
// the method name is not a getter or setter.
func PropertyName(method string) string {
	for _, prefix := range []string{"Get", "Set", "Is"} {
		rest, ok := strings.CutPrefix(method, prefix)
		if !ok || rest == "" {
			continue
		}
		r, n := utf8.DecodeRuneInString(rest)
		if !unicode.IsUpper(r) {
			continue
		}
		return string(unicode.ToLower(r)) + rest[n:]
	}
	return ""
}

// GetterNames lists the accessor names tried for a property read, in order.
func GetterNames(property string) []string {
	e := ExportedName(property)
	if e == "" {
		return nil
	}
	return []string{"Get" + e, "Is" + e}
}

// SetterName is the accessor name tried for a property write.
func SetterName(property string) string {
	e := ExportedName(property)
	if e == "" {
		return ""
	}
	return "Set" + e
}

// IsExportedName reports whether name starts with an upper-case letter.
func IsExportedName(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
