// Package introspect builds a source-level model of a Go package's exported
// types, the static counterpart of the runtime metaclasses.
package introspect

import "go/types"

// PackageModel is the exported API of one package.
type PackageModel struct {
	ImportPath string
	Name       string
	Types      []TypeModel
}

// TypeModel describes an exported named type.
type TypeModel struct {
	Name     string
	GoType   types.Type
	IsStruct bool
	Fields   []FieldModel
	// Methods is the method set of the pointer type, promoted methods
	// included.
	Methods      []MethodModel
	Properties   []PropertyModel
	Constructors []MethodModel // package functions New<Name> returning the type

	HasMethodMissing   bool
	HasPropertyMissing bool
}

// MethodModel describes a method or function.
type MethodModel struct {
	Name        string
	Params      []ParamModel
	Results     []ParamModel
	Variadic    bool
	PointerRecv bool
	Promoted    bool // reached through an embedded field
	ReturnsErr  bool
}

// ParamModel describes a parameter or result.
type ParamModel struct {
	Name    string
	GoType  types.Type
	TypeStr string
}

// FieldModel describes an exported struct field.
type FieldModel struct {
	Name     string
	GoType   types.Type
	TypeStr  string
	Embedded bool
}

// PropertyModel is a bean property derived from fields and accessors.
type PropertyModel struct {
	Name     string
	TypeStr  string
	Readable bool
	Writable bool
	Field    bool // backed by a struct field
}

// Arity is the number of declared parameters.
func (m MethodModel) Arity() int { return len(m.Params) }

// Accepts reports whether a call with n arguments can reach m.
func (m MethodModel) Accepts(n int) bool {
	if m.Variadic {
		return n >= len(m.Params)-1
	}
	return n == len(m.Params)
}

// Type returns the model of the named type.
func (p *PackageModel) Type(name string) *TypeModel {
	for i := range p.Types {
		if p.Types[i].Name == name {
			return &p.Types[i]
		}
	}
	return nil
}

// Method returns the method with the given name.
func (t *TypeModel) Method(name string) *MethodModel {
	for i := range t.Methods {
		if t.Methods[i].Name == name {
			return &t.Methods[i]
		}
	}
	return nil
}

// Property returns the property with the given name.
func (t *TypeModel) Property(name string) *PropertyModel {
	for i := range t.Properties {
		if t.Properties[i].Name == name {
			return &t.Properties[i]
		}
	}
	return nil
}

// IsStaticallyResolvable reports whether a call of method with arity
// arguments on this type has exactly one possible target that no hook can
// intercept, so a compiler may bind it directly.
func (t *TypeModel) IsStaticallyResolvable(method string, arity int) bool {
	if t.HasMethodMissing {
		return false
	}
	n := 0
	for _, m := range t.Methods {
		if m.Name == method && m.Accepts(arity) {
			n++
		}
	}
	return n == 1
}
