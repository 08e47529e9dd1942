package introspect

import (
	"fmt"
	"go/types"
	"sort"

	"github.com/chazu/mop/reflection"
	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/packages"
)

var log = commonlog.GetLogger("mop.introspect")

// Load loads a package by import path or directory pattern and returns its
// model. The includeFilter, if non-nil, restricts which exported type
// names are included.
func Load(pattern string, includeFilter map[string]bool) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax,
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", pattern)
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", pattern)
	}

	model := &PackageModel{
		ImportPath: pkg.PkgPath,
		Name:       pkg.Name,
	}

	scope := pkg.Types.Scope()
	var funcs []*types.Func
	for _, name := range scope.Names() {
		obj := scope.Lookup(name)
		if !obj.Exported() {
			continue
		}
		switch o := obj.(type) {
		case *types.Func:
			funcs = append(funcs, o)
		case *types.TypeName:
			if includeFilter != nil && !includeFilter[name] {
				continue
			}
			if tm := extractType(o, pkg.Types); tm != nil {
				model.Types = append(model.Types, *tm)
			}
		}
	}

	for i := range model.Types {
		tm := &model.Types[i]
		for _, fn := range funcs {
			if fn.Name() == "New"+tm.Name && returnsType(fn, tm.GoType) {
				tm.Constructors = append(tm.Constructors, methodModel(fn, false, pkg.Types))
			}
		}
	}
	log.Debugf("introspected %s: %d types", model.ImportPath, len(model.Types))
	return model, nil
}

func extractType(tn *types.TypeName, pkg *types.Package) *TypeModel {
	named, ok := tn.Type().(*types.Named)
	if !ok || named.TypeParams().Len() > 0 {
		return nil
	}
	if _, isIface := named.Underlying().(*types.Interface); isIface {
		return nil
	}

	tm := &TypeModel{
		Name:   tn.Name(),
		GoType: named,
	}

	if st, ok := named.Underlying().(*types.Struct); ok {
		tm.IsStruct = true
		for i := 0; i < st.NumFields(); i++ {
			f := st.Field(i)
			if f.Exported() {
				tm.Fields = append(tm.Fields, FieldModel{
					Name:     f.Name(),
					GoType:   f.Type(),
					TypeStr:  types.TypeString(f.Type(), qualifier(pkg)),
					Embedded: f.Embedded(),
				})
			}
		}
	}

	mset := types.NewMethodSet(types.NewPointer(named))
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		fn, ok := sel.Obj().(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		m := methodModel(fn, true, pkg)
		m.Promoted = len(sel.Index()) > 1
		tm.Methods = append(tm.Methods, m)
	}

	tm.HasMethodMissing = hasHook(tm, "MethodMissing", 2, 2)
	tm.HasPropertyMissing = hasHook(tm, "PropertyMissing", 1, 2)
	tm.Properties = deriveProperties(tm)
	return tm
}

func methodModel(fn *types.Func, isMethod bool, pkg *types.Package) MethodModel {
	sig := fn.Type().(*types.Signature)
	m := MethodModel{Name: fn.Name(), Variadic: sig.Variadic()}
	if isMethod && sig.Recv() != nil {
		_, m.PointerRecv = sig.Recv().Type().(*types.Pointer)
	}
	q := qualifier(pkg)
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		m.Params = append(m.Params, ParamModel{Name: p.Name(), GoType: p.Type(), TypeStr: types.TypeString(p.Type(), q)})
	}
	results := sig.Results()
	for i := 0; i < results.Len(); i++ {
		r := results.At(i)
		m.Results = append(m.Results, ParamModel{Name: r.Name(), GoType: r.Type(), TypeStr: types.TypeString(r.Type(), q)})
	}
	if results.Len() > 0 {
		m.ReturnsErr = isErrorType(results.At(results.Len() - 1).Type())
	}
	return m
}

func hasHook(tm *TypeModel, name string, params, results int) bool {
	m := tm.Method(name)
	return m != nil && !m.Variadic && len(m.Params) == params && len(m.Results) == results && m.ReturnsErr
}

// deriveProperties applies the runtime's naming rules: exported fields,
// zero-argument Get/Is accessors with one result, and one-argument setters.
func deriveProperties(tm *TypeModel) []PropertyModel {
	props := make(map[string]*PropertyModel)
	get := func(name string) *PropertyModel {
		if p, ok := props[name]; ok {
			return p
		}
		p := &PropertyModel{Name: name}
		props[name] = p
		return p
	}

	for _, f := range tm.Fields {
		if f.Embedded {
			continue
		}
		p := get(reflection.PropertyName("Get" + f.Name))
		p.TypeStr, p.Readable, p.Writable, p.Field = f.TypeStr, true, true, true
	}
	for _, m := range tm.Methods {
		name := reflection.PropertyName(m.Name)
		if name == "" || m.Variadic {
			continue
		}
		switch {
		case m.Name[:3] == "Set" && len(m.Params) == 1:
			p := get(name)
			p.Writable = true
			if p.TypeStr == "" {
				p.TypeStr = m.Params[0].TypeStr
			}
		case m.Name[:3] != "Set" && len(m.Params) == 0 && len(m.Results) == 1:
			p := get(name)
			p.Readable = true
			p.TypeStr = m.Results[0].TypeStr
		}
	}

	out := make([]PropertyModel, 0, len(props))
	for _, p := range props {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func returnsType(fn *types.Func, t types.Type) bool {
	res := fn.Type().(*types.Signature).Results()
	if res.Len() == 0 {
		return false
	}
	r := res.At(0).Type()
	if ptr, ok := r.(*types.Pointer); ok {
		r = ptr.Elem()
	}
	return types.Identical(r, t)
}

func isErrorType(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func qualifier(pkg *types.Package) types.Qualifier {
	return func(other *types.Package) string {
		if other == pkg {
			return ""
		}
		return other.Name()
	}
}
