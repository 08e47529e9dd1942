package reflection

import "reflect"

// Signature is a candidate in overload selection.
type Signature interface {
	ParamTypes() []reflect.Type
	IsVariadic() bool
	// Depth is the distance from the receiver type to the declaring type.
	// Smaller is more specific.
	Depth() int
}

// Applicable reports whether an argument of type arg may be passed for a
// parameter of type param. A nil arg stands for a nil value.
func Applicable(arg, param reflect.Type) bool {
	if arg == nil {
		return Nilable(param)
	}
	if arg.AssignableTo(param) || Widens(arg, param) {
		return true
	}
	return sameBasicKind(arg, param) && !IsNumeric(arg) && arg.ConvertibleTo(param)
}

// MoreSpecific reports whether parameter type p is at least as specific as q.
func MoreSpecific(p, q reflect.Type) bool {
	if p == q {
		return true
	}
	if q.Kind() == reflect.Interface && p.Implements(q) {
		return true
	}
	return p.AssignableTo(q) || Widens(p, q)
}

// effectiveParams expands a signature to n positions, repeating the variadic
// element type.
func effectiveParams(s Signature, n int) []reflect.Type {
	params := s.ParamTypes()
	if !s.IsVariadic() {
		return params
	}
	fixed := len(params) - 1
	out := make([]reflect.Type, 0, n)
	out = append(out, params[:fixed]...)
	elem := params[fixed].Elem()
	for len(out) < n {
		out = append(out, elem)
	}
	return out
}

// ApplicableTo reports whether s accepts arguments of the given types.
func ApplicableTo(s Signature, args []reflect.Type) bool {
	params := s.ParamTypes()
	if !s.IsVariadic() {
		if len(params) != len(args) {
			return false
		}
		for i, a := range args {
			if !Applicable(a, params[i]) {
				return false
			}
		}
		return true
	}
	fixed := len(params) - 1
	if len(args) < fixed {
		return false
	}
	for i := 0; i < fixed; i++ {
		if !Applicable(args[i], params[i]) {
			return false
		}
	}
	if len(args) == len(params) && args[fixed] != nil && args[fixed].AssignableTo(params[fixed]) {
		return true
	}
	elem := params[fixed].Elem()
	for _, a := range args[fixed:] {
		if !Applicable(a, elem) {
			return false
		}
	}
	return true
}

// atLeastAsSpecific compares two applicable candidates position by position.
func atLeastAsSpecific(a, b []reflect.Type) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if !MoreSpecific(a[i], b[i]) {
			return false
		}
	}
	return true
}

func exactMatches(params, args []reflect.Type) int {
	n := 0
	for i, a := range args {
		if i < len(params) && a == params[i] {
			n++
		}
	}
	return n
}

// SelectMostSpecific picks the candidate for args. When no candidate is
// applicable found is false. When several candidates survive every
// tie-break, found is false and ambiguous lists them.
//
// Ties between equally specific candidates go to the smaller declaring
// depth, then to the candidate with more exact parameter matches, then to
// fixed arity over variadic.
func SelectMostSpecific[S Signature](cands []S, args []reflect.Type) (best S, ambiguous []S, found bool) {
	var app []S
	for _, c := range cands {
		if ApplicableTo(c, args) {
			app = append(app, c)
		}
	}
	switch len(app) {
	case 0:
		return best, nil, false
	case 1:
		return app[0], nil, true
	}

	eff := make([][]reflect.Type, len(app))
	for i, c := range app {
		eff[i] = effectiveParams(c, len(args))
	}

	var maximal []int
	for i := range app {
		dominated := false
		for j := range app {
			if i == j {
				continue
			}
			if atLeastAsSpecific(eff[j], eff[i]) && !atLeastAsSpecific(eff[i], eff[j]) {
				dominated = true
				break
			}
		}
		if !dominated {
			maximal = append(maximal, i)
		}
	}

	maximal = keepBest(maximal, func(i int) int { return -app[i].Depth() })
	maximal = keepBest(maximal, func(i int) int { return exactMatches(eff[i], args) })
	maximal = keepBest(maximal, func(i int) int {
		if app[i].IsVariadic() {
			return 0
		}
		return 1
	})

	if len(maximal) == 1 {
		return app[maximal[0]], nil, true
	}
	for _, i := range maximal {
		ambiguous = append(ambiguous, app[i])
	}
	return best, ambiguous, false
}

// keepBest keeps the indexes with the highest score.
func keepBest(idx []int, score func(int) int) []int {
	if len(idx) < 2 {
		return idx
	}
	top := score(idx[0])
	for _, i := range idx[1:] {
		top = max(top, score(i))
	}
	out := idx[:0:0]
	for _, i := range idx {
		if score(i) == top {
			out = append(out, i)
		}
	}
	return out
}

// TypesOf returns the dynamic types of args, with nil for nil values.
func TypesOf(args []any) []reflect.Type {
	if len(args) == 0 {
		return nil
	}
	out := make([]reflect.Type, len(args))
	for i, a := range args {
		if a != nil {
			out[i] = reflect.TypeOf(a)
		}
	}
	return out
}
