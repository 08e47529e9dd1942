// Package callsitegen emits the Go declaration of a compilation unit's
// call-site array from a TOML site list.
package callsitegen

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/reflection"
	"github.com/dave/jennifer/jen"
)

const callsitePath = "github.com/chazu/mop/callsite"

// Unit is one compilation unit's site list.
type Unit struct {
	Package string `toml:"package"`
	Owner   string `toml:"owner"`
	Var     string `toml:"var"` // prefix of the generated identifiers
	Sites   []Site `toml:"site"`
}

// Site is one entry of a site list.
type Site struct {
	Name       string        `toml:"name"`
	Kind       callsite.Kind `toml:"kind"`
	FromInside bool          `toml:"from-inside"`
	UseSuper   bool          `toml:"use-super"`
	Const      string        `toml:"const"` // index constant; derived from Name when empty
}

// ParseUnit decodes a site list.
func ParseUnit(data []byte) (*Unit, error) {
	var u Unit
	if _, err := toml.Decode(string(data), &u); err != nil {
		return nil, err
	}
	if u.Var == "" {
		u.Var = "callSites"
	}
	if u.Owner == "" {
		u.Owner = u.Package
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// LoadUnit reads a site list file.
func LoadUnit(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	u, err := ParseUnit(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return u, nil
}

// Validate checks names and fills in derived index constants.
func (u *Unit) Validate() error {
	var errs []error
	if !token.IsIdentifier(u.Package) {
		errs = append(errs, fmt.Errorf("package %q is not an identifier", u.Package))
	}
	if !token.IsIdentifier(u.Var) {
		errs = append(errs, fmt.Errorf("var %q is not an identifier", u.Var))
	}
	if len(u.Sites) == 0 {
		errs = append(errs, errors.New("no call sites"))
	}
	seen := make(map[string]int)
	for i := range u.Sites {
		s := &u.Sites[i]
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("site %d has no name", i))
			continue
		}
		if s.Const == "" {
			s.Const = constName(s.Name)
			if _, dup := seen[s.Const]; dup {
				s.Const += strconv.Itoa(i)
			}
		}
		if !token.IsIdentifier(s.Const) {
			errs = append(errs, fmt.Errorf("site %d: constant %q is not an identifier", i, s.Const))
		}
		if j, dup := seen[s.Const]; dup {
			errs = append(errs, fmt.Errorf("sites %d and %d share constant %s", j, i, s.Const))
		}
		seen[s.Const] = i
	}
	return errors.Join(errs...)
}

func constName(name string) string {
	var b strings.Builder
	b.WriteString("Site")
	for _, r := range reflection.ExportedName(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Specs returns the site specs in index order.
func (u *Unit) Specs() []callsite.SiteSpec {
	out := make([]callsite.SiteSpec, len(u.Sites))
	for i, s := range u.Sites {
		out[i] = callsite.SiteSpec{Name: s.Name, Kind: s.Kind, FromInside: s.FromInside, UseSuper: s.UseSuper}
	}
	return out
}

// ---------------------------------------------------------------------------
// Generation
// ---------------------------------------------------------------------------

func kindIdent(k callsite.Kind) string {
	return "Kind" + reflection.ExportedName(k.String())
}

// Generate builds the source file for u.
func Generate(u *Unit) *jen.File {
	specsVar := u.Var + "Specs"
	ctor := "new" + reflection.ExportedName(u.Var)

	f := jen.NewFile(u.Package)
	f.HeaderComment("Code generated by mop gen. DO NOT EDIT.")
	f.ImportName(callsitePath, "callsite")

	consts := make([]jen.Code, len(u.Sites))
	specs := make([]jen.Code, len(u.Sites))
	for i, s := range u.Sites {
		consts[i] = jen.Id(s.Const).Op("=").Lit(i)

		fields := jen.Dict{
			jen.Id("Name"): jen.Lit(s.Name),
			jen.Id("Kind"): jen.Qual(callsitePath, kindIdent(s.Kind)),
		}
		if s.FromInside {
			fields[jen.Id("FromInside")] = jen.True()
		}
		if s.UseSuper {
			fields[jen.Id("UseSuper")] = jen.True()
		}
		specs[i] = jen.Values(fields)
	}

	f.Commentf("Call site indexes of %s.", u.Owner)
	f.Const().Defs(consts...)

	f.Commentf("%s lists the call sites of %s in index order.", specsVar, u.Owner)
	f.Var().Id(specsVar).Op("=").Index().Qual(callsitePath, "SiteSpec").Values(specs...)

	f.Commentf("%s allocates the call-site array of %s on rt.", ctor, u.Owner)
	f.Func().Id(ctor).
		Params(jen.Id("rt").Op("*").Qual(callsitePath, "Runtime")).
		Op("*").Qual(callsitePath, "Array").
		Block(
			jen.Return(jen.Id("rt").Dot("NewArray").Call(jen.Lit(u.Owner), jen.Id(specsVar).Op("..."))),
		)
	return f
}

// Render returns the formatted source for u.
func Render(u *Unit) ([]byte, error) {
	var buf bytes.Buffer
	if err := Generate(u).Render(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", u.Owner, err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders u to path.
func WriteFile(u *Unit, path string) error {
	src, err := Render(u)
	if err != nil {
		return err
	}
	return os.WriteFile(path, src, 0644)
}
