package callsite

import "github.com/chazu/mop/meta"

// SiteSpec describes one dynamic operation of a compilation unit. The
// field tags let site lists be kept in TOML.
type SiteSpec struct {
	Name       string `toml:"name"`
	Kind       Kind   `toml:"kind"`
	FromInside bool   `toml:"from-inside,omitempty"`
	UseSuper   bool   `toml:"use-super,omitempty"`
}

// Options returns the dispatch options every call through the site uses.
func (s SiteSpec) Options() meta.Options {
	return meta.Options{FromInside: s.FromInside, UseSuper: s.UseSuper}
}

// Array holds the call sites of one compilation unit. Compiled code
// allocates it once, through Runtime.NewArray, and addresses sites by the
// index of their spec.
type Array struct {
	owner string
	rt    *Runtime
	sites []*CallSite
}

// Site returns the call site at index i. It panics when i is out of range,
// as indexing a slice would.
func (a *Array) Site(i int) *CallSite { return a.sites[i] }

func (a *Array) Owner() string     { return a.owner }
func (a *Array) Len() int          { return len(a.sites) }
func (a *Array) Runtime() *Runtime { return a.rt }

// Sites returns the call sites in index order.
func (a *Array) Sites() []*CallSite {
	out := make([]*CallSite, len(a.sites))
	copy(out, a.sites)
	return out
}

// Specs returns the specs the array was created from.
func (a *Array) Specs() []SiteSpec {
	out := make([]SiteSpec, len(a.sites))
	for i, cs := range a.sites {
		out[i] = cs.spec
	}
	return out
}
