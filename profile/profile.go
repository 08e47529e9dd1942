// Package profile captures the dispatch state of a runtime as a snapshot
// that can be stored and compared later.
package profile

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chazu/mop/callsite"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("profile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the dispatch state of one runtime at one point in time.
type Snapshot struct {
	ID          string          `cbor:"1,keyasint"`
	RegistryID  string          `cbor:"2,keyasint"`
	Epoch       uint64          `cbor:"3,keyasint"`
	CapturedAt  time.Time       `cbor:"4,keyasint"`
	Threshold   int             `cbor:"5,keyasint"`
	Metaclasses []MetaclassInfo `cbor:"6,keyasint,omitempty"`
	Sites       []SiteInfo      `cbor:"7,keyasint,omitempty"`
}

// MetaclassInfo describes one metaclass.
type MetaclassInfo struct {
	Type          string `cbor:"1,keyasint"`
	Kind          string `cbor:"2,keyasint"`
	Modified      bool   `cbor:"3,keyasint"`
	Methods       int    `cbor:"4,keyasint"`
	StaticMethods int    `cbor:"5,keyasint"`
	Properties    int    `cbor:"6,keyasint"`
}

// SiteInfo describes one call site.
type SiteInfo struct {
	Owner    string `cbor:"1,keyasint"`
	Index    int    `cbor:"2,keyasint"`
	Name     string `cbor:"3,keyasint"`
	Kind     string `cbor:"4,keyasint"`
	State    string `cbor:"5,keyasint"`
	Hits     uint64 `cbor:"6,keyasint"`
	Misses   uint64 `cbor:"7,keyasint"`
	Observed int    `cbor:"8,keyasint"`
	Cached   string `cbor:"9,keyasint,omitempty"` // receiver type of the current entry
}

// Capture builds a snapshot of rt.
func Capture(rt *callsite.Runtime) *Snapshot {
	reg := rt.Registry()
	s := &Snapshot{
		ID:         uuid.New().String(),
		RegistryID: reg.ID().String(),
		Epoch:      reg.Epoch(),
		CapturedAt: time.Now().UTC(),
		Threshold:  rt.PolymorphicThreshold(),
	}
	for _, mc := range reg.Metaclasses() {
		s.Metaclasses = append(s.Metaclasses, MetaclassInfo{
			Type:          mc.Type().String(),
			Kind:          mc.Kind().String(),
			Modified:      mc.IsModified(),
			Methods:       len(mc.Methods()),
			StaticMethods: len(mc.StaticMethods()),
			Properties:    len(mc.Properties()),
		})
	}
	for _, a := range rt.Arrays() {
		for _, cs := range a.Sites() {
			info := SiteInfo{
				Owner:    a.Owner(),
				Index:    cs.Index(),
				Name:     cs.Name(),
				Kind:     cs.Kind().String(),
				State:    cs.State().String(),
				Hits:     cs.Hits(),
				Misses:   cs.Misses(),
				Observed: cs.Observed(),
			}
			if t, ok := cs.Cached(); ok {
				info.Cached = t.String()
			}
			s.Sites = append(s.Sites, info)
		}
	}
	return s
}

// Marshal serializes a Snapshot to canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("profile: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// WriteFile stores s at path.
func WriteFile(path string, s *Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("profile: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return Unmarshal(data)
}

// ---------------------------------------------------------------------------
// Reporting
// ---------------------------------------------------------------------------

// Totals sums the site counters of a snapshot.
type Totals struct {
	Sites         int
	Uninitialized int
	Monomorphic   int
	Megamorphic   int
	Hits          uint64
	Misses        uint64
}

// HitRate is the percentage of cached lookups that hit.
func (t Totals) HitRate() float64 {
	if total := t.Hits + t.Misses; total > 0 {
		return float64(t.Hits) * 100 / float64(total)
	}
	return 0
}

// Totals sums the site counters.
func (s *Snapshot) Totals() Totals {
	var t Totals
	for _, site := range s.Sites {
		t.Sites++
		switch site.State {
		case callsite.StateUninitialized.String():
			t.Uninitialized++
		case callsite.StateMonomorphic.String():
			t.Monomorphic++
		case callsite.StateMegamorphic.String():
			t.Megamorphic++
		}
		t.Hits += site.Hits
		t.Misses += site.Misses
	}
	return t
}

// Hottest returns up to n sites ordered by the number of dispatches.
func (s *Snapshot) Hottest(n int) []SiteInfo {
	sites := make([]SiteInfo, len(s.Sites))
	copy(sites, s.Sites)
	sort.SliceStable(sites, func(i, j int) bool {
		return sites[i].Hits+sites[i].Misses > sites[j].Hits+sites[j].Misses
	})
	if n >= 0 && n < len(sites) {
		sites = sites[:n]
	}
	return sites
}

// Summary renders a short human-readable report.
func (s *Snapshot) Summary() string {
	var b strings.Builder
	t := s.Totals()
	modified := 0
	for _, mc := range s.Metaclasses {
		if mc.Modified {
			modified++
		}
	}
	fmt.Fprintf(&b, "profile %s (registry %s, epoch %d)\n", s.ID, s.RegistryID, s.Epoch)
	fmt.Fprintf(&b, "captured %s\n", s.CapturedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "metaclasses: %d (%d modified)\n", len(s.Metaclasses), modified)
	fmt.Fprintf(&b, "call sites: %d (%d uninitialized, %d monomorphic, %d megamorphic, threshold %d)\n",
		t.Sites, t.Uninitialized, t.Monomorphic, t.Megamorphic, s.Threshold)
	fmt.Fprintf(&b, "hits %d, misses %d, hit rate %.1f%%\n", t.Hits, t.Misses, t.HitRate())
	for _, site := range s.Sites {
		if site.State == callsite.StateMegamorphic.String() {
			fmt.Fprintf(&b, "  megamorphic: %s[%d] %s %s\n", site.Owner, site.Index, site.Kind, site.Name)
		}
	}
	return b.String()
}
