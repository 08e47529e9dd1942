package profile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/meta"
)

type cell struct{ v int }

func (c *cell) Value() int { return c.v }

type other struct{}

func (other) Value() int { return 0 }

func sampleRuntime(t *testing.T) *callsite.Runtime {
	t.Helper()
	rt := callsite.New(meta.NewRegistry(), callsite.WithPolymorphicThreshold(1))
	a := rt.NewArray("sample",
		callsite.SiteSpec{Name: "Value", Kind: callsite.KindCall},
		callsite.SiteSpec{Name: "Value", Kind: callsite.KindCall},
		callsite.SiteSpec{Name: "v", Kind: callsite.KindGetAttribute},
	)
	c := &cell{v: 1}
	for i := 0; i < 3; i++ {
		if _, err := a.Site(0).Call(c); err != nil {
			t.Fatal(err)
		}
	}
	a.Site(1).Call(c)
	a.Site(1).Call(other{})
	return rt
}

func TestCapture(t *testing.T) {
	s := Capture(sampleRuntime(t))
	if len(s.Sites) != 3 {
		t.Fatalf("sites = %d, want 3", len(s.Sites))
	}
	first := s.Sites[0]
	if first.Owner != "sample" || first.Name != "Value" || first.Kind != "call" {
		t.Errorf("site 0 = %+v", first)
	}
	if first.State != "monomorphic" || first.Hits != 2 || first.Misses != 1 || first.Cached != "*profile.cell" {
		t.Errorf("site 0 counters = %+v", first)
	}
	if s.Sites[1].State != "megamorphic" || s.Sites[1].Cached != "" {
		t.Errorf("site 1 = %+v", s.Sites[1])
	}
	if len(s.Metaclasses) != 2 {
		t.Errorf("metaclasses = %+v", s.Metaclasses)
	}

	tot := s.Totals()
	if tot.Sites != 3 || tot.Uninitialized != 1 || tot.Monomorphic != 1 || tot.Megamorphic != 1 {
		t.Errorf("totals = %+v", tot)
	}
	if tot.HitRate() != 40 {
		t.Errorf("hit rate = %v, want 40", tot.HitRate())
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	s := Capture(sampleRuntime(t))
	data, err := Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != s.ID || back.Epoch != s.Epoch || !back.CapturedAt.Equal(s.CapturedAt) {
		t.Errorf("header differs: %+v", back)
	}
	if len(back.Sites) != len(s.Sites) || back.Sites[0] != s.Sites[0] {
		t.Errorf("sites differ: %+v", back.Sites)
	}

	again, err := Marshal(back)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("encoding is not deterministic")
	}

	if _, err := Unmarshal([]byte{0xff}); err == nil {
		t.Error("garbage decoded")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.profile")
	s := Capture(sampleRuntime(t))
	if err := WriteFile(path, s); err != nil {
		t.Fatal(err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != s.ID {
		t.Errorf("id = %s, want %s", back.ID, s.ID)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file read")
	}
}

func TestSummaryAndHottest(t *testing.T) {
	s := Capture(sampleRuntime(t))
	sum := s.Summary()
	for _, want := range []string{"call sites: 3", "1 megamorphic", "megamorphic: sample[1] call Value"} {
		if !strings.Contains(sum, want) {
			t.Errorf("summary missing %q:\n%s", want, sum)
		}
	}
	hot := s.Hottest(1)
	if len(hot) != 1 || hot[0].Index != 0 {
		t.Errorf("hottest = %+v", hot)
	}
}
