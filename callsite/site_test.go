package callsite

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/chazu/mop/meta"
)

type square struct{ side float64 }

func (s *square) Area() float64 { return s.side * s.side }

type circle struct{ r float64 }

func (c *circle) Area() float64 { return 3 * c.r * c.r }

type point struct{ X, Y int }

func (p *point) GetX() int { return p.X * 10 }

type box[T any] struct{ v T }

func (b box[T]) Get() T { return b.v }

var (
	squarePtr = reflect.TypeFor[*square]()
	circlePtr = reflect.TypeFor[*circle]()
)

func newSite(t *testing.T, spec SiteSpec, opts ...Option) (*Runtime, *CallSite) {
	t.Helper()
	rt := New(meta.NewRegistry(), opts...)
	return rt, rt.NewArray(t.Name(), spec).Site(0)
}

func callSite(name string) SiteSpec { return SiteSpec{Name: name, Kind: KindCall} }

func TestMonomorphicHit(t *testing.T) {
	_, cs := newSite(t, callSite("Area"))
	sq := &square{side: 2}
	for i := 0; i < 3; i++ {
		got, err := cs.Call(sq)
		if err != nil || got != 4.0 {
			t.Fatalf("call %d = %v, %v", i, got, err)
		}
	}
	if cs.State() != StateMonomorphic {
		t.Errorf("state = %s", cs.State())
	}
	if cs.Hits() != 2 || cs.Misses() != 1 {
		t.Errorf("hits %d misses %d, want 2 and 1", cs.Hits(), cs.Misses())
	}
	if typ, ok := cs.Cached(); !ok || typ != squarePtr {
		t.Errorf("cached %v", typ)
	}
}

func TestTypeSwitchMatchesFreshResolution(t *testing.T) {
	rt, cs := newSite(t, callSite("Area"))
	receivers := []any{&square{side: 2}, &circle{r: 1}, &square{side: 3}, &circle{r: 2}}
	for _, recv := range receivers {
		got, err := cs.Call(recv)
		if err != nil {
			t.Fatal(err)
		}
		mc, err := meta.NewRegistry().GetMetaclass(reflect.TypeOf(recv))
		if err != nil {
			t.Fatal(err)
		}
		want, err := mc.InvokeMethod(recv, "Area")
		if err != nil || got != want {
			t.Errorf("%T: site %v, fresh %v (%v)", recv, got, want, err)
		}
		if direct, _ := rt.InvokeMethod(recv, "Area"); direct != want {
			t.Errorf("%T: runtime %v, fresh %v", recv, direct, want)
		}
	}
	if typ, _ := cs.Cached(); typ != circlePtr {
		t.Errorf("latest type should win, cached %v", typ)
	}
}

func TestEpochInvalidation(t *testing.T) {
	rt, cs := newSite(t, callSite("Area"))
	sq := &square{side: 2}
	cs.Call(sq)
	cs.Call(sq)

	rt.Registry().SetCreationStrategy(meta.StrategyFunc(func(r *meta.Registry, typ reflect.Type) (meta.Metaclass, error) {
		return meta.NewDelegatingMetaclass(meta.NewObjectMetaclass(r, typ), meta.Forwarding{
			InvokeMethod: func(meta.Metaclass, any, string, []any, meta.Options) (any, error) {
				return "intercepted", nil
			},
		}), nil
	}))

	got, err := cs.Call(sq)
	if err != nil || got != "intercepted" {
		t.Fatalf("after strategy change = %v, %v", got, err)
	}
	if cs.Hits() != 1 || cs.Misses() != 2 {
		t.Errorf("hits %d misses %d, want 1 and 2", cs.Hits(), cs.Misses())
	}
	if cs.Observed() != 1 {
		t.Errorf("an epoch change is not a new receiver type, observed %d", cs.Observed())
	}
}

func TestAddMetaMethodReachesMonomorphicSite(t *testing.T) {
	rt := New(meta.NewRegistry())
	a := rt.NewArray("point",
		SiteSpec{Name: "x", Kind: KindGetProperty},
		SiteSpec{Name: "GetX", Kind: KindCall},
	)
	p := &point{X: 1}
	for i := 0; i < 2; i++ {
		if v, err := a.Site(0).GetProperty(p); err != nil || v != 10 {
			t.Fatalf("x = %v, %v", v, err)
		}
	}

	mc, err := rt.Registry().GetMetaclass(reflect.TypeFor[*point]())
	if err != nil {
		t.Fatal(err)
	}
	err = mc.AddMetaMethod(meta.NewMetaMethod("GetX", nil, func(recv any, _ []any) (any, error) {
		return -recv.(*point).X, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if v, err := a.Site(0).GetProperty(p); err != nil || v != -1 {
		t.Errorf("x after override = %v, %v", v, err)
	}
	if v, err := a.Site(1).Call(p); err != nil || v != -1 {
		t.Errorf("GetX after override = %v, %v", v, err)
	}
}

func TestMegamorphicBound(t *testing.T) {
	_, cs := newSite(t, callSite("Get"), WithPolymorphicThreshold(3))
	first := []any{box[int]{1}, box[string]{"s"}, box[bool]{true}}
	for _, recv := range first {
		if got, err := cs.Call(recv); err != nil || got != recv.(interface{ getAny() any }).getAny() {
			t.Fatalf("%T: %v, %v", recv, got, err)
		}
	}
	if cs.State() != StateMonomorphic {
		t.Fatalf("state after 3 types = %s", cs.State())
	}

	more := []any{box[float64]{1.5}, box[int8]{2}, box[uint]{3}, box[int16]{4}, box[int]{5}}
	for _, recv := range more {
		got, err := cs.Call(recv)
		if err != nil || got != recv.(interface{ getAny() any }).getAny() {
			t.Fatalf("%T: %v, %v", recv, got, err)
		}
		if cs.State() != StateMegamorphic {
			t.Fatalf("%T: state = %s", recv, cs.State())
		}
		if _, ok := cs.Cached(); ok {
			t.Fatal("megamorphic site holds an entry")
		}
		if cs.Observed() != 4 {
			t.Fatalf("observed = %d, want it frozen at 4", cs.Observed())
		}
	}

	cs.Reset()
	if cs.State() != StateUninitialized {
		t.Errorf("state after reset = %s", cs.State())
	}
}

func (b box[T]) getAny() any { return b.v }

func TestFailuresAreNotCached(t *testing.T) {
	_, cs := newSite(t, callSite("nope"))
	_, err := cs.Call(&square{})
	var mm *meta.MissingMethodError
	if !errors.As(err, &mm) {
		t.Fatalf("got %v, want MissingMethodError", err)
	}
	if cs.State() != StateUninitialized || cs.Observed() != 0 {
		t.Errorf("failure changed the site: %s, observed %d", cs.State(), cs.Observed())
	}
	if _, err := cs.Call(nil); !errors.Is(err, meta.ErrNilReceiver) {
		t.Errorf("nil receiver: %v", err)
	}
}

func TestSafeVariants(t *testing.T) {
	_, cs := newSite(t, callSite("Area"))
	if v, err := cs.CallSafe(nil); v != nil || err != nil {
		t.Errorf("CallSafe(nil) = %v, %v", v, err)
	}
	if v, err := cs.CallSafe((*square)(nil)); v != nil || err != nil {
		t.Errorf("CallSafe(typed nil) = %v, %v", v, err)
	}
	if cs.Hits()+cs.Misses() != 0 {
		t.Error("safe short-circuit touched the cache")
	}

	out, err := cs.CallSpreadSafe([]*square{{side: 1}, nil, {side: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[0] != 1.0 || out[1] != nil || out[2] != 9.0 {
		t.Errorf("spread = %v", out)
	}
	if out, err := cs.CallSpreadSafe(nil); out != nil || err != nil {
		t.Errorf("spread over nil = %v, %v", out, err)
	}
	if _, err := cs.CallSpreadSafe(&square{}); err == nil {
		t.Error("spread over a non-slice should fail")
	}

	rt := New(meta.NewRegistry())
	get := rt.NewArray("props", SiteSpec{Name: "y", Kind: KindGetProperty}).Site(0)
	ys, err := get.GetPropertySpreadSafe([2]*point{{Y: 1}, nil})
	if err != nil || len(ys) != 2 || ys[0] != 1 || ys[1] != nil {
		t.Errorf("property spread = %v, %v", ys, err)
	}
	if v, err := get.GetPropertySafe((*point)(nil)); v != nil || err != nil {
		t.Errorf("GetPropertySafe(nil) = %v, %v", v, err)
	}
}

func TestPrimitiveFastPath(t *testing.T) {
	rt, cs := newSite(t, callSite("plus"))
	for i := 0; i < 2; i++ {
		if v, err := cs.Call(3, 4); err != nil || v != 7 {
			t.Fatalf("3 plus 4 = %v, %v", v, err)
		}
	}
	if cs.Hits() != 1 {
		t.Errorf("hits = %d", cs.Hits())
	}
	if _, ok := rt.Registry().Lookup(reflect.TypeFor[int]()); ok {
		t.Error("the fast path should not need a metaclass")
	}

	mc, err := rt.Registry().GetMetaclass(reflect.TypeFor[int]())
	if err != nil {
		t.Fatal(err)
	}
	err = mc.AddMetaMethod(meta.NewMetaMethod("plus", []reflect.Type{reflect.TypeFor[int]()}, func(any, []any) (any, error) {
		return "custom", nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if v, err := cs.Call(3, 4); err != nil || v != "custom" {
		t.Errorf("after customization = %v, %v", v, err)
	}
	if v, err := rt.InvokeMethod(3, "plus", 4); err != nil || v != "custom" {
		t.Errorf("runtime after customization = %v, %v", v, err)
	}
}

func TestPropertyAndAttributeSites(t *testing.T) {
	rt := New(meta.NewRegistry())
	a := rt.NewArray("point",
		SiteSpec{Name: "y", Kind: KindSetProperty},
		SiteSpec{Name: "Y", Kind: KindGetAttribute},
		SiteSpec{Name: "X", Kind: KindSetAttribute},
	)
	p := &point{}
	if err := a.Site(0).SetProperty(p, 5); err != nil || p.Y != 5 {
		t.Fatalf("set y: %v, Y = %d", err, p.Y)
	}
	if err := a.Site(0).SetProperty(p, int8(6)); err != nil || p.Y != 6 {
		t.Fatalf("set y (int8): %v, Y = %d", err, p.Y)
	}
	if a.Site(0).Misses() != 2 {
		t.Errorf("a new value type must miss, misses = %d", a.Site(0).Misses())
	}
	if v, err := a.Site(1).GetAttribute(p); err != nil || v != 6 {
		t.Errorf("attribute Y = %v, %v", v, err)
	}
	if err := a.Site(2).SetAttribute(p, 2); err != nil || p.X != 2 {
		t.Errorf("attribute X: %v, X = %d", err, p.X)
	}
	if _, err := a.Site(0).GetProperty(p); err == nil {
		t.Error("a set-property site cannot read")
	}
}

func TestStaticAndConstructorSites(t *testing.T) {
	rt := New(meta.NewRegistry())
	mc, err := rt.Registry().GetMetaclass(squarePtr)
	if err != nil {
		t.Fatal(err)
	}
	unit, err := meta.StaticFunc("unit", func() *square { return &square{side: 1} })
	if err != nil {
		t.Fatal(err)
	}
	if err := mc.AddStaticMethod(unit); err != nil {
		t.Fatal(err)
	}
	if err := rt.Registry().RegisterConstructor(circlePtr, func(r float64) *circle { return &circle{r: r} }); err != nil {
		t.Fatal(err)
	}

	a := rt.NewArray("statics",
		SiteSpec{Name: "unit", Kind: KindCallStatic},
		SiteSpec{Name: "<init>", Kind: KindCallConstructor},
	)
	for i := 0; i < 2; i++ {
		v, err := a.Site(0).CallStatic(squarePtr)
		if err != nil || v.(*square).side != 1 {
			t.Fatalf("unit() = %v, %v", v, err)
		}
		v, err = a.Site(1).CallConstructor(circlePtr, 2)
		if err != nil || v.(*circle).r != 2 {
			t.Fatalf("new circle(2) = %v, %v", v, err)
		}
	}
	if a.Site(0).Hits() != 1 || a.Site(1).Hits() != 1 {
		t.Errorf("hits %d and %d", a.Site(0).Hits(), a.Site(1).Hits())
	}
	if v, err := rt.InvokeStatic(squarePtr, "unit"); err != nil || v.(*square).side != 1 {
		t.Errorf("InvokeStatic = %v, %v", v, err)
	}
	if v, err := rt.NewInstance(circlePtr, 1.5); err != nil || v.(*circle).r != 1.5 {
		t.Errorf("NewInstance = %v, %v", v, err)
	}
}

func TestWrappedReceiverBypassesCache(t *testing.T) {
	rt, cs := newSite(t, callSite("Area"))
	base, err := rt.Registry().GetMetaclass(squarePtr)
	if err != nil {
		t.Fatal(err)
	}
	pinned := meta.NewDelegatingMetaclass(base, meta.Forwarding{
		InvokeMethod: func(next meta.Metaclass, recv any, name string, args []any, opts meta.Options) (any, error) {
			v, err := next.InvokeMethodWith(recv, name, args, opts)
			return v.(float64) * 10, err
		},
	})
	sq := &square{side: 1}
	if v, err := cs.Call(meta.Wrap(sq, pinned)); err != nil || v != 10.0 {
		t.Errorf("wrapped call = %v, %v", v, err)
	}
	if cs.State() != StateUninitialized {
		t.Errorf("wrapped call filled the cache: %s", cs.State())
	}
	if v, _ := cs.Call(sq); v != 1.0 {
		t.Errorf("plain call = %v", v)
	}
}

func TestConcurrentCalls(t *testing.T) {
	_, cs := newSite(t, callSite("Area"))
	receivers := []any{&square{side: 2}, &circle{r: 1}}
	want := []any{4.0, 3.0}
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := (g + i) % 2
				got, err := cs.Call(receivers[k])
				if err != nil || got != want[k] {
					t.Errorf("goroutine %d: %v, %v; want %v", g, got, err, want[k])
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestMutationDuringDispatch(t *testing.T) {
	rt, cs := newSite(t, callSite("Area"))
	sq := &square{side: 2}
	mc, err := rt.Registry().GetMetaclass(squarePtr)
	if err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := cs.Call(sq); err != nil {
					t.Errorf("goroutine %d: %v", g, err)
					return
				}
			}
		}(g)
	}

	const overrides = 200
	for i := 0; i < overrides; i++ {
		err := mc.AddMetaMethod(meta.NewMetaMethod("Area", nil, func(any, []any) (any, error) {
			return i, nil
		}))
		if err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	if got, err := cs.Call(sq); err != nil || got != overrides-1 {
		t.Errorf("Area = %v, %v; want the last override %d", got, err, overrides-1)
	}
}

func TestCategoryChangeReachesSite(t *testing.T) {
	rt, cs := newSite(t, callSite("Extra"))
	cat := meta.NewCategory("extras")
	if err := cat.AddFunc("Extra", func(*square) string { return "v1" }); err != nil {
		t.Fatal(err)
	}
	rt.Registry().ActivateCategory(cat)
	sq := &square{side: 1}
	for i := 0; i < 2; i++ {
		if v, err := cs.Call(sq); err != nil || v != "v1" {
			t.Fatalf("Extra = %v, %v", v, err)
		}
	}

	if err := cat.AddFunc("Extra", func(*square) string { return "v2" }); err != nil {
		t.Fatal(err)
	}
	if v, err := cs.Call(sq); err != nil || v != "v2" {
		t.Errorf("site Extra = %v, %v; want v2", v, err)
	}
	if v, err := rt.InvokeMethod(sq, "Extra"); err != nil || v != "v2" {
		t.Errorf("uncached Extra = %v, %v; want v2", v, err)
	}
}

func TestIsStaticallyResolvable(t *testing.T) {
	rt := New(meta.NewRegistry())
	intType := reflect.TypeFor[int]()
	if !rt.IsStaticallyResolvable(squarePtr, "Area", nil) {
		t.Error("native Area should be static")
	}
	if !rt.IsStaticallyResolvable(intType, "plus", []reflect.Type{intType}) {
		t.Error("int plus should be static")
	}
	if rt.IsStaticallyResolvable(squarePtr, "nope", nil) {
		t.Error("a missing method is not static")
	}

	mc, err := rt.Registry().GetMetaclass(circlePtr)
	if err != nil {
		t.Fatal(err)
	}
	if err := mc.AddMetaMethod(meta.MustMethodFunc("Perimeter", func(c *circle) float64 { return 6 * c.r })); err != nil {
		t.Fatal(err)
	}
	if rt.IsStaticallyResolvable(circlePtr, "Area", nil) {
		t.Error("a modified metaclass is never static")
	}

	rt.Registry().ActivateCategory(meta.NewCategory("any"))
	if rt.IsStaticallyResolvable(squarePtr, "Area", nil) {
		t.Error("nothing is static while a category is active")
	}
}

func TestMethodClosure(t *testing.T) {
	rt := New(meta.NewRegistry())
	sq := &square{side: 2}
	area := rt.MethodClosure(sq, "Area")
	if v, err := area(); err != nil || v != 4.0 {
		t.Errorf("closure = %v, %v", v, err)
	}
	sq.side = 3
	if v, _ := area(); v != 9.0 {
		t.Errorf("closure after change = %v", v)
	}
}

func TestStats(t *testing.T) {
	rt := New(meta.NewRegistry(), WithPolymorphicThreshold(1))
	a := rt.NewArray("stats", callSite("Area"), callSite("Area"), callSite("Area"))
	a.Site(0).Call(&square{})
	a.Site(0).Call(&square{})
	a.Site(1).Call(&square{})
	a.Site(1).Call(&circle{})

	s := rt.Stats()
	if s.Arrays != 1 || s.Sites != 3 {
		t.Errorf("arrays %d sites %d", s.Arrays, s.Sites)
	}
	if s.Monomorphic != 1 || s.Megamorphic != 1 || s.Uninitialized != 1 {
		t.Errorf("states %+v", s)
	}
	if s.Hits != 1 || s.Misses != 3 || s.HitRate != 25 {
		t.Errorf("hits %d misses %d rate %v", s.Hits, s.Misses, s.HitRate)
	}
}

func TestKindText(t *testing.T) {
	for k := KindCall; k <= KindSetAttribute; k++ {
		b, err := k.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Kind
		if err := back.UnmarshalText(b); err != nil || back != k {
			t.Errorf("%s: round trip gave %s, %v", k, back, err)
		}
	}
	if _, err := ParseKind("bogus"); err == nil {
		t.Error("bogus kind parsed")
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func BenchmarkCallSiteMonomorphic(b *testing.B) {
	rt := New(meta.NewRegistry())
	cs := rt.NewArray("bench", callSite("Area")).Site(0)
	sq := &square{side: 2}
	b.ReportAllocs()
	for b.Loop() {
		cs.Call(sq)
	}
}

func BenchmarkRuntimeUncached(b *testing.B) {
	rt := New(meta.NewRegistry())
	sq := &square{side: 2}
	b.ReportAllocs()
	for b.Loop() {
		rt.InvokeMethod(sq, "Area")
	}
}

func BenchmarkPrimitiveFastPath(b *testing.B) {
	rt := New(meta.NewRegistry())
	cs := rt.NewArray("bench", callSite("plus")).Site(0)
	for b.Loop() {
		cs.Call(3, 4)
	}
}
