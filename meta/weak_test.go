package meta

import (
	"reflect"
	"runtime"
	"testing"
	"time"
)

type owner struct {
	name string
	data [4]int
}

func TestWeakTableGetSet(t *testing.T) {
	tbl := NewWeakTable(0)
	a, b := &owner{name: "a"}, &owner{name: "b"}
	if err := tbl.Set(a, 1); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Set(a, 2); err != nil {
		t.Fatal(err)
	}
	if v, ok := tbl.Get(a); !ok || v != 2 {
		t.Errorf("a = %v, %v", v, ok)
	}
	if _, ok := tbl.Get(b); ok {
		t.Error("b has no entry")
	}
	tbl.Delete(a)
	if tbl.Len() != 0 {
		t.Errorf("len = %d after delete", tbl.Len())
	}
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestWeakTableRejectsBadOwners(t *testing.T) {
	tbl := NewWeakTable(0)
	if err := tbl.Set(owner{}, 1); err == nil {
		t.Error("a struct value is not an owner")
	}
	if err := tbl.Set((*owner)(nil), 1); err == nil {
		t.Error("a nil pointer is not an owner")
	}
	if err := tbl.Set(&struct{}{}, 1); err == nil {
		t.Error("zero-size owners share an address")
	}
}

func fillWeak(tbl *WeakTable, n int) {
	for i := 0; i < n; i++ {
		if err := tbl.Set(&owner{name: "tmp"}, i); err != nil {
			panic(err)
		}
	}
}

func TestWeakTableForgetsCollectedOwners(t *testing.T) {
	tbl := NewWeakTable(1 << 20)
	keep := &owner{name: "keep"}
	if err := tbl.Set(keep, "kept"); err != nil {
		t.Fatal(err)
	}
	fillWeak(tbl, 64)

	deadline := time.Now().Add(5 * time.Second)
	for tbl.Len() > 1 && time.Now().Before(deadline) {
		runtime.GC()
		tbl.Prune()
		time.Sleep(time.Millisecond)
	}
	if n := tbl.Len(); n != 1 {
		t.Errorf("len = %d, want only the live owner", n)
	}
	if v, ok := tbl.Get(keep); !ok || v != "kept" {
		t.Errorf("live owner lost its entry: %v, %v", v, ok)
	}
	runtime.KeepAlive(keep)
}

func TestManagedProperty(t *testing.T) {
	reg := NewRegistry(WithWeakPruneInterval(8))
	mc := mustMetaclass(t, reg, reflect.TypeFor[*owner]())
	if err := mc.AddMetaBeanProperty(NewManagedProperty(reg, "tag", reflect.TypeFor[string](), "none")); err != nil {
		t.Fatal(err)
	}
	a, b := &owner{name: "a"}, &owner{name: "b"}
	if v, err := mc.GetProperty(a, "tag"); err != nil || v != "none" {
		t.Errorf("unset tag = %v, %v", v, err)
	}
	if err := mc.SetProperty(a, "tag", "red"); err != nil {
		t.Fatal(err)
	}
	if v, _ := mc.GetProperty(a, "tag"); v != "red" {
		t.Errorf("a.tag = %v", v)
	}
	if v, _ := mc.GetProperty(b, "tag"); v != "none" {
		t.Errorf("b.tag = %v", v)
	}
	if err := mc.SetProperty(a, "tag", 3); err == nil {
		t.Error("an int is not a string")
	}
}
