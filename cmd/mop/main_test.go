package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/meta"
	"github.com/chazu/mop/profile"
	"github.com/chazu/mop/server"
)

type counter struct{ N int }

func (c *counter) Inc() { c.N++ }

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	if err := run(ctx, args, &out); err != nil {
		t.Fatalf("mop %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func hasLine(out, prefix, suffix string) bool {
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, prefix) && strings.HasSuffix(l, suffix) {
			return true
		}
	}
	return false
}

func testRuntime(t *testing.T) *callsite.Runtime {
	t.Helper()
	rt := callsite.New(meta.NewRegistry())
	mc, err := rt.Registry().GetMetaclass(reflect.TypeFor[*counter]())
	if err != nil {
		t.Fatal(err)
	}
	if err := mc.AddMetaMethod(meta.MustMethodFunc("Twice", func(c *counter) int { return 2 * c.N })); err != nil {
		t.Fatal(err)
	}
	a := rt.NewArray("cli", callsite.SiteSpec{Name: "Inc", Kind: callsite.KindCall})
	c := &counter{}
	for i := 0; i < 3; i++ {
		if _, err := a.Site(0).Call(c); err != nil {
			t.Fatal(err)
		}
	}
	return rt
}

func TestDumpPackage(t *testing.T) {
	out := runCLI(t, "dump", "../../introspect/testdata/shapes")
	if !strings.HasPrefix(out, "package shapes (") {
		t.Errorf("header: %q", out)
	}
	if !hasLine(out, "Ghost\t", "\tmethodMissing") {
		t.Errorf("Ghost hook missing:\n%s", out)
	}
	if !hasLine(out, "Rect\t", "") {
		t.Errorf("Rect missing:\n%s", out)
	}
}

func TestDumpType(t *testing.T) {
	out := runCLI(t, "dump", "../../introspect/testdata/shapes", "--type=Rect")
	for _, want := range [][2]string{
		{"String\t()\tvalue\t", ""},
		{"Sum\t(...float64)\tpointer\t", ""},
		{"label\tstring\trw\tfield", ""},
		{"diagonal\tfloat64\tr\taccessor", ""},
	} {
		if !hasLine(out, want[0], want[1]) {
			t.Errorf("no line %q in:\n%s", want[0], out)
		}
	}
}

func TestDumpUnknownType(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"dump", "../../introspect/testdata/shapes", "--type=Nope"}, &out)
	if err == nil {
		t.Fatal("expected an error for an unknown type")
	}
}

func TestGen(t *testing.T) {
	dir := t.TempDir()
	sites := filepath.Join(dir, "sites.toml")
	unit := `
package = "shapes"

[[site]]
name = "Area"
kind = "call"
`
	if err := os.WriteFile(sites, []byte(unit), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runCLI(t, "gen", sites)
	if !strings.Contains(out, "package shapes") || !strings.Contains(out, "callSitesSpecs") {
		t.Errorf("generated:\n%s", out)
	}

	dest := filepath.Join(dir, "sites_gen.go")
	if out := runCLI(t, "gen", sites, "--out="+dest); out != "" {
		t.Errorf("gen --out wrote to stdout: %q", out)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "SiteArea") {
		t.Errorf("file:\n%s", data)
	}
}

func TestProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mop.profile")
	if err := profile.WriteFile(path, profile.Capture(testRuntime(t))); err != nil {
		t.Fatal(err)
	}

	out := runCLI(t, "profile", path, "--top=1")
	if !strings.Contains(out, "call sites: 1 (0 uninitialized, 1 monomorphic") {
		t.Errorf("summary:\n%s", out)
	}
	if !hasLine(out, "cli[0]\tcall Inc\tmonomorphic\t2\t1\t", "") {
		t.Errorf("site table:\n%s", out)
	}

	cfg := filepath.Join(t.TempDir(), "mop.toml")
	if err := os.WriteFile(cfg, []byte("[profile]\noutput = \""+filepath.ToSlash(path)+"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if out := runCLI(t, "profile", "--config="+cfg); !strings.Contains(out, "call sites: 1") {
		t.Errorf("configured profile:\n%s", out)
	}
}

func TestInspect(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback listener: %v", err)
	}
	srv := server.New(testRuntime(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	addr := lis.Addr().String()

	out := runCLI(t, "inspect", addr)
	if !strings.Contains(out, "call sites: 1") || !hasLine(out, "cli[0]\tcall Inc\t", "") {
		t.Errorf("snapshot:\n%s", out)
	}

	out = runCLI(t, "inspect", addr, "--describe=*main.counter")
	if !strings.HasPrefix(out, "*main.counter (object, modified: true)") {
		t.Errorf("header:\n%s", out)
	}
	if !hasLine(out, "Twice\t", "\tmeta") || !hasLine(out, "Inc\t", "\tnative") {
		t.Errorf("methods:\n%s", out)
	}
}
