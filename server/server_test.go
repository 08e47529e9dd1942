package server

import (
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/meta"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type counter struct{ N int }

func (c *counter) Inc() { c.N++ }

// startServer serves rt on an in-memory listener and returns a connected
// client.
func startServer(t *testing.T, rt *callsite.Runtime) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := New(rt)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})
	return NewClient(conn)
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
	a := rt.NewArray("test", callsite.SiteSpec{Name: "Inc", Kind: callsite.KindCall})
	c := &counter{}
	a.Site(0).Call(c)
	a.Site(0).Call(c)
	return rt
}

func bg(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSnapshotOverGRPC(t *testing.T) {
	rt := testRuntime(t)
	client := startServer(t, rt)

	snap, err := client.Snapshot(bg(t))
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.RegistryID != rt.Registry().ID().String() {
		t.Errorf("RegistryID = %q", snap.RegistryID)
	}
	if len(snap.Sites) != 1 {
		t.Fatalf("sites = %+v", snap.Sites)
	}
	site := snap.Sites[0]
	if site.Name != "Inc" || site.State != "monomorphic" || site.Hits != 1 || site.Misses != 1 {
		t.Errorf("site = %+v", site)
	}
}

func TestDescribe(t *testing.T) {
	client := startServer(t, testRuntime(t))

	d, err := client.Describe(bg(t), "*server.counter")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if d.Kind != "object" || !d.Modified {
		t.Errorf("kind %q modified %v", d.Kind, d.Modified)
	}
	origins := map[string]string{}
	for _, m := range d.Methods {
		origins[m.Name] = m.Origin
	}
	if origins["Inc"] != "native" || origins["Twice"] != "meta" {
		t.Errorf("methods = %+v", d.Methods)
	}
	found := false
	for _, p := range d.Properties {
		if p.Name == "n" && p.Readable && p.Writable {
			found = true
		}
	}
	if !found {
		t.Errorf("properties = %+v", d.Properties)
	}
}

func TestDescribeErrors(t *testing.T) {
	client := startServer(t, testRuntime(t))

	_, err := client.Describe(bg(t), "*server.missing")
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown type: %v, want NotFound", err)
	}
	_, err = client.Describe(bg(t), "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty type: %v, want InvalidArgument", err)
	}
}

func TestEpoch(t *testing.T) {
	rt := testRuntime(t)
	client := startServer(t, rt)

	before, err := client.Epoch(bg(t))
	if err != nil {
		t.Fatal(err)
	}
	if before.Epoch != rt.Registry().Epoch() {
		t.Errorf("epoch = %d, want %d", before.Epoch, rt.Registry().Epoch())
	}
	rt.Registry().SetCreationStrategy(nil)
	after, err := client.Epoch(bg(t))
	if err != nil {
		t.Fatal(err)
	}
	if after.Epoch <= before.Epoch || after.Generation <= before.Generation {
		t.Errorf("epoch %d -> %d, generation %d -> %d", before.Epoch, after.Epoch, before.Generation, after.Generation)
	}
}

func TestServiceDirect(t *testing.T) {
	svc := NewInspectService(testRuntime(t))
	snap, err := svc.Snapshot(context.Background(), &SnapshotRequest{})
	if err != nil || len(snap.Metaclasses) != 1 {
		t.Errorf("snapshot = %+v, %v", snap, err)
	}
}
