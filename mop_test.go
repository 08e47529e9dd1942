package mop

import (
	"context"
	"net"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/config"
	"github.com/chazu/mop/meta"
	"github.com/chazu/mop/profile"
	"github.com/chazu/mop/server"
)

type account struct{ Balance int }

func (a *account) Deposit(n int) int {
	a.Balance += n
	return a.Balance
}

func TestSystemLifecycle(t *testing.T) {
	t.Cleanup(Shutdown)
	rt := System()
	if System() != rt {
		t.Fatal("System is not stable")
	}

	acc := &account{}
	if v, err := Invoke(acc, "Deposit", 5); err != nil || v != 5 {
		t.Fatalf("Deposit = %v, %v", v, err)
	}
	if err := SetProperty(acc, "balance", 7); err != nil {
		t.Fatal(err)
	}
	if v, err := GetProperty(acc, "balance"); err != nil || v != 7 {
		t.Errorf("balance = %v, %v", v, err)
	}

	mc, err := rt.Registry().GetMetaclass(reflect.TypeFor[*account]())
	if err != nil {
		t.Fatal(err)
	}
	if err := mc.AddMetaMethod(meta.MustMethodFunc("Empty", func(a *account) bool { return a.Balance == 0 })); err != nil {
		t.Fatal(err)
	}
	epoch := rt.Registry().Epoch()

	Shutdown()
	if rt.Registry().Epoch() <= epoch {
		t.Error("shutdown must invalidate outstanding call sites")
	}
	if len(rt.Registry().Metaclasses()) != 0 {
		t.Error("shutdown left metaclasses behind")
	}
	if System() == rt {
		t.Error("System reused the shut down runtime")
	}
	if _, err := Invoke(acc, "Empty"); !meta.IsMissing(err) {
		t.Errorf("Empty after shutdown: %v", err)
	}
}

func TestSetSystemAndConfigure(t *testing.T) {
	t.Cleanup(Shutdown)
	mine := callsite.New(meta.NewRegistry())
	SetSystem(mine)
	if System() != mine {
		t.Error("SetSystem not honored")
	}

	cfg := config.Default()
	cfg.Dispatch.PolymorphicThreshold = 3
	rt := Configure(cfg)
	if System() != rt || rt.PolymorphicThreshold() != 3 {
		t.Errorf("Configure not honored, threshold %d", rt.PolymorphicThreshold())
	}
	if prev := SetSystem(nil); prev != rt {
		t.Error("SetSystem did not return the previous runtime")
	}
}

func TestServe(t *testing.T) {
	t.Cleanup(Shutdown)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback listener: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()

	conn, err := server.Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	client := server.NewClient(conn)

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	var resp *server.EpochResponse
	for {
		resp, err = client.Epoch(callCtx)
		if err == nil || callCtx.Err() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Epoch: %v", err)
	}
	if resp.RegistryID != System().Registry().ID().String() {
		t.Errorf("served registry %s", resp.RegistryID)
	}
}

func TestWriteProfile(t *testing.T) {
	t.Cleanup(Shutdown)
	cfg := config.Default()
	cfg.Profile.Output = filepath.Join(t.TempDir(), "run.profile")
	rt := Configure(cfg)

	a := rt.NewArray("mop_test", callsite.SiteSpec{Name: "Deposit", Kind: callsite.KindCall})
	acc := &account{}
	for i := 0; i < 2; i++ {
		if _, err := a.Site(0).Call(acc, 1); err != nil {
			t.Fatal(err)
		}
	}

	path, err := WriteProfile("")
	if err != nil {
		t.Fatal(err)
	}
	if path != cfg.Profile.Output {
		t.Errorf("wrote %s, want the configured output", path)
	}
	s, err := profile.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.RegistryID != rt.Registry().ID().String() || len(s.Sites) != 1 || s.Sites[0].Hits != 1 {
		t.Errorf("snapshot = %+v", s)
	}
}
