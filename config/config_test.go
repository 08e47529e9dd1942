package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[dispatch]
polymorphic-threshold = 4
keep-native-metaclasses = true
weak-prune-interval = 64

[log]
verbosity = 2
file = "mop.log"

[profile]
output = "out.cbor"

[server]
address = ":9000"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Dispatch.PolymorphicThreshold != 4 {
		t.Errorf("polymorphic-threshold = %d, want 4", c.Dispatch.PolymorphicThreshold)
	}
	if !c.Dispatch.KeepNativeMetaclasses {
		t.Error("keep-native-metaclasses = false, want true")
	}
	if c.Dispatch.WeakPruneInterval != 64 {
		t.Errorf("weak-prune-interval = %d, want 64", c.Dispatch.WeakPruneInterval)
	}
	if c.Log.Verbosity != 2 || c.Log.File != "mop.log" {
		t.Errorf("log = %+v", c.Log)
	}
	if c.Profile.Output != "out.cbor" {
		t.Errorf("profile output = %q, want out.cbor", c.Profile.Output)
	}
	if c.Server.Address != ":9000" {
		t.Errorf("server address = %q, want :9000", c.Server.Address)
	}
	if !filepath.IsAbs(c.Path) {
		t.Errorf("path %q is not absolute", c.Path)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[log]
verbosity = 1
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d := Default()
	if c.Dispatch != d.Dispatch {
		t.Errorf("dispatch = %+v, want defaults %+v", c.Dispatch, d.Dispatch)
	}
	if c.Server.Address != d.Server.Address {
		t.Errorf("server address = %q", c.Server.Address)
	}
}

func TestInvalidConfigNamesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[dispatch]
polymorphic-threshold = 0
weak-prune-interval = -1
`)
	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	for _, want := range []string{FileName, "polymorphic-threshold", "weak-prune-interval"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestUnknownKey(t *testing.T) {
	if _, err := Parse([]byte("[dispatch]\nthreshold = 3\n")); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[server]\naddress = \"found\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Address != "found" {
		t.Errorf("address = %q, want found", c.Server.Address)
	}
}

func TestNewRuntime(t *testing.T) {
	c := Default()
	c.Dispatch.PolymorphicThreshold = 2
	c.Dispatch.KeepNativeMetaclasses = true
	rt := c.NewRuntime()
	if rt.PolymorphicThreshold() != 2 {
		t.Errorf("threshold = %d", rt.PolymorphicThreshold())
	}
	if !rt.Registry().KeepNativeMetaclasses() {
		t.Error("keep-native not applied")
	}
	if rt.Registry().WeakPruneInterval() != c.Dispatch.WeakPruneInterval {
		t.Errorf("prune interval = %d", rt.Registry().WeakPruneInterval())
	}
}
