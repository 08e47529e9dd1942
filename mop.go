// Package mop is a dynamic dispatch runtime for Go values: per-type
// metaclasses that can be extended at run time, call sites that cache
// resolutions, and a reflective member cache underneath.
//
// Most programs create their own runtime with callsite.New and pass it
// around. System offers a process-wide runtime for code that cannot.
package mop

import (
	"context"
	"sync"

	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/config"
	"github.com/chazu/mop/profile"
	"github.com/chazu/mop/server"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mop")

var (
	systemMu sync.Mutex
	system   *callsite.Runtime
	settings *config.Config
)

// System returns the process runtime, creating it on first use from the
// nearest mop.toml above the working directory.
func System() *callsite.Runtime {
	systemMu.Lock()
	defer systemMu.Unlock()
	if system == nil {
		cfg, err := config.FindAndLoad(".")
		if err != nil {
			log.Warningf("using default configuration: %s", err)
			cfg = config.Default()
		}
		settings = cfg
		system = cfg.NewRuntime()
		log.Infof("system runtime created (registry %s)", system.Registry().ID())
	}
	return system
}

// SetSystem installs rt as the process runtime and returns the previous
// one, which may be nil.
func SetSystem(rt *callsite.Runtime) *callsite.Runtime {
	systemMu.Lock()
	defer systemMu.Unlock()
	prev := system
	system = rt
	return prev
}

// Configure replaces the process runtime with one built from cfg.
func Configure(cfg *config.Config) *callsite.Runtime {
	rt := cfg.NewRuntime()
	systemMu.Lock()
	settings = cfg
	system = rt
	systemMu.Unlock()
	return rt
}

// Shutdown resets the registry of the process runtime and forgets it. The
// next call to System starts afresh.
func Shutdown() {
	systemMu.Lock()
	rt := system
	system, settings = nil, nil
	systemMu.Unlock()
	if rt != nil {
		rt.Registry().Reset()
		log.Infof("system runtime shut down (registry %s)", rt.Registry().ID())
	}
}

// configured returns the settings of the process runtime, or the defaults
// when it was installed with SetSystem.
func configured() *config.Config {
	systemMu.Lock()
	defer systemMu.Unlock()
	if settings == nil {
		return config.Default()
	}
	return settings
}

// WriteProfile captures the process runtime and writes the snapshot to path,
// or to the configured profile output when path is empty. It returns the
// path written.
func WriteProfile(path string) (string, error) {
	rt := System()
	if path == "" {
		path = configured().Profile.Output
	}
	if err := profile.WriteFile(path, profile.Capture(rt)); err != nil {
		return "", err
	}
	log.Infof("dispatch profile written to %s", path)
	return path, nil
}

// Serve exposes the process runtime over gRPC until ctx is done. An empty
// addr uses the configured server address.
func Serve(ctx context.Context, addr string) error {
	rt := System()
	if addr == "" {
		addr = configured().Server.Address
	}
	return server.New(rt).ListenAndServe(ctx, addr)
}

// ---------------------------------------------------------------------------
// Uncached dispatch through the process runtime
// ---------------------------------------------------------------------------

// Invoke calls method name on recv through the process runtime.
func Invoke(recv any, name string, args ...any) (any, error) {
	return System().InvokeMethod(recv, name, args...)
}

// GetProperty reads property name of recv through the process runtime.
func GetProperty(recv any, name string) (any, error) {
	return System().GetProperty(recv, name)
}

// SetProperty writes property name of recv through the process runtime.
func SetProperty(recv any, name string, value any) error {
	return System().SetProperty(recv, name, value)
}
