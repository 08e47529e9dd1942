// mop CLI - inspect packages, generate call-site arrays and read dispatch
// profiles.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/chazu/mop/config"
	"github.com/docopt/docopt-go"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

const version = "mop 0.1.0"

const usage = `mop

Usage:
  mop dump [-v...] PACKAGE [--type=NAME]
  mop gen [-v...] SITES [--out=FILE]
  mop profile [-v...] [--config=FILE] [PROFILE] [--top=N]
  mop inspect [-v...] [--config=FILE] [ADDRESS] [--describe=TYPE]
  mop serve [-v...] [--config=FILE] [ADDRESS]
  mop -h | --help
  mop --version

Arguments:
  PACKAGE   Import path or directory pattern of a Go package.
  SITES     TOML site list of one compilation unit.
  PROFILE   Dispatch profile written by a runtime. Defaults to profile.output.
  ADDRESS   Inspection service address. Defaults to server.address.

Options:
  --type=NAME      Show a single type in detail.
  --out=FILE       Write generated code to FILE instead of stdout.
  --top=N          Number of hottest call sites to list [default: 10].
  --config=FILE    Read configuration from FILE instead of searching for mop.toml.
  --describe=TYPE  Describe the metaclass of TYPE, e.g. *main.Point.
  -v               Increase log verbosity. Repeat for more.
  -h, --help       Display this help.
  --version        Print the version.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mop: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout io.Writer) error {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpAndExit}
	opts, err := parser.ParseArgs(usage, argv, version)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	verbosity := count(opts, "-v")
	if verbosity == 0 {
		verbosity = cfg.Log.Verbosity
	}
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(verbosity, logFile)

	out := newOutput(stdout)
	switch {
	case flag(opts, "dump"):
		pkg, _ := opts.String("PACKAGE")
		typ, _ := opts.String("--type")
		return dump(out, pkg, typ)
	case flag(opts, "gen"):
		sites, _ := opts.String("SITES")
		dest, _ := opts.String("--out")
		return gen(stdout, sites, dest)
	case flag(opts, "profile"):
		file, _ := opts.String("PROFILE")
		if file == "" {
			file = cfg.Profile.Output
		}
		top, err := opts.Int("--top")
		if err != nil {
			return fmt.Errorf("--top: %w", err)
		}
		return showProfile(out, file, top)
	case flag(opts, "inspect"):
		typ, _ := opts.String("--describe")
		return inspect(ctx, out, address(opts, cfg), typ)
	case flag(opts, "serve"):
		return serve(ctx, cfg, address(opts, cfg))
	}
	return nil
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

// count reads a repeatable flag, which docopt stores as an int.
func count(opts docopt.Opts, name string) int {
	switch v := opts[name].(type) {
	case int:
		return v
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func loadConfig(opts docopt.Opts) (*config.Config, error) {
	if path, _ := opts.String("--config"); path != "" {
		return config.LoadFile(path)
	}
	return config.FindAndLoad(".")
}

func address(opts docopt.Opts, cfg *config.Config) string {
	if addr, _ := opts.String("ADDRESS"); addr != "" {
		return addr
	}
	return cfg.Server.Address
}
