package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/mop"
	"github.com/chazu/mop/callsitegen"
	"github.com/chazu/mop/config"
	"github.com/chazu/mop/introspect"
	"github.com/chazu/mop/profile"
	"github.com/chazu/mop/server"
)

// ---------------------------------------------------------------------------
// dump
// ---------------------------------------------------------------------------

func dump(out *output, pattern, typeName string) error {
	var filter map[string]bool
	if typeName != "" {
		filter = map[string]bool{typeName: true}
	}
	model, err := introspect.Load(pattern, filter)
	if err != nil {
		return err
	}
	if typeName == "" {
		rows := make([][]string, 0, len(model.Types))
		for _, t := range model.Types {
			hooks := ""
			if t.HasMethodMissing {
				hooks = "methodMissing"
			}
			rows = append(rows, []string{t.Name, strconv.Itoa(len(t.Methods)), strconv.Itoa(len(t.Properties)), hooks})
		}
		out.printf("package %s (%s)\n", model.Name, model.ImportPath)
		out.table([]string{"TYPE", "METHODS", "PROPERTIES", "HOOKS"}, rows)
		return nil
	}

	t := model.Type(typeName)
	if t == nil {
		return fmt.Errorf("no exported type %s in %s", typeName, model.ImportPath)
	}
	out.printf("type %s.%s\n\n", model.Name, t.Name)
	var rows [][]string
	for _, m := range t.Methods {
		params := make([]string, len(m.Params))
		for i, p := range m.Params {
			params[i] = p.TypeStr
		}
		if m.Variadic && len(params) > 0 {
			params[len(params)-1] = "..." + strings.TrimPrefix(params[len(params)-1], "[]")
		}
		static := "dynamic"
		if t.IsStaticallyResolvable(m.Name, m.Arity()) {
			static = "static"
		}
		rows = append(rows, []string{m.Name, "(" + strings.Join(params, ", ") + ")", recvKind(m), static})
	}
	out.table([]string{"METHOD", "PARAMS", "RECEIVER", "BINDING"}, rows)

	out.printf("\n")
	rows = rows[:0]
	for _, p := range t.Properties {
		access := ""
		if p.Readable {
			access += "r"
		}
		if p.Writable {
			access += "w"
		}
		source := "accessor"
		if p.Field {
			source = "field"
		}
		rows = append(rows, []string{p.Name, p.TypeStr, access, source})
	}
	out.table([]string{"PROPERTY", "TYPE", "ACCESS", "SOURCE"}, rows)
	return nil
}

func recvKind(m introspect.MethodModel) string {
	switch {
	case m.Promoted:
		return "promoted"
	case m.PointerRecv:
		return "pointer"
	}
	return "value"
}

// ---------------------------------------------------------------------------
// gen
// ---------------------------------------------------------------------------

func gen(stdout io.Writer, sites, dest string) error {
	u, err := callsitegen.LoadUnit(sites)
	if err != nil {
		return err
	}
	if dest != "" {
		return callsitegen.WriteFile(u, dest)
	}
	src, err := callsitegen.Render(u)
	if err != nil {
		return err
	}
	_, err = stdout.Write(src)
	return err
}

// ---------------------------------------------------------------------------
// profile
// ---------------------------------------------------------------------------

func showProfile(out *output, file string, top int) error {
	s, err := profile.ReadFile(file)
	if err != nil {
		return err
	}
	out.printf("%s\n", s.Summary())
	printSites(out, s.Hottest(top))
	return nil
}

func printSites(out *output, sites []profile.SiteInfo) {
	rows := make([][]string, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, []string{
			fmt.Sprintf("%s[%d]", site.Owner, site.Index),
			site.Kind + " " + site.Name,
			site.State,
			strconv.FormatUint(site.Hits, 10),
			strconv.FormatUint(site.Misses, 10),
			site.Cached,
		})
	}
	out.table([]string{"SITE", "OPERATION", "STATE", "HITS", "MISSES", "CACHED"}, rows)
}

// ---------------------------------------------------------------------------
// inspect and serve
// ---------------------------------------------------------------------------

func inspect(ctx context.Context, out *output, addr, typeName string) error {
	conn, err := server.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	client := server.NewClient(conn)

	if typeName != "" {
		d, err := client.Describe(ctx, typeName)
		if err != nil {
			return err
		}
		out.printf("%s (%s, modified: %v)\n\n", d.Type, d.Kind, d.Modified)
		var rows [][]string
		for _, m := range d.Methods {
			rows = append(rows, []string{m.Name, "(" + strings.Join(m.Params, ", ") + ")", m.Origin})
		}
		for _, m := range d.StaticMethods {
			rows = append(rows, []string{m.Name, "(" + strings.Join(m.Params, ", ") + ")", m.Origin + ", static"})
		}
		out.table([]string{"METHOD", "PARAMS", "ORIGIN"}, rows)
		return nil
	}

	s, err := client.Snapshot(ctx)
	if err != nil {
		return err
	}
	out.printf("%s\n", s.Summary())
	printSites(out, s.Sites)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, addr string) error {
	mop.Configure(cfg)
	return mop.Serve(ctx, addr)
}
