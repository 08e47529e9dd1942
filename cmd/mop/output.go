package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
)

// output writes tables aligned for a terminal and tab-separated otherwise,
// so piped output stays easy to cut.
type output struct {
	w       io.Writer
	aligned bool
}

func newOutput(w io.Writer) *output {
	aligned := false
	if f, ok := w.(*os.File); ok {
		aligned = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &output{w: w, aligned: aligned}
}

func (o *output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

// table writes rows of cells.
func (o *output) table(header []string, rows [][]string) {
	if !o.aligned {
		fmt.Fprintln(o.w, strings.Join(header, "\t"))
		for _, r := range rows {
			fmt.Fprintln(o.w, strings.Join(r, "\t"))
		}
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
}
