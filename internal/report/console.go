package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/luhtaf/dupremover/internal/dedupe"
)

// ConsoleOptions configures Console.
type ConsoleOptions struct {
	Verbose bool // print every scanned file
	NoColor bool
}

// Console prints human-readable progress and results.
type Console struct {
	w    io.Writer
	opts ConsoleOptions

	info *color.Color
	dup  *color.Color
	warn *color.Color
	ok   *color.Color
}

// NewConsole writes to w.
func NewConsole(w io.Writer, opts ConsoleOptions) *Console {
	c := &Console{
		w:    w,
		opts: opts,
		info: color.New(color.Faint),
		dup:  color.New(color.FgYellow),
		warn: color.New(color.FgRed),
		ok:   color.New(color.FgGreen, color.Bold),
	}
	if opts.NoColor {
		for _, col := range []*color.Color{c.info, c.dup, c.warn, c.ok} {
			col.DisableColor()
		}
	}
	return c
}

// Report implements dedupe.Reporter.
func (c *Console) Report(ev dedupe.Event) {
	switch e := ev.(type) {
	case dedupe.FileScanned:
		if !c.opts.Verbose {
			return
		}
		if e.Total > 0 {
			c.info.Fprintf(c.w, "[%d/%d] %s\n", e.Index, e.Total, e.Path)
		} else {
			c.info.Fprintf(c.w, "[%d] %s\n", e.Index, e.Path)
		}
	case dedupe.DuplicateRemoved:
		verb := "Removed"
		if e.DryRun {
			verb = "Would remove"
		}
		c.dup.Fprintf(c.w, "%s \"%s\" (duplicate of \"%s\")\n", verb, e.Duplicate, e.Original)
	case dedupe.Warning:
		c.warn.Fprintf(c.w, "Warning: %s: %s", e.Reason, e.Path)
		if e.Err != nil {
			c.warn.Fprintf(c.w, " (%v)", e.Err)
		}
		fmt.Fprintln(c.w)
	case dedupe.ScanCompleted:
		fmt.Fprintln(c.w)
		c.ok.Fprintln(c.w, "Clean complete.")
		fmt.Fprint(c.w, Summary(e.Stats))
	}
}

// Summary renders final counters as indented lines.
func Summary(st dedupe.Stats) string {
	var b strings.Builder
	line := func(label string, v any) { fmt.Fprintf(&b, "  %-20s%v\n", label+":", v) }

	line("Files scanned", st.FilesScanned)
	if st.DryRun {
		line("Duplicates found", fmt.Sprintf("%d (%s reclaimable)", st.DuplicatesRemoved, humanize.IBytes(uint64(st.BytesReclaimed))))
	} else {
		line("Duplicates removed", fmt.Sprintf("%d (%s reclaimed)", st.DuplicatesRemoved, humanize.IBytes(uint64(st.BytesReclaimed))))
	}
	line("Hash failures", st.HashFailures)
	line("Delete failures", st.DeleteFailures)
	if st.Skipped > 0 {
		line("Skipped entries", st.Skipped)
	}
	return b.String()
}
