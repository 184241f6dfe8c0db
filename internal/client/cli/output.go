package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type printer struct {
	w    io.Writer
	json bool
}

func (s *session) printer(cmd *cobra.Command) *printer {
	return &printer{w: cmd.OutOrStdout(), json: s.opts.Output == "json"}
}

// Print writes v as indented JSON in json mode and calls text otherwise.
func (p *printer) Print(v any, text func(w io.Writer) error) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(p.w)
}

func (p *printer) Table(v any, header []string, rows [][]string) error {
	return p.Print(v, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, r := range rows {
			fmt.Fprintln(tw, strings.Join(r, "\t"))
		}
		return tw.Flush()
	})
}

func (p *printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
)

// state colors a sync or queue state name.
func state(s string) string {
	switch s {
	case "synced", "sealed", "VALID", "online":
		return green(s)
	case "pending", "syncing", "retrying", "in_flight", "archived":
		return yellow(s)
	case "failed", "escalated", "HASH_MISMATCH", "INVALID_SIGNATURE", "offline":
		return red(s)
	}
	return s
}

func timeOrDash(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
