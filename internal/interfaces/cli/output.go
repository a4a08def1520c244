package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"heavyhash.dev/miner/internal/application/commands"
	configdomain "heavyhash.dev/miner/internal/core/domain/config"
	plugindomain "heavyhash.dev/miner/internal/core/domain/plugin"
	pluginports "heavyhash.dev/miner/internal/core/ports/plugin"
	"heavyhash.dev/miner/internal/core/schema"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", titleStyle.Render(title))
}

// pluginsView is everything the plugins command shows
type pluginsView struct {
	Modules    []plugindomain.Descriptor
	Options    []schema.Option
	Problems   []schema.Problem
	Discovered []pluginports.DiscoveredModule
	Builtins   []string
	// ActiveSpecs is -1 when the active plugin could not produce specs.
	ActiveSpecs int
}

func renderPlugins(w io.Writer, v pluginsView) {
	section(w, fmt.Sprintf("Loaded modules (%d)", len(v.Modules)))
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLUGIN\tKIND\tPATH")
	for _, m := range v.Modules {
		name := m.Plugin
		if name == "" {
			name = errStyle.Render("(failed)")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.Index, name, m.Kind, m.Path)
	}
	tw.Flush()

	switch {
	case v.ActiveSpecs < 0:
		fmt.Fprintln(w, warnStyle.Render("active plugin has no usable worker specs"))
	case len(v.Modules) > 0:
		active := v.Modules[len(v.Modules)-1]
		fmt.Fprintf(w, "%s %s offers %d worker(s)\n", okStyle.Render("active:"), active.Plugin, v.ActiveSpecs)
	}

	section(w, "Module options")
	tw = tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "OPTION\tKIND\tDEFAULT\tOWNER\tUSAGE")
	for _, o := range v.Options {
		if o.Owner == schema.HostOwner {
			continue
		}
		flag := "--" + o.Name
		if o.Shorthand != "" {
			flag = "-" + o.Shorthand + ", " + flag
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", flag, o.Kind, o.Default, o.Owner, o.Usage)
	}
	tw.Flush()

	if len(v.Problems) > 0 {
		section(w, "Option problems")
		for _, p := range v.Problems {
			fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("!"), p.String())
		}
	}

	if len(v.Discovered) > 0 {
		section(w, "Discovered modules")
		tw = tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tPATH\tDESCRIPTION")
		for _, d := range v.Discovered {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Version, d.Path, d.Description)
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "\n%s %s\n", dimStyle.Render("built-in:"), strings.Join(v.Builtins, ", "))
}

func renderConfig(w io.Writer, cfg *configdomain.Config) {
	section(w, "Effective configuration")
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tVALUE\tSOURCE")
	for _, field := range cfg.Fields() {
		e := cfg.Sources[field]
		source := e.Source
		if e.SourcePath != "" {
			source += " (" + e.SourcePath + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", field, formatValue(e.Value), dimStyle.Render(source))
	}
	tw.Flush()
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return "[]"
		}
		return strings.Join(t, ", ")
	case string:
		if t == "" {
			return `""`
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}

func renderBench(w io.Writer, r *commands.BenchResult) {
	section(w, "Bench "+r.RunID)
	fmt.Fprintf(w, "%s %s\n", dimStyle.Render("pre-pow hash:"), r.PrePowHash)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tBATCHES\tHASHES\tFOUND\tREJECTED\tFAULTS\tSTATUS")
	for _, wr := range r.Workers {
		status := okStyle.Render("ok")
		if wr.Discarded {
			status = errStyle.Render("discarded: " + wr.LastFault)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n", wr.ID, wr.Batches, wr.Hashes, wr.Found, wr.Rejected, wr.Faults, status)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%s %s over %s (%d found)\n",
		titleStyle.Render("hashrate:"), formatRate(r.HashRate()), r.Elapsed.Round(time.Millisecond), r.Found())
}

func formatRate(hps float64) string {
	units := []string{"H/s", "kH/s", "MH/s", "GH/s", "TH/s"}
	i := 0
	for hps >= 1000 && i < len(units)-1 {
		hps /= 1000
		i++
	}
	return fmt.Sprintf("%.2f %s", hps, units[i])
}
