package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

type actionReport struct {
	Kind        string `json:"kind" yaml:"kind"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

type report struct {
	Action  string              `json:"action" yaml:"action"`
	Files   []refactor.FileDiff `json:"files" yaml:"files"`
	Issues  []issueReport       `json:"issues,omitempty" yaml:"issues,omitempty"`
	Written []string            `json:"written,omitempty" yaml:"written,omitempty"`
}

type issueReport struct {
	Severity string `json:"severity" yaml:"severity"`
	Kind     string `json:"kind" yaml:"kind"`
	Message  string `json:"message" yaml:"message"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
}

func issueReports(root string, issues []types.Issue) []issueReport {
	out := make([]issueReport, 0, len(issues))
	for _, is := range issues {
		r := issueReport{
			Severity: strings.ToLower(is.Severity.String()),
			Kind:     is.Kind.String(),
			Message:  is.Message,
			Line:     is.Line,
		}
		if is.Unit != "" {
			r.File = relPath(root, is.Unit)
		}
		out = append(out, r)
	}
	return out
}

// print writes v in the configured format; text output is produced by text.
func (a *app) print(w io.Writer, v any, text func(*printer)) error {
	switch a.cfg.Output.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		p := newPrinter(w, a.cfg.Output.Color)
		text(p)
		return p.err
	}
}

// printer renders reports as human-readable text.
type printer struct {
	w   io.Writer
	err error

	header, added, removed, hunk, warn *color.Color
}

func newPrinter(w io.Writer, colored bool) *printer {
	p := &printer{
		w:       w,
		header:  color.New(color.Bold),
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
		hunk:    color.New(color.FgCyan),
		warn:    color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.header, p.added, p.removed, p.hunk, p.warn} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) line(c *color.Color, format string, args ...any) {
	if p.err != nil {
		return
	}
	if c == nil {
		_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
		return
	}
	_, p.err = c.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) actions(actions []actionReport) {
	if len(actions) == 0 {
		p.line(nil, "No extractions available")
		return
	}
	for _, a := range actions {
		p.line(nil, "%-28s %s", a.Kind, a.Description)
	}
}

func (p *printer) report(r *report) {
	for _, d := range r.Files {
		p.diff(d)
	}
	for _, is := range r.Issues {
		c := p.warn
		if is.Severity == "info" {
			c = nil
		}
		loc := ""
		if is.File != "" {
			loc = fmt.Sprintf(" (%s:%d)", is.File, is.Line)
		}
		p.line(c, "%s: %s: %s%s", is.Severity, is.Kind, is.Message, loc)
	}
	switch {
	case len(r.Written) > 0:
		p.line(p.header, "%s: wrote %s", r.Action, strings.Join(r.Written, ", "))
	case len(r.Files) > 0:
		p.line(nil, "%s: %d file(s) would change; rerun with --write to apply", r.Action, len(r.Files))
	}
}

func (p *printer) diff(d refactor.FileDiff) {
	for _, l := range strings.Split(strings.TrimSuffix(d.Unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
			p.line(p.header, "%s", l)
		case strings.HasPrefix(l, "@@"):
			p.line(p.hunk, "%s", l)
		case strings.HasPrefix(l, "+"):
			p.line(p.added, "%s", l)
		case strings.HasPrefix(l, "-"):
			p.line(p.removed, "%s", l)
		default:
			p.line(nil, "%s", l)
		}
	}
}

func relPath(root, id string) string {
	if rel, err := filepath.Rel(root, id); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return id
}

func relPaths(root string, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, relPath(root, id))
	}
	return out
}
