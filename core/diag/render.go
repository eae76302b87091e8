package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Renderer writes diagnostics in compiler style:
//
//	calc.go.mixin:3:1: error: `python_mixin!` did not execute successfully: exit status 1
//	calc.go.mixin:3:1: note: there was no output on stderr
type Renderer struct {
	out     io.Writer
	level   map[Level]*color.Color
	loc     *color.Color
	noColor bool
}

// NewRenderer returns a renderer writing to out. Colors are used only when
// colorize is true.
func NewRenderer(out io.Writer, colorize bool) *Renderer {
	r := &Renderer{
		out: out,
		level: map[Level]*color.Color{
			LevelError:   color.New(color.FgRed, color.Bold),
			LevelWarning: color.New(color.FgYellow, color.Bold),
			LevelNote:    color.New(color.FgCyan, color.Bold),
		},
		loc:     color.New(color.Bold),
		noColor: !colorize,
	}
	for _, c := range r.level {
		r.configure(c)
	}
	r.configure(r.loc)
	return r
}

func (r *Renderer) configure(c *color.Color) {
	if r.noColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
}

// Render writes a single diagnostic. Multi-line messages are written with
// their continuation lines unchanged.
func (r *Renderer) Render(d Diagnostic) error {
	c, ok := r.level[d.Level]
	if !ok {
		c = r.loc
	}
	msg := strings.TrimRight(d.Message, "\n")
	_, err := fmt.Fprintf(r.out, "%s: %s: %s\n", r.loc.Sprint(d.Span.String()), c.Sprint(d.Level.String()), msg)
	return err
}

// RenderAll writes every diagnostic in order.
func (r *Renderer) RenderAll(diags []Diagnostic) error {
	for _, d := range diags {
		if err := r.Render(d); err != nil {
			return err
		}
	}
	return nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
