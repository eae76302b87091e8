// Package diag is the diagnostic channel of the preprocessor. Diagnostics
// are recorded in the order they are detected and anchored at source spans
// so that they can be rendered like compiler output.
package diag

import (
	"fmt"

	"github.com/FocuswithJustin/pymixin/core/tokens"
)

// Level is the severity of a diagnostic.
type Level int

const (
	// LevelError marks a diagnostic that prevents output from being written.
	LevelError Level = iota
	// LevelWarning marks a diagnostic that does not stop expansion.
	LevelWarning
	// LevelNote attaches extra information to the preceding diagnostic.
	LevelNote
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Span is a half-open source range.
type Span struct {
	Start tokens.Position
	End   tokens.Position
}

// SpanOf returns the span covering the first through the last token.
func SpanOf(toks ...tokens.Token) Span {
	if len(toks) == 0 {
		return Span{}
	}
	return Span{Start: toks[0].Pos, End: tokens.End(toks[len(toks)-1])}
}

// To returns a span from the start of s to the end of other.
func (s Span) To(other Span) Span {
	return Span{Start: s.Start, End: other.End}
}

// IsZero reports whether the span carries no location.
func (s Span) IsZero() bool {
	return s.Start.Filename == "" && s.Start.Line == 0
}

// String formats the start of the span as file:line:col.
func (s Span) String() string {
	if s.IsZero() {
		return "<unknown>"
	}
	if s.Start.Filename == "" {
		return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
	}
	return fmt.Sprintf("%s:%d:%d", s.Start.Filename, s.Start.Line, s.Start.Column)
}

// Diagnostic is a single message anchored at a span.
type Diagnostic struct {
	Level   Level
	Span    Span
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Level, d.Message)
}

// Handler collects diagnostics. It is not safe for concurrent use; the
// preprocessor expands invocations one at a time.
type Handler struct {
	diags    []Diagnostic
	errors   int
	warnings int
}

// NewHandler returns an empty handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Emit records d.
func (h *Handler) Emit(d Diagnostic) {
	switch d.Level {
	case LevelError:
		h.errors++
	case LevelWarning:
		h.warnings++
	}
	h.diags = append(h.diags, d)
}

// Error records an error at sp.
func (h *Handler) Error(sp Span, msg string) {
	h.Emit(Diagnostic{Level: LevelError, Span: sp, Message: msg})
}

// Errorf records a formatted error at sp.
func (h *Handler) Errorf(sp Span, format string, args ...any) {
	h.Error(sp, fmt.Sprintf(format, args...))
}

// Warn records a warning at sp.
func (h *Handler) Warn(sp Span, msg string) {
	h.Emit(Diagnostic{Level: LevelWarning, Span: sp, Message: msg})
}

// Note records a note at sp.
func (h *Handler) Note(sp Span, msg string) {
	h.Emit(Diagnostic{Level: LevelNote, Span: sp, Message: msg})
}

// Diagnostics returns everything recorded so far, in emission order.
func (h *Handler) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(h.diags))
	copy(out, h.diags)
	return out
}

// Since returns the diagnostics recorded after the first n.
func (h *Handler) Since(n int) []Diagnostic {
	if n >= len(h.diags) {
		return nil
	}
	out := make([]Diagnostic, len(h.diags)-n)
	copy(out, h.diags[n:])
	return out
}

// Len returns the number of recorded diagnostics.
func (h *Handler) Len() int {
	return len(h.diags)
}

// ErrorCount returns the number of errors recorded.
func (h *Handler) ErrorCount() int {
	return h.errors
}

// WarningCount returns the number of warnings recorded.
func (h *Handler) WarningCount() int {
	return h.warnings
}

// HasErrors reports whether any error was recorded.
func (h *Handler) HasErrors() bool {
	return h.errors > 0
}

