package splice

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"strings"
)

// DummyPanic is the expression and statement placeholder for a failed
// invocation.
const DummyPanic = `panic("python_mixin! expansion failed")`

// Fragment is parsed output ready to be inserted at an invocation site.
type Fragment struct {
	Kind Kind
	// Text is the Go source inserted in place of the invocation.
	Text string
	// Line and Column locate the first token of Text in the synthetic
	// file.
	Line, Column int
	// Parens marks an expression wrapped in parentheses that are not part
	// of the output.
	Parens bool
	Expr   ast.Expr
	Decls []ast.Decl
	Stmts []ast.Stmt
	// Dummy marks a placeholder standing in for a failed invocation.
	Dummy bool
}

// Dummy returns the placeholder for kind: a panic call for expressions and
// statements, nothing for declarations and an empty struct for types.
func Dummy(kind Kind) *Fragment {
	f := &Fragment{Kind: kind, Dummy: true}
	switch kind {
	case KindExpr, KindStmts:
		f.Text = DummyPanic
	case KindType:
		f.Text = "struct{}"
	}
	return f
}

// Location is a position in a template file as written into a line
// directive. Columns are byte columns.
type Location struct {
	Filename string
	Line     int
	Column   int
}

// Directive returns the /*line*/ comment that moves the following
// character to l.
func (l Location) Directive() string {
	return lineDirective(l.Filename, l.Line, l.Column)
}

// Render returns the text that replaces the invocation. With directives
// enabled the fragment is attributed to synthetic and the source after it
// to resume.
func (f *Fragment) Render(synthetic string, resume Location, directives bool) string {
	if !directives || f.Dummy {
		return f.layout(f.Text)
	}
	text := f.Text
	var sb strings.Builder
	if f.Parens {
		sb.WriteString("(")
		text = text[1:]
	}
	sb.WriteString(lineDirective(synthetic, max(f.Line, 1), max(f.Column, 1)))
	sb.WriteString(f.layout(text))
	sb.WriteString(resume.Directive())
	return sb.String()
}

// layout adds the line breaks needed around statement-level text.
func (f *Fragment) layout(text string) string {
	switch f.Kind {
	case KindItems, KindStmts:
		if text == "" {
			return ""
		}
		return text + "\n"
	}
	return text
}

func (e *Expansion) print(node ast.Node) (string, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, e.fset, node); err != nil {
		return "", fmt.Errorf("splice: print %T: %w", node, err)
	}
	return buf.String(), nil
}

func lineDirective(filename string, line, col int) string {
	return fmt.Sprintf("/*line %s:%d:%d*/", filename, line, col)
}

func trimTrailing(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}

// trimLeading strips the whitespace before the first token of s and
// returns the token's line and byte column.
func trimLeading(s string) (rest string, line, col int) {
	rest = strings.TrimLeft(s, " \t\r\n")
	lead := s[:len(s)-len(rest)]
	line = 1 + strings.Count(lead, "\n")
	col = len(lead) - (strings.LastIndexByte(lead, '\n') + 1) + 1
	return rest, line, col
}
