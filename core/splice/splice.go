// Package splice re-parses interpreter output as Go source.
//
// An Expansion owns the decoded stdout of one invocation. The caller asks
// for exactly one shape (expression, declarations, statements or a type);
// the output is parsed with go/parser under a synthetic file name that
// points back at the invocation, so syntax errors are attributed to it.
package splice

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"github.com/FocuswithJustin/pymixin/core/diag"
	"github.com/FocuswithJustin/pymixin/core/tokens"
)

// Kind is the syntactic shape requested at an invocation site.
type Kind int

const (
	KindExpr Kind = iota
	KindItems
	KindStmts
	KindType
)

var kindNames = map[Kind]string{
	KindExpr:  "expr",
	KindItems: "items",
	KindStmts: "stmts",
	KindType:  "type",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a shape name ("expr", "items", "stmts", "type") to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// State is the lifecycle of an Expansion.
type State int

const (
	Fresh State = iota
	Queried
	Drained
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Queried:
		return "queried"
	case Drained:
		return "drained"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrDrained is returned when an Expansion is queried a second time.
	ErrDrained = errors.New("splice: expansion already consumed")
	// ErrSyntax is returned when the output does not parse as the requested
	// shape. The details have been reported to the diagnostic handler.
	ErrSyntax = errors.New("splice: output does not parse")
)

// SyntheticName is the file name under which the output of the invocation
// on line of host is parsed.
func SyntheticName(host string, line int) string {
	return fmt.Sprintf("<%s:%d python_mixin!>", host, line)
}

// Expansion is the single-use parser over one invocation's output.
type Expansion struct {
	name  string
	src   string
	fset  *token.FileSet
	state State
	kind  Kind
}

// New creates an expansion for src named name.
func New(name, src string) *Expansion {
	return &Expansion{
		name: name,
		src:  src,
		fset: token.NewFileSet(),
	}
}

// Name returns the synthetic file name.
func (e *Expansion) Name() string { return e.name }

// State returns the current lifecycle state.
func (e *Expansion) State() State { return e.state }

// Kind returns the shape the expansion was queried for. It is only
// meaningful once the state has left Fresh.
func (e *Expansion) Kind() Kind { return e.kind }

// Query parses the output as kind. Syntax errors are reported to h at
// positions inside the synthetic file and ErrSyntax is returned. Any call
// after the first returns ErrDrained.
func (e *Expansion) Query(kind Kind, h *diag.Handler) (*Fragment, error) {
	if e.state != Fresh {
		return nil, ErrDrained
	}
	e.state = Queried
	e.kind = kind
	defer func() { e.state = Drained }()

	var (
		frag *Fragment
		err  error
	)
	switch kind {
	case KindExpr:
		frag, err = e.parseExpr()
	case KindType:
		frag, err = e.parseType()
	case KindItems:
		frag, err = e.parseItems()
	case KindStmts:
		frag, err = e.parseStmts()
	default:
		return nil, fmt.Errorf("splice: unknown kind %v", kind)
	}
	if err != nil {
		e.report(err, h)
		return nil, ErrSyntax
	}
	return frag, nil
}

const parseMode = parser.ParseComments | parser.SkipObjectResolution

func (e *Expansion) parseExpr() (*Fragment, error) {
	expr, err := parser.ParseExprFrom(e.fset, e.name, e.src, parseMode)
	if err != nil {
		return nil, err
	}
	text, err := e.print(expr)
	if err != nil {
		return nil, err
	}
	frag := &Fragment{Kind: KindExpr, Text: text, Expr: expr}
	if needsParens(expr) {
		frag.Text, frag.Parens = "("+text+")", true
	}
	frag.Line, frag.Column = e.start(expr)
	return frag, nil
}

func (e *Expansion) parseType() (*Fragment, error) {
	expr, err := parser.ParseExprFrom(e.fset, e.name, e.src, parseMode)
	if err != nil {
		return nil, err
	}
	if !isType(expr) {
		text, _ := e.print(expr)
		return nil, scanner.ErrorList{{
			Pos: e.fset.Position(expr.Pos()),
			Msg: fmt.Sprintf("expected type, found %s", text),
		}}
	}
	text, err := e.print(expr)
	if err != nil {
		return nil, err
	}
	frag := &Fragment{Kind: KindType, Text: text, Expr: expr}
	frag.Line, frag.Column = e.start(expr)
	return frag, nil
}

func (e *Expansion) start(node ast.Node) (line, col int) {
	pos := e.fset.Position(node.Pos())
	return pos.Line, pos.Column
}

func (e *Expansion) parseItems() (*Fragment, error) {
	const prefix = "package mixin\n"
	f, err := parser.ParseFile(e.fset, e.name, prefix+e.src, parseMode)
	if err != nil {
		return nil, e.shift(err, prefix)
	}
	text, line, col := trimLeading(trimTrailing(e.src))
	return &Fragment{Kind: KindItems, Text: text, Line: line, Column: col, Decls: f.Decls}, nil
}

func (e *Expansion) parseStmts() (*Fragment, error) {
	const prefix = "package mixin\nfunc _() {\n"
	f, err := parser.ParseFile(e.fset, e.name, prefix+e.src+"\n}\n", parseMode)
	if err != nil {
		return nil, e.shift(err, prefix)
	}
	if len(f.Decls) == 1 {
		if fn, ok := f.Decls[0].(*ast.FuncDecl); ok && fn.Body != nil {
			text, line, col := trimLeading(trimTrailing(e.src))
			return &Fragment{Kind: KindStmts, Text: text, Line: line, Column: col, Stmts: fn.Body.List}, nil
		}
	}
	return nil, scanner.ErrorList{{
		Pos: token.Position{Filename: e.name, Line: 1, Column: 1},
		Msg: "expected statements, found declarations outside a block",
	}}
}

// shift moves error positions from the wrapper the output was parsed in
// back onto the output itself. prefix ends in a newline, so columns are
// unaffected.
func (e *Expansion) shift(err error, prefix string) error {
	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return err
	}
	lines := strings.Count(prefix, "\n")
	for _, item := range list {
		item.Pos.Offset -= len(prefix)
		item.Pos.Line -= lines
		if item.Pos.Line < 1 || item.Pos.Offset < 0 {
			item.Pos.Line, item.Pos.Column, item.Pos.Offset = 1, 1, 0
		}
	}
	return list
}

func (e *Expansion) report(err error, h *diag.Handler) {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		for _, item := range list {
			pos := tokens.Position{
				Filename: item.Pos.Filename,
				Offset:   item.Pos.Offset,
				Line:     item.Pos.Line,
				Column:   item.Pos.Column,
			}
			if pos.Filename == "" {
				pos.Filename = e.name
			}
			h.Error(diag.Span{Start: pos, End: pos}, item.Msg)
		}
		return
	}
	pos := tokens.Position{Filename: e.name, Line: 1, Column: 1}
	h.Error(diag.Span{Start: pos, End: pos}, err.Error())
}

// needsParens reports whether expr must be parenthesised to keep its
// meaning when inserted next to other operators.
func needsParens(expr ast.Expr) bool {
	switch expr.(type) {
	case *ast.BinaryExpr, *ast.UnaryExpr, *ast.StarExpr:
		return true
	}
	return false
}

func isType(expr ast.Expr) bool {
	switch x := expr.(type) {
	case *ast.Ident, *ast.ArrayType, *ast.StructType, *ast.FuncType,
		*ast.InterfaceType, *ast.MapType, *ast.ChanType:
		return true
	case *ast.SelectorExpr:
		_, ok := x.X.(*ast.Ident)
		return ok
	case *ast.StarExpr:
		return isType(x.X)
	case *ast.ParenExpr:
		return isType(x.X)
	case *ast.IndexExpr:
		return isType(x.X)
	case *ast.IndexListExpr:
		return isType(x.X)
	}
	return false
}
