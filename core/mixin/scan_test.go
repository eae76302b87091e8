package mixin

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/pymixin/core/diag"
	"github.com/FocuswithJustin/pymixin/core/splice"
	"github.com/FocuswithJustin/pymixin/core/tokens"
)

func scan(t *testing.T, src string) ([]tokens.Token, []Invocation, *diag.Handler) {
	t.Helper()
	toks, err := tokens.Tokenize("test.go.mixin", src)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	h := diag.NewHandler()
	return toks, Scan(toks, h), h
}

func TestScanInfersKind(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want splice.Kind
	}{
		{
			name: "top level",
			src:  "package p\n\npython_mixin!(\"x\")\n",
			want: splice.KindItems,
		},
		{
			name: "var initializer",
			src:  "package p\n\nvar x = python_mixin!(\"x\")\n",
			want: splice.KindExpr,
		},
		{
			name: "function body",
			src:  "package p\n\nfunc f() {\n\tpython_mixin!(\"x\")\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "function with a result type",
			src:  "package p\n\nfunc f() int {\n\tpython_mixin!(\"x\")\n\treturn 0\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "method with an error result",
			src:  "package p\n\nfunc (r R) M() error {\n\tpython_mixin!(\"x\")\n\treturn nil\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "function with a pointer result",
			src:  "package p\n\nfunc f() *T {\n\tpython_mixin!(\"x\")\n\treturn nil\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "function literal",
			src:  "package p\n\nvar g = func() error {\n\tpython_mixin!(\"x\")\n\treturn nil\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "func-typed composite literal",
			src:  "package p\n\nvar fs = []func() int{\n\tpython_mixin!(\"x\"),\n}\n",
			want: splice.KindExpr,
		},
		{
			name: "first statement on the brace line",
			src:  "package p\n\nfunc f() { python_mixin!(\"x\") }\n",
			want: splice.KindStmts,
		},
		{
			name: "after a statement",
			src:  "package p\n\nfunc f() {\n\tx := 1\n\tpython_mixin!(\"x\")\n\t_ = x\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "after a label",
			src:  "package p\n\nfunc f() {\nloop:\n\tpython_mixin!(\"x\")\n\tgoto loop\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "if body",
			src:  "package p\n\nfunc f(ok bool) {\n\tif ok {\n\t\tpython_mixin!(\"x\")\n\t}\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "else body",
			src:  "package p\n\nfunc f(ok bool) {\n\tif ok {\n\t} else {\n\t\tpython_mixin!(\"x\")\n\t}\n}\n",
			want: splice.KindStmts,
		},
		{
			name: "call argument",
			src:  "package p\n\nfunc f() {\n\tprintln(python_mixin!(\"x\"))\n}\n",
			want: splice.KindExpr,
		},
		{
			name: "return value",
			src:  "package p\n\nfunc f() int {\n\treturn python_mixin!(\"x\")\n}\n",
			want: splice.KindExpr,
		},
		{
			name: "composite literal element",
			src:  "package p\n\nvar xs = []int{\n\tpython_mixin!(\"x\"),\n}\n",
			want: splice.KindExpr,
		},
		{
			name: "index",
			src:  "package p\n\nvar y = xs[python_mixin!(\"x\")]\n",
			want: splice.KindExpr,
		},
		{
			name: "explicit type",
			src:  "package p\n\nvar v python_mixin_type!(\"x\")\n",
			want: splice.KindType,
		},
		{
			name: "explicit stmts outside a block",
			src:  "package p\n\nvar v = python_mixin_stmts!(\"x\")\n",
			want: splice.KindStmts,
		},
		{
			name: "explicit items in a block",
			src:  "package p\n\nfunc f() {\n\tpython_mixin_items!(\"x\")\n}\n",
			want: splice.KindItems,
		},
		{
			name: "explicit expr at top level",
			src:  "package p\n\npython_mixin_expr!(\"x\")\n",
			want: splice.KindExpr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, invs, h := scan(t, tt.src)
			if h.Len() != 0 {
				t.Fatalf("Scan() reported %v", h.Diagnostics())
			}
			if len(invs) != 1 {
				t.Fatalf("Scan() found %d invocations, want 1", len(invs))
			}
			if invs[0].Kind != tt.want {
				t.Errorf("Kind = %v, want %v", invs[0].Kind, tt.want)
			}
		})
	}
}

func TestScanExplicitFlag(t *testing.T) {
	_, invs, _ := scan(t, "python_mixin!(\"a\")\npython_mixin_items!(\"b\")\n")
	if len(invs) != 2 {
		t.Fatalf("Scan() found %d invocations", len(invs))
	}
	if invs[0].Explicit || invs[0].Name != "python_mixin" {
		t.Errorf("first = %+v", invs[0])
	}
	if !invs[1].Explicit || invs[1].Name != "python_mixin_items" {
		t.Errorf("second = %+v", invs[1])
	}
}

func TestScanIgnoresCommentsAndStrings(t *testing.T) {
	src := "package p\n\n" +
		"// python_mixin!(\"a\")\n" +
		"/* python_mixin!(\"b\") */\n" +
		"var s = \"python_mixin!(1)\"\n" +
		"var r = `python_mixin!(\"c\")`\n"
	_, invs, h := scan(t, src)
	if len(invs) != 0 {
		t.Errorf("Scan() found %d invocations in comments and strings", len(invs))
	}
	if h.Len() != 0 {
		t.Errorf("Scan() reported %v", h.Diagnostics())
	}
}

func TestScanIgnoresOtherMacros(t *testing.T) {
	_, invs, h := scan(t, "var x = other_mixin!(\"a\")\nvar y = python_mixin_foo!(\"b\")\n")
	if len(invs) != 0 || h.Len() != 0 {
		t.Errorf("Scan() = %v, %v", invs, h.Diagnostics())
	}
}

func TestScanDelimiters(t *testing.T) {
	toks, invs, h := scan(t, "var a = python_mixin![\"x\"]\nvar b = python_mixin!{\"y\"}\nvar c = python_mixin! (\"z\")\n")
	if h.Len() != 0 {
		t.Fatalf("Scan() reported %v", h.Diagnostics())
	}
	if len(invs) != 3 {
		t.Fatalf("Scan() found %d invocations, want 3", len(invs))
	}
	for _, inv := range invs {
		args := tokens.Significant(inv.Args(toks))
		if len(args) != 1 || !tokens.IsStringLit(args[0]) {
			t.Errorf("Args() = %v", args)
		}
		if inv.Kind != splice.KindExpr {
			t.Errorf("Kind = %v", inv.Kind)
		}
	}
}

func TestScanSkipsNestedInvocations(t *testing.T) {
	_, invs, _ := scan(t, "var x = python_mixin!(python_mixin!(\"a\"))\n")
	if len(invs) != 1 {
		t.Fatalf("Scan() found %d invocations, want 1", len(invs))
	}
}

func TestScanMissingDelimiter(t *testing.T) {
	_, invs, h := scan(t, "var x = python_mixin! \"a\"\nvar y = python_mixin!(\"b\")\n")
	if h.ErrorCount() != 1 {
		t.Fatalf("ErrorCount() = %d, want 1", h.ErrorCount())
	}
	msg := h.Diagnostics()[0].Message
	if msg != "expected one of `(`, `[` or `{` after `python_mixin!`" {
		t.Errorf("message = %q", msg)
	}
	if len(invs) != 1 {
		t.Errorf("Scan() found %d invocations, want the well-formed one", len(invs))
	}
}

func TestScanUnterminated(t *testing.T) {
	_, invs, h := scan(t, "var x = python_mixin_expr!(\"a\"\n")
	if len(invs) != 0 {
		t.Errorf("Scan() found %d invocations", len(invs))
	}
	if h.ErrorCount() != 1 {
		t.Fatalf("ErrorCount() = %d", h.ErrorCount())
	}
	if got := h.Diagnostics()[0].Message; got != "unterminated python_mixin_expr! invocation" {
		t.Errorf("message = %q", got)
	}
}

func TestScanSpan(t *testing.T) {
	_, invs, _ := scan(t, "package p\n\nvar x = python_mixin!(\"a\")\n")
	if len(invs) != 1 {
		t.Fatalf("Scan() found %d invocations", len(invs))
	}
	sp := invs[0].Span
	if sp.Start.Line != 3 || sp.Start.Column != 9 {
		t.Errorf("Span.Start = %d:%d, want 3:9", sp.Start.Line, sp.Start.Column)
	}
	if sp.End.Line != 3 {
		t.Errorf("Span.End.Line = %d", sp.End.Line)
	}
}

func TestOpensBlock(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"func f() {", true},
		{"if x {", true},
		{"for i := 0; i < n; i++ {", true},
		{"switch v := x.(type) {", true},
		{"} else {", true},
		{"select {", true},
		{"x := T{", false},
		{"type S struct {", false},
		{"var xs = []int{", false},
		{"m := map[string]int{", false},
		{"func f() int {", true},
		{"func (r R) M() error {", true},
		{"func f(g func() int) *T {", true},
		{"func f(\n\ta int,\n) (int, error) {", true},
		{"var g = func() error {", true},
		{"x := []func() int{", false},
		{"m := map[string]func() error{", false},
		{"fs := []func() int{func() int {", true},
	}
	for _, tt := range tests {
		toks, err := tokens.Tokenize("t", tt.src)
		if err != nil {
			t.Fatal(err)
		}
		i := -1
		for j := len(toks) - 1; j >= 0; j-- {
			if tokens.IsPunct(toks[j], "{") {
				i = j
				break
			}
		}
		if got := opensBlock(toks, i); got != tt.want {
			t.Errorf("opensBlock(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestSplitOptions(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantOpts string
		wantRest string
	}{
		{"no block", `"x"`, "", `"x"`},
		{"block", `{ version = "3" } "x"`, ` version = "3" `, ` "x"`},
		{"leading space", ` {} "x"`, "", ` "x"`},
		{"empty", ``, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := tokens.Tokenize("t", tt.args)
			if err != nil {
				t.Fatal(err)
			}
			opts, rest, _ := splitOptions(toks)
			if got := tokens.Text(opts); got != tt.wantOpts {
				t.Errorf("opts = %q, want %q", got, tt.wantOpts)
			}
			if got := tokens.Text(rest); got != tt.wantRest {
				t.Errorf("rest = %q, want %q", got, tt.wantRest)
			}
		})
	}
}

func TestSplitOptionsEndSpan(t *testing.T) {
	toks, _ := tokens.Tokenize("t", `{ version = "3" } "x"`)
	_, _, end := splitOptions(toks)
	if end.Start.Column != 17 {
		t.Errorf("end column = %d, want 17", end.Start.Column)
	}

	toks, _ = tokens.Tokenize("t", `"x"`)
	_, _, end = splitOptions(toks)
	if end.Start.Column != 4 {
		t.Errorf("end column without block = %d, want 4", end.Start.Column)
	}
	if !strings.HasPrefix(end.String(), "t:") {
		t.Errorf("end = %s", end)
	}
}
