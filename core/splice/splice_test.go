package splice

import (
	"errors"
	"go/ast"
	"strings"
	"testing"

	"github.com/FocuswithJustin/pymixin/core/diag"
)

const synthetic = "<calc.go.mixin:3 python_mixin!>"

func TestSyntheticName(t *testing.T) {
	if got := SyntheticName("calc.go.mixin", 3); got != synthetic {
		t.Errorf("SyntheticName() = %q, want %q", got, synthetic)
	}
	if got := SyntheticName("/abs/pkg/calc.go.mixin", 12); got != "</abs/pkg/calc.go.mixin:12 python_mixin!>" {
		t.Errorf("SyntheticName() = %q", got)
	}
}

func TestKinds(t *testing.T) {
	for _, name := range []string{"expr", "items", "stmts", "type"} {
		k, ok := ParseKind(name)
		if !ok || k.String() != name {
			t.Errorf("ParseKind(%q) = %v, %v", name, k, ok)
		}
	}
	if _, ok := ParseKind("pattern"); ok {
		t.Error("ParseKind(pattern) should fail")
	}
}

func TestExpr(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "literal", src: "3\n", want: "3"},
		{name: "binary is parenthesised", src: "1 + 2\n", want: "(1 + 2)"},
		{name: "unary is parenthesised", src: "-x", want: "(-x)"},
		{name: "deref is parenthesised", src: "*p", want: "(*p)"},
		{name: "call", src: "f(a, b)", want: "f(a, b)"},
		{name: "trailing comment dropped", src: "3 // three\n", want: "3"},
		{name: "composite", src: "[]int{1,2,3}", want: "[]int{1, 2, 3}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := diag.NewHandler()
			frag, err := New(synthetic, tt.src).Query(KindExpr, h)
			if err != nil {
				t.Fatalf("Query(Expr) error = %v, diags = %v", err, h.Diagnostics())
			}
			if frag.Text != tt.want {
				t.Errorf("Text = %q, want %q", frag.Text, tt.want)
			}
			if frag.Expr == nil || frag.Kind != KindExpr {
				t.Errorf("fragment = %+v", frag)
			}
		})
	}
}

func TestExprSyntaxError(t *testing.T) {
	h := diag.NewHandler()
	e := New(synthetic, "1 +* )")
	_, err := e.Query(KindExpr, h)
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("Query(Expr) error = %v, want ErrSyntax", err)
	}
	diags := h.Diagnostics()
	if len(diags) == 0 {
		t.Fatal("expected a diagnostic")
	}
	d := diags[0]
	if d.Level != diag.LevelError || d.Span.Start.Filename != synthetic || d.Span.Start.Line != 1 {
		t.Errorf("diagnostic = %+v", d)
	}
	if !strings.HasPrefix(d.Span.String(), synthetic+":1:") {
		t.Errorf("span = %s", d.Span)
	}
}

func TestItems(t *testing.T) {
	src := "func f0() int32 { return 1 }\nfunc f1() int32 { return 2 }\nfunc f2() int32 { return 3 }\n\n"
	h := diag.NewHandler()
	frag, err := New(synthetic, src).Query(KindItems, h)
	if err != nil {
		t.Fatalf("Query(Items) error = %v, diags = %v", err, h.Diagnostics())
	}
	if len(frag.Decls) != 3 {
		t.Fatalf("got %d decls, want 3", len(frag.Decls))
	}
	for i, decl := range frag.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			t.Fatalf("decl %d is %T", i, decl)
		}
		if want := "f" + string(rune('0'+i)); fn.Name.Name != want {
			t.Errorf("decl %d = %s, want %s", i, fn.Name.Name, want)
		}
	}
	if frag.Text != strings.TrimRight(src, "\n") {
		t.Errorf("Text = %q", frag.Text)
	}
}

func TestItemsEmpty(t *testing.T) {
	frag, err := New(synthetic, "").Query(KindItems, diag.NewHandler())
	if err != nil {
		t.Fatal(err)
	}
	if len(frag.Decls) != 0 || frag.Text != "" {
		t.Errorf("fragment = %+v", frag)
	}
}

func TestItemsErrorPosition(t *testing.T) {
	h := diag.NewHandler()
	_, err := New(synthetic, "func ok() {}\n\nfunc bad( {\n").Query(KindItems, h)
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("Query(Items) error = %v", err)
	}
	d := h.Diagnostics()[0]
	if d.Span.Start.Filename != synthetic {
		t.Errorf("filename = %q", d.Span.Start.Filename)
	}
	if d.Span.Start.Line != 3 {
		t.Errorf("line = %d, want 3 (%s)", d.Span.Start.Line, d.Message)
	}
}

func TestStmts(t *testing.T) {
	h := diag.NewHandler()
	frag, err := New(synthetic, "x := 1\nx++\nfmt.Println(x)\n").Query(KindStmts, h)
	if err != nil {
		t.Fatalf("Query(Stmts) error = %v, diags = %v", err, h.Diagnostics())
	}
	if len(frag.Stmts) != 3 {
		t.Errorf("got %d statements, want 3", len(frag.Stmts))
	}
}

func TestStmtsRejectsEscapes(t *testing.T) {
	h := diag.NewHandler()
	_, err := New(synthetic, "}\nfunc evil() {").Query(KindStmts, h)
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("Query(Stmts) error = %v, want ErrSyntax", err)
	}
	if !h.HasErrors() {
		t.Error("expected an error diagnostic")
	}
}

func TestStmtsErrorPosition(t *testing.T) {
	h := diag.NewHandler()
	_, err := New(synthetic, "x := 1\ny := := 2\n").Query(KindStmts, h)
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("Query(Stmts) error = %v", err)
	}
	d := h.Diagnostics()[0]
	if d.Span.Start.Line != 2 || d.Span.Start.Column != 6 {
		t.Errorf("error at %d:%d, want 2:6 (%s)", d.Span.Start.Line, d.Span.Start.Column, d.Message)
	}
}

func TestType(t *testing.T) {
	valid := []string{"int", "[]string", "map[string]int", "*bytes.Buffer", "struct{ X int }", "func() error", "chan<- int", "List[int]"}
	for _, src := range valid {
		frag, err := New(synthetic, src).Query(KindType, diag.NewHandler())
		if err != nil {
			t.Errorf("Type(%q) error = %v", src, err)
			continue
		}
		if frag.Kind != KindType || frag.Text == "" {
			t.Errorf("Type(%q) = %+v", src, frag)
		}
	}

	h := diag.NewHandler()
	if _, err := New(synthetic, "1 + 2").Query(KindType, h); !errors.Is(err, ErrSyntax) {
		t.Fatalf("Type(1 + 2) error = %v", err)
	}
	if msg := h.Diagnostics()[0].Message; msg != "expected type, found 1 + 2" {
		t.Errorf("message = %q", msg)
	}
}

func TestStateMachine(t *testing.T) {
	e := New(synthetic, "3")
	if e.State() != Fresh {
		t.Fatalf("initial state = %v", e.State())
	}
	if _, err := e.Query(KindExpr, diag.NewHandler()); err != nil {
		t.Fatal(err)
	}
	if e.State() != Drained || e.Kind() != KindExpr {
		t.Errorf("state = %v, kind = %v", e.State(), e.Kind())
	}
	if _, err := e.Query(KindItems, diag.NewHandler()); !errors.Is(err, ErrDrained) {
		t.Errorf("second query error = %v, want ErrDrained", err)
	}

	failed := New(synthetic, ")")
	failed.Query(KindExpr, diag.NewHandler())
	if _, err := failed.Query(KindExpr, diag.NewHandler()); !errors.Is(err, ErrDrained) {
		t.Errorf("query after failure error = %v, want ErrDrained", err)
	}
}

func TestDummy(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindExpr, DummyPanic},
		{KindStmts, DummyPanic + "\n"},
		{KindItems, ""},
		{KindType, "struct{}"},
	}
	for _, tt := range tests {
		f := Dummy(tt.kind)
		if !f.Dummy {
			t.Errorf("Dummy(%v).Dummy = false", tt.kind)
		}
		if got := f.Render(synthetic, Location{Filename: "calc.go.mixin", Line: 3, Column: 20}, true); got != tt.want {
			t.Errorf("Dummy(%v).Render() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	resume := Location{Filename: "calc.go.mixin", Line: 3, Column: 31}

	frag, err := New(synthetic, "1 + 2\n").Query(KindExpr, diag.NewHandler())
	if err != nil {
		t.Fatal(err)
	}
	want := "(/*line " + synthetic + ":1:1*/1 + 2)/*line calc.go.mixin:3:31*/"
	if got := frag.Render(synthetic, resume, true); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
	if got := frag.Render(synthetic, resume, false); got != "(1 + 2)" {
		t.Errorf("Render() without directives = %q", got)
	}

	items, err := New(synthetic, "func f() {}\n").Query(KindItems, diag.NewHandler())
	if err != nil {
		t.Fatal(err)
	}
	if got := items.Render(synthetic, resume, false); got != "func f() {}\n" {
		t.Errorf("items Render() = %q", got)
	}
}

func TestFragmentStart(t *testing.T) {
	resume := Location{Filename: "calc.go.mixin", Line: 3, Column: 31}
	tests := []struct {
		name string
		kind Kind
		src  string
		want string
	}{
		{
			name: "indented expression",
			kind: KindExpr,
			src:  "  1 + 2\n",
			want: "(/*line " + synthetic + ":1:3*/1 + 2)/*line calc.go.mixin:3:31*/",
		},
		{
			name: "expression after a blank line",
			kind: KindExpr,
			src:  "\n\t3\n",
			want: "/*line " + synthetic + ":2:2*/3/*line calc.go.mixin:3:31*/",
		},
		{
			name: "indented type",
			kind: KindType,
			src:  " []int",
			want: "/*line " + synthetic + ":1:2*/[]int/*line calc.go.mixin:3:31*/",
		},
		{
			name: "statements after blank lines",
			kind: KindStmts,
			src:  "\n\n  x := 1\n  _ = x\n",
			want: "/*line " + synthetic + ":3:3*/x := 1\n  _ = x\n/*line calc.go.mixin:3:31*/",
		},
		{
			name: "declarations",
			kind: KindItems,
			src:  "\nfunc f() {}\n",
			want: "/*line " + synthetic + ":2:1*/func f() {}\n/*line calc.go.mixin:3:31*/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := New(synthetic, tt.src).Query(tt.kind, diag.NewHandler())
			if err != nil {
				t.Fatal(err)
			}
			if got := frag.Render(synthetic, resume, true); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}
