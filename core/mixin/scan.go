package mixin

import (
	"strings"

	"github.com/FocuswithJustin/pymixin/core/diag"
	"github.com/FocuswithJustin/pymixin/core/splice"
	"github.com/FocuswithJustin/pymixin/core/tokens"
)

// Sigil is the name of the generic invocation. The explicit-shape variants
// append "_expr", "_items", "_stmts" or "_type".
const Sigil = "python_mixin"

// Invocation is one python_mixin! call found in a template.
type Invocation struct {
	// Name is the sigil as written, without the "!".
	Name string
	Kind splice.Kind
	// Explicit is true when Kind comes from the sigil rather than from the
	// surrounding code.
	Explicit bool
	// Start is the index of the sigil identifier, Open and Close are the
	// indices of the delimiters around the arguments.
	Start, Open, Close int
	Span               diag.Span
}

// Args returns the tokens between the delimiters.
func (inv Invocation) Args(toks []tokens.Token) []tokens.Token {
	return toks[inv.Open+1 : inv.Close]
}

// sigilKind reports whether name is an invocation sigil and which shape it
// forces.
func sigilKind(name string) (kind splice.Kind, explicit, ok bool) {
	if name == Sigil {
		return 0, false, true
	}
	suffix, found := strings.CutPrefix(name, Sigil+"_")
	if !found {
		return 0, false, false
	}
	kind, ok = splice.ParseKind(suffix)
	return kind, ok, ok
}

type frame struct {
	open  string
	block bool
}

// Scan finds every invocation in toks, in source order. Invocations nested
// inside the arguments of another are not reported. Malformed invocations
// are reported to h and skipped.
func Scan(toks []tokens.Token, h *diag.Handler) []Invocation {
	var (
		found []Invocation
		stack []frame
	)

	for i := 0; i < len(toks); i++ {
		tok := toks[i]

		if tok.Type == tokens.Ident && i+1 < len(toks) && tokens.IsPunct(toks[i+1], "!") {
			if kind, explicit, ok := sigilKind(tok.Value); ok {
				inv, next, ok := parseInvocation(toks, i, h)
				if !ok {
					i = next
					continue
				}
				inv.Kind, inv.Explicit = kind, explicit
				if !explicit {
					inv.Kind = inferKind(toks, i, stack)
				}
				found = append(found, inv)
				i = inv.Close
				continue
			}
		}

		if tok.Type != tokens.Punct {
			continue
		}
		switch tok.Value {
		case "(", "[":
			stack = append(stack, frame{open: tok.Value})
		case "{":
			stack = append(stack, frame{open: "{", block: opensBlock(toks, i)})
		case ")", "]", "}":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return found
}

// parseInvocation reads the delimited group after the sigil at toks[i].
// On failure it returns the index scanning should resume after.
func parseInvocation(toks []tokens.Token, i int, h *diag.Handler) (Invocation, int, bool) {
	sigil := toks[i]
	bang := toks[i+1]
	sigilSpan := diag.SpanOf(sigil, bang)
	name := sigil.Value + "!"

	open := i + 2
	for open < len(toks) && tokens.IsTrivia(toks[open]) {
		open++
	}
	if open >= len(toks) || toks[open].Type != tokens.Punct || tokens.Closer(toks[open].Value) == "" {
		h.Errorf(sigilSpan, "expected one of `(`, `[` or `{` after `%s`", name)
		return Invocation{}, i + 1, false
	}

	closeIdx, ok := tokens.MatchDelim(toks, open)
	if !ok {
		h.Errorf(sigilSpan, "unterminated %s invocation", name)
		return Invocation{}, len(toks), false
	}

	return Invocation{
		Name:  sigil.Value,
		Start: i,
		Open:  open,
		Close: closeIdx,
		Span:  sigilSpan.To(diag.SpanOf(toks[closeIdx])),
	}, closeIdx, true
}

// inferKind picks the shape of a generic invocation at toks[i] from the
// innermost enclosing bracket.
func inferKind(toks []tokens.Token, i int, stack []frame) splice.Kind {
	if len(stack) == 0 {
		if beginsStatement(toks, i) {
			return splice.KindItems
		}
		return splice.KindExpr
	}
	top := stack[len(stack)-1]
	if top.open == "{" && top.block && beginsStatement(toks, i) {
		return splice.KindStmts
	}
	return splice.KindExpr
}

// prevSignificant returns the index of the last non-trivia token before i,
// or -1.
func prevSignificant(toks []tokens.Token, i int) int {
	for j := i - 1; j >= 0; j-- {
		if !tokens.IsTrivia(toks[j]) {
			return j
		}
	}
	return -1
}

// beginsStatement reports whether toks[i] starts a statement or a
// top-level declaration under Go's semicolon rules.
func beginsStatement(toks []tokens.Token, i int) bool {
	p := prevSignificant(toks, i)
	if p < 0 {
		return true
	}
	prev := toks[p]
	if tokens.IsPunct(prev, "{") || tokens.IsPunct(prev, "}") || tokens.IsPunct(prev, ";") {
		return true
	}
	if !tokens.NewlineBetween(toks, p, i) {
		return false
	}
	return tokens.TriggersSemicolon(prev) || tokens.IsPunct(prev, ":")
}

// blockKeywords may be followed directly by a block.
var blockKeywords = map[string]bool{
	"else": true, "for": true, "switch": true, "select": true,
}

// opensBlock reports whether the brace at toks[i] opens a block rather
// than a composite literal or a struct or interface body.
func opensBlock(toks []tokens.Token, i int) bool {
	p := prevSignificant(toks, i)
	if p < 0 {
		return true
	}
	prev := toks[p]
	switch {
	case tokens.IsPunct(prev, ")"):
		return true
	case tokens.IsPunct(prev, "{"), tokens.IsPunct(prev, ";"), tokens.IsPunct(prev, ":"):
		return true
	case tokens.IsPunct(prev, "}"):
		return tokens.NewlineBetween(toks, p, i)
	case prev.Type == tokens.Ident && (prev.Value == "struct" || prev.Value == "interface"):
		return false
	case prev.Type == tokens.Ident && blockKeywords[prev.Value]:
		return true
	}

	// if, for and switch headers end in an expression and func signatures
	// may end in a result type; look back to the start of the statement
	// for the keyword that owns the brace.
	depth := 0
	for j := p; j >= 0; j-- {
		tok := toks[j]
		if tokens.IsTrivia(tok) {
			if depth == 0 && strings.Contains(tok.Value, "\n") {
				if q := prevSignificant(toks, j); q >= 0 && tokens.TriggersSemicolon(toks[q]) {
					return false
				}
			}
			continue
		}
		if tok.Type == tokens.Punct {
			switch tok.Value {
			case ")", "]", "}":
				depth++
			case "(", "[", "{":
				if depth == 0 {
					return false
				}
				depth--
			}
			continue
		}
		if depth == 0 && tok.Type == tokens.Ident {
			switch tok.Value {
			case "if", "for", "switch", "select":
				return true
			case "func":
				return !funcType(toks, j)
			}
		}
	}
	return false
}

// funcType reports whether the func keyword at toks[j] starts the element
// type of a composite literal, as in []func() int{...}.
func funcType(toks []tokens.Token, j int) bool {
	q := prevSignificant(toks, j)
	if q < 0 {
		return false
	}
	prev := toks[q]
	return tokens.IsPunct(prev, "]") || (prev.Type == tokens.Ident && (prev.Value == "map" || prev.Value == "chan"))
}
