// Package payload extracts the embedded program from the tokens that follow
// the option block of a python_mixin! invocation.
//
// The payload must reduce to exactly one string. Besides plain string
// literals the extractor understands the host-side textual macros
//
//	"a" + "b"
//	concat!("x = ", 1, " + ", 2)
//	stringify!(1 + 2)
//
// which are expanded before the program is staged.
package payload

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/pymixin/core/diag"
	"github.com/FocuswithJustin/pymixin/core/tokens"
)

// Payload is the decoded program source and where it came from.
type Payload struct {
	Code string
	// First is the first token of the payload. Its line is the line the
	// staged program is aligned to.
	First tokens.Token
	Span  diag.Span
}

// FirstLine returns the source line of the first payload token.
func (p Payload) FirstLine() int {
	return p.First.Pos.Line
}

// Extract reduces toks to a single string. On failure it reports
// "expected a string literal" at call and returns false.
func Extract(toks []tokens.Token, call diag.Span, h *diag.Handler) (Payload, bool) {
	sig := tokens.Significant(toks)
	if len(sig) == 0 {
		h.Error(call, "`python_mixin!` expected a string literal")
		return Payload{}, false
	}

	e := &extractor{toks: sig}
	code, err := e.expr()
	if err == nil && !e.eof() {
		err = &unexpected{tok: e.peek(), msg: "expected only one string literal"}
	}
	if err != nil {
		h.Error(call, "`python_mixin!` expected a string literal")
		if u, ok := err.(*unexpected); ok {
			h.Note(diag.SpanOf(u.tok), u.Error())
		}
		return Payload{}, false
	}

	return Payload{
		Code:  code,
		First: sig[0],
		Span:  diag.SpanOf(sig[0], sig[len(sig)-1]),
	}, true
}

type unexpected struct {
	tok tokens.Token
	msg string
}

func (u *unexpected) Error() string {
	if u.msg != "" {
		return fmt.Sprintf("%s, found %s", u.msg, tokens.Describe(u.tok))
	}
	return fmt.Sprintf("unexpected %s", tokens.Describe(u.tok))
}

type extractor struct {
	toks []tokens.Token
	pos  int
}

func (e *extractor) eof() bool {
	return e.pos >= len(e.toks)
}

func (e *extractor) peek() tokens.Token {
	if e.eof() {
		return tokens.Token{Type: tokens.EOF}
	}
	return e.toks[e.pos]
}

func (e *extractor) next() tokens.Token {
	tok := e.peek()
	if !e.eof() {
		e.pos++
	}
	return tok
}

// expr := atom ('+' atom)*
func (e *extractor) expr() (string, error) {
	var sb strings.Builder
	s, err := e.atom()
	if err != nil {
		return "", err
	}
	sb.WriteString(s)
	for tokens.IsPunct(e.peek(), "+") {
		e.next()
		s, err := e.atom()
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// atom := String | RawString | macro
func (e *extractor) atom() (string, error) {
	tok := e.peek()
	switch {
	case tokens.IsStringLit(tok):
		e.next()
		return unquote(tok)
	case tok.Type == tokens.Ident:
		return e.macro()
	}
	return "", &unexpected{tok: tok, msg: "expected a string literal"}
}

// macro := ('concat' | 'stringify') '!' group
func (e *extractor) macro() (string, error) {
	name := e.next()
	if name.Value != "concat" && name.Value != "stringify" {
		return "", &unexpected{tok: name, msg: "expected a string literal or concat!/stringify!"}
	}
	if bang := e.next(); !tokens.IsPunct(bang, "!") {
		return "", &unexpected{tok: bang, msg: "expected `!`"}
	}
	open := e.pos
	if e.eof() || tokens.Closer(e.peek().Value) == "" || e.peek().Type != tokens.Punct {
		return "", &unexpected{tok: e.peek(), msg: "expected a delimited argument list"}
	}
	end, ok := tokens.MatchDelim(e.toks, open)
	if !ok {
		return "", &unexpected{tok: e.peek(), msg: "unclosed delimiter"}
	}
	inner := e.toks[open+1 : end]
	e.pos = end + 1

	if name.Value == "stringify" {
		return stringify(inner), nil
	}
	return concat(inner)
}

// concat joins literal arguments separated by commas.
func concat(args []tokens.Token) (string, error) {
	e := &extractor{toks: args}
	var sb strings.Builder
	for !e.eof() {
		s, err := e.literal()
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
		if e.eof() {
			break
		}
		if tok := e.next(); !tokens.IsPunct(tok, ",") {
			return "", &unexpected{tok: tok, msg: "expected `,`"}
		}
	}
	return sb.String(), nil
}

func (e *extractor) literal() (string, error) {
	tok := e.peek()
	switch {
	case tokens.IsStringLit(tok):
		e.next()
		return unquote(tok)
	case tok.Type == tokens.Char:
		e.next()
		return unquote(tok)
	case tok.Type == tokens.Int || tok.Type == tokens.Float:
		e.next()
		return number(tok)
	case tokens.IsPunct(tok, "-"):
		e.next()
		n := e.next()
		if n.Type != tokens.Int && n.Type != tokens.Float {
			return "", &unexpected{tok: n, msg: "expected a number"}
		}
		s, err := number(n)
		if err != nil {
			return "", err
		}
		return "-" + s, nil
	case tok.Type == tokens.Ident && (tok.Value == "true" || tok.Value == "false"):
		e.next()
		return tok.Value, nil
	case tok.Type == tokens.Ident:
		return e.macro()
	}
	return "", &unexpected{tok: tok, msg: "expected a literal"}
}

// number renders a numeric literal the way concat! prints it: integers in
// decimal whatever base they were written in, floats as written.
func number(tok tokens.Token) (string, error) {
	v := strings.ReplaceAll(tok.Value, "_", "")
	if tok.Type == tokens.Float {
		return v, nil
	}
	n, ok := new(big.Int).SetString(v, 0)
	if !ok {
		return "", &unexpected{tok: tok, msg: "invalid integer literal"}
	}
	return n.String(), nil
}

// stringify renders tokens as written, separated by single spaces.
func stringify(toks []tokens.Token) string {
	parts := make([]string, len(toks))
	for i, tok := range toks {
		parts[i] = tok.Value
	}
	return strings.Join(parts, " ")
}

func unquote(tok tokens.Token) (string, error) {
	s, err := strconv.Unquote(tok.Value)
	if err != nil {
		return "", &unexpected{tok: tok, msg: "invalid literal"}
	}
	return s, nil
}
