// Package options parses the brace-delimited option block of a
// python_mixin! invocation:
//
//	python_mixin!({ version = "3" } "print(1 + 2)")
//
// Grammar: Options := (Entry (',' Entry)* ','?)? with Entry := Ident '=' String.
// Errors are reported through a diag.Handler and parsing continues, so a
// single pass validates every entry in the block.
package options

import (
	"github.com/FocuswithJustin/pymixin/core/diag"
	"github.com/FocuswithJustin/pymixin/core/setonce"
	"github.com/FocuswithJustin/pymixin/core/tokens"
)

// DefaultVersion is used when the block does not set `version`.
const DefaultVersion = ""

// Options is the validated option record for one invocation.
type Options struct {
	// Version is appended to the interpreter prefix to form the executable
	// name: "" selects python, "3" selects python3, "2.7" selects python2.7.
	Version string
}

// Default returns the options used when no block is present.
func Default() Options {
	return Options{Version: DefaultVersion}
}

type entry struct {
	value string
	span  diag.Span
}

// Parse consumes the tokens found between the braces of an option block.
// end is the span of the closing brace and anchors "end of options"
// messages. Parse always returns a record; unset fields keep their
// defaults even when errors were reported.
func Parse(block []tokens.Token, end diag.Span, h *diag.Handler) Options {
	p := &parser{toks: tokens.Significant(block), end: end, h: h}
	var version setonce.Cell[entry]

	for !p.eof() {
		name := p.next()
		if name.Type != tokens.Ident {
			h.Errorf(diag.SpanOf(name), "`python_mixin!`: expected option name, found %s", tokens.Describe(name))
			p.skipToComma()
		} else {
			switch name.Value {
			case "version":
				if s, sp, ok := p.value(name); ok {
					if prior, ok := version.Set(entry{value: s, span: sp}); !ok {
						h.Error(sp, "`python_mixin!`: option `version` already set")
						h.Note(prior.span, "set here")
					}
				}
			default:
				h.Errorf(diag.SpanOf(name), "`python_mixin!`: unknown option `%s`", name.Value)
				// skip forward so later entries are still checked
				p.skipToComma()
			}
		}

		if p.eof() {
			break
		}
		if tok := p.next(); !tokens.IsPunct(tok, ",") {
			h.Errorf(diag.SpanOf(tok), "`python_mixin!`: expected `,`, found %s", tokens.Describe(tok))
			p.skipToComma()
			if !p.eof() {
				p.next()
			}
		}
	}

	opts := Default()
	if v, ok := version.Take(); ok {
		opts.Version = v.value
	}
	return opts
}

type parser struct {
	toks []tokens.Token
	pos  int
	end  diag.Span
	h    *diag.Handler
}

func (p *parser) eof() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) peek() tokens.Token {
	if p.eof() {
		return tokens.Token{Type: tokens.EOF, Pos: p.end.Start}
	}
	return p.toks[p.pos]
}

func (p *parser) next() tokens.Token {
	tok := p.peek()
	if !p.eof() {
		p.pos++
	}
	return tok
}

func (p *parser) spanOf(tok tokens.Token) diag.Span {
	if tok.EOF() {
		return p.end
	}
	return diag.SpanOf(tok)
}

// value parses `= "string"` after an option name. The returned span covers
// the whole entry.
func (p *parser) value(name tokens.Token) (string, diag.Span, bool) {
	eq := p.next()
	if !tokens.IsPunct(eq, "=") {
		p.h.Errorf(p.spanOf(eq), "`python_mixin!`: expected `=`, found %s", tokens.Describe(eq))
		p.backup(eq)
		p.skipToComma()
		return "", diag.Span{}, false
	}
	lit := p.next()
	if !tokens.IsStringLit(lit) {
		p.h.Errorf(p.spanOf(lit), "`python_mixin!`: expected a string literal, found %s", tokens.Describe(lit))
		p.backup(lit)
		p.skipToComma()
		return "", diag.Span{}, false
	}
	s, err := tokens.Unquote(lit)
	if err != nil {
		p.h.Errorf(diag.SpanOf(lit), "`python_mixin!`: invalid string literal: %v", err)
		return "", diag.Span{}, false
	}
	return s, diag.SpanOf(name, lit), true
}

// backup un-reads tok so that a following skipToComma sees it. Commas must
// not be swallowed by a failed entry.
func (p *parser) backup(tok tokens.Token) {
	if !tok.EOF() && p.pos > 0 {
		p.pos--
	}
}

// skipToComma advances to the next comma outside any nested group without
// consuming it.
func (p *parser) skipToComma() {
	for !p.eof() {
		tok := p.peek()
		if tokens.IsPunct(tok, ",") {
			return
		}
		if tok.Type == tokens.Punct && tokens.Closer(tok.Value) != "" {
			if end, ok := tokens.MatchDelim(p.toks, p.pos); ok {
				p.pos = end + 1
				continue
			}
		}
		p.pos++
	}
}
