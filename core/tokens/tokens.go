// Package tokens tokenizes Go template sources for the python_mixin!
// preprocessor. The token stream plays the role of the host compiler's raw
// token tree: it keeps every byte of the input (including whitespace and
// comments) so that untouched regions can be copied through verbatim.
package tokens

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"
)

// Token is a single lexeme with its source position.
type Token = lexer.Token

// Position is a location in a template file.
type Position = lexer.Position

// Definition is the lexer for Go-flavoured template sources. Rules are tried
// in order; Other guarantees that tokenization never fails.
var Definition = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*|/\*(?s:.*?)\*/`},
	{Name: "RawString", Pattern: "`[^`]*`"},
	{Name: "String", Pattern: `"(?:\\.|[^"\\\n])*"`},
	{Name: "Char", Pattern: `'(?:\\.|[^'\\\n])*'`},
	{Name: "Float", Pattern: `[0-9][0-9_]*\.[0-9_]*(?:[eE][+-]?[0-9]+)?|\.[0-9][0-9_]*(?:[eE][+-]?[0-9]+)?`},
	{Name: "Int", Pattern: `0[xX][0-9a-fA-F_]+|0[bB][01_]+|0[oO]?[0-7_]+|[0-9][0-9_]*`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{Nd}_]*`},
	{Name: "Newline", Pattern: `\n`},
	{Name: "Whitespace", Pattern: `[ \t\r\f]+`},
	{Name: "Punct", Pattern: `<<=|>>=|&\^=|\.\.\.|:=|&&|\|\||<-|\+\+|--|==|!=|<=|>=|<<|>>|&\^|[-+*/%&|^]=|[-+*/%&|^<>=!(){}\[\],;.:~]`},
	{Name: "Other", Pattern: `.`},
})

// EOF is the type of the end-of-input token.
const EOF = lexer.EOF

// Token types, resolved from Definition.
var (
	Comment    = symbol("Comment")
	RawString  = symbol("RawString")
	String     = symbol("String")
	Char       = symbol("Char")
	Float      = symbol("Float")
	Int        = symbol("Int")
	Ident      = symbol("Ident")
	Newline    = symbol("Newline")
	Whitespace = symbol("Whitespace")
	Punct      = symbol("Punct")
	Other      = symbol("Other")
)

func symbol(name string) lexer.TokenType {
	t, ok := Definition.Symbols()[name]
	if !ok {
		panic(fmt.Sprintf("tokens: missing lexer rule %q", name))
	}
	return t
}

// Tokenize splits src into tokens. The EOF token is not included.
func Tokenize(filename, src string) ([]Token, error) {
	lex, err := Definition.LexString(filename, src)
	if err != nil {
		return nil, err
	}
	toks, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, err
	}
	if n := len(toks); n > 0 && toks[n-1].EOF() {
		toks = toks[:n-1]
	}
	return toks, nil
}

// IsTrivia reports whether tok carries no syntax (whitespace, newlines or
// comments).
func IsTrivia(tok Token) bool {
	return tok.Type == Whitespace || tok.Type == Newline || tok.Type == Comment
}

// Significant returns toks with trivia removed.
func Significant(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, tok := range toks {
		if !IsTrivia(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// IsStringLit reports whether tok is an interpreted or raw string literal.
func IsStringLit(tok Token) bool {
	return tok.Type == String || tok.Type == RawString
}

// IsPunct reports whether tok is the punctuation s.
func IsPunct(tok Token, s string) bool {
	return tok.Type == Punct && tok.Value == s
}

// Closer returns the closing delimiter for an opening one, or "".
func Closer(open string) string {
	switch open {
	case "(":
		return ")"
	case "[":
		return "]"
	case "{":
		return "}"
	}
	return ""
}

// MatchDelim returns the index of the token closing the group opened at
// toks[i]. Nested groups of any kind are skipped. ok is false when the
// group is never closed or when toks[i] does not open a group.
func MatchDelim(toks []Token, i int) (end int, ok bool) {
	if i >= len(toks) || toks[i].Type != Punct || Closer(toks[i].Value) == "" {
		return 0, false
	}
	var stack []string
	for j := i; j < len(toks); j++ {
		tok := toks[j]
		if tok.Type != Punct {
			continue
		}
		if c := Closer(tok.Value); c != "" {
			stack = append(stack, c)
			continue
		}
		if len(stack) > 0 && tok.Value == stack[len(stack)-1] {
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return j, true
			}
		}
	}
	return 0, false
}

// End returns the position just past tok.
func End(tok Token) Position {
	pos := tok.Pos
	pos.Offset += len(tok.Value)
	if n := strings.Count(tok.Value, "\n"); n > 0 {
		pos.Line += n
		pos.Column = utf8.RuneCountInString(tok.Value[strings.LastIndexByte(tok.Value, '\n')+1:]) + 1
	} else {
		pos.Column += utf8.RuneCountInString(tok.Value)
	}
	return pos
}

// Text concatenates the source text of toks.
func Text(toks []Token) string {
	var sb strings.Builder
	for _, tok := range toks {
		sb.WriteString(tok.Value)
	}
	return sb.String()
}

// NewlineBetween reports whether any newline separates toks[i] and toks[j]
// (exclusive). Newlines inside general comments count.
func NewlineBetween(toks []Token, i, j int) bool {
	for k := i + 1; k < j && k < len(toks); k++ {
		if strings.Contains(toks[k].Value, "\n") && IsTrivia(toks[k]) {
			return true
		}
	}
	return false
}

// TriggersSemicolon reports whether a line ending after tok gets an
// automatic semicolon under the Go grammar.
func TriggersSemicolon(tok Token) bool {
	switch tok.Type {
	case Ident:
		switch tok.Value {
		case "break", "continue", "fallthrough", "return":
			return true
		}
		return !isKeyword(tok.Value)
	case Int, Float, Char, String, RawString:
		return true
	case Punct:
		switch tok.Value {
		case "++", "--", ")", "]", "}":
			return true
		}
	}
	return false
}

var keywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

func isKeyword(s string) bool {
	return keywords[s]
}

// Unquote decodes a string literal token with Go semantics.
func Unquote(tok Token) (string, error) {
	if !IsStringLit(tok) {
		return "", fmt.Errorf("not a string literal: %s", tok.Value)
	}
	return strconv.Unquote(tok.Value)
}

// Describe renders tok for use in messages such as "found `x`".
func Describe(tok Token) string {
	if tok.EOF() {
		return "end of input"
	}
	v := tok.Value
	if len(v) > 32 {
		v = v[:29] + "..."
	}
	return "`" + v + "`"
}
