package mixin

import (
	"errors"
	"fmt"
	"go/format"
	"go/scanner"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/pymixin/core/diag"
	"github.com/FocuswithJustin/pymixin/core/splice"
	"github.com/FocuswithJustin/pymixin/core/tokens"
)

// Injectable functions for testing.
var formatSource = format.Source

// Edit replaces src[Start:End] with Text.
type Edit struct {
	Start, End int
	Text       string
}

// Apply performs edits on src. Edits must be sorted and must not overlap.
func Apply(src string, edits []Edit) string {
	var sb strings.Builder
	sb.Grow(len(src))
	pos := 0
	for _, ed := range edits {
		sb.WriteString(src[pos:ed.Start])
		sb.WriteString(ed.Text)
		pos = ed.End
	}
	sb.WriteString(src[pos:])
	return sb.String()
}

// Header returns the generated-code marker for a file produced from
// template.
func Header(template string) string {
	return fmt.Sprintf("// Code generated by pymixin from %s. DO NOT EDIT.\n\n", filepath.Base(template))
}

// resumeLocation is where the template text after an invocation continues,
// as a line directive target: the first byte after endTok that is not a
// blank. Columns are in bytes.
func resumeLocation(src, host string, endTok tokens.Token) splice.Location {
	end := tokens.End(endTok)
	off := end.Offset
	for off < len(src) && (src[off] == ' ' || src[off] == '\t') {
		off++
	}
	lineStart := strings.LastIndexByte(src[:end.Offset], '\n') + 1
	return splice.Location{
		Filename: filepath.Base(host),
		Line:     end.Line,
		Column:   off - lineStart + 1,
	}
}

// tightenDirectives drops the blanks after each /*line*/ comment in out so
// the token that follows sits at the column the directive names.
func tightenDirectives(out string) string {
	src := []byte(out)
	file := token.NewFileSet().AddFile("", -1, len(src))
	var s scanner.Scanner
	s.Init(file, src, nil, scanner.ScanComments)

	var sb strings.Builder
	sb.Grow(len(out))
	last := 0
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		if tok != token.COMMENT || !strings.HasPrefix(lit, "/*line ") {
			continue
		}
		end := file.Offset(pos) + len(lit)
		next := end
		for next < len(src) && (src[next] == ' ' || src[next] == '\t') {
			next++
		}
		sb.WriteString(out[last:end])
		last = next
	}
	sb.WriteString(out[last:])
	return sb.String()
}

// render assembles the generated file from the template source and the
// replacement fragments.
func render(src, host string, edits []Edit, directives bool) string {
	var sb strings.Builder
	sb.WriteString(Header(host))
	if directives {
		fmt.Fprintf(&sb, "//line %s:1\n", filepath.Base(host))
	}
	sb.WriteString(Apply(src, edits))
	return sb.String()
}

// gofmt formats out. Syntax errors are reported to h; positions follow the
// line directives in out, so they point into the template or the
// interpreter output. outName names positions outside any directive.
func gofmt(out, outName string, h *diag.Handler) (string, bool) {
	formatted, err := formatSource([]byte(out))
	if err == nil {
		return string(formatted), true
	}

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
				pos.Filename = outName
			}
			h.Error(diag.Span{Start: pos, End: pos}, item.Msg)
		}
		return out, false
	}
	pos := tokens.Position{Filename: outName, Line: 1, Column: 1}
	h.Errorf(diag.Span{Start: pos, End: pos}, "could not format generated code: %v", err)
	return out, false
}
