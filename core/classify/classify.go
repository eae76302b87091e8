// Package classify turns interpreter results into diagnostics.
package classify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/pymixin/core/diag"
	"github.com/FocuswithJustin/pymixin/core/interp"
)

// Outcome is the classification of one interpreter run.
type Outcome int

const (
	// Clean is a successful run with nothing on stderr.
	Clean Outcome = iota
	// Noisy is a successful run that wrote to stderr.
	Noisy
	// Failed is a run that did not exit successfully.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Clean:
		return "clean"
	case Noisy:
		return "noisy"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Proceed reports whether stdout may be spliced.
func (o Outcome) Proceed() bool {
	return o != Failed
}

// Of classifies res without emitting anything.
func Of(res *interp.ExecutionResult) Outcome {
	switch {
	case !res.Success:
		return Failed
	case len(res.Stderr) > 0:
		return Noisy
	}
	return Clean
}

// Classify reports res at sp and returns its outcome. Failed runs produce an
// error and a note; successful runs with stderr output produce a warning and
// a note. Stdout of a failed run is never looked at.
func Classify(res *interp.ExecutionResult, sp diag.Span, h *diag.Handler) Outcome {
	outcome := Of(res)
	switch outcome {
	case Failed:
		h.Errorf(sp, "`python_mixin!` did not execute successfully: %s", res.Status)
		if len(res.Stderr) == 0 {
			h.Note(sp, "there was no output on stderr")
		} else {
			h.Note(sp, "the process emitted the following on stderr:\n"+Lossy(res.Stderr))
		}
	case Noisy:
		h.Warn(sp, "`python_mixin!` ran successfully, but had output on stderr")
		h.Note(sp, "output:\n"+Lossy(res.Stderr))
	}
	return outcome
}

// Lossy decodes b as UTF-8, replacing each maximal invalid subsequence
// with a single U+FFFD.
func Lossy(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			n, _ := invalidSequence(b[i:])
			sb.WriteRune(utf8.RuneError)
			i += n
			continue
		}
		sb.Write(b[i : i+size])
		i += size
	}
	return sb.String()
}

// Decode returns stdout as a string, or reports it at sp when it is not
// valid UTF-8.
func Decode(stdout []byte, sp diag.Span, h *diag.Handler) (string, bool) {
	if err := CheckUTF8(stdout); err != nil {
		h.Errorf(sp, "`python_mixin!` emitted invalid UTF-8: %v", err)
		return "", false
	}
	return string(stdout), true
}

// CheckUTF8 returns an error locating the first invalid sequence in b.
func CheckUTF8(b []byte) error {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			n, incomplete := invalidSequence(b[i:])
			if incomplete {
				return fmt.Errorf("incomplete utf-8 byte sequence from index %d", i)
			}
			return fmt.Errorf("invalid utf-8 sequence of %d bytes from index %d", n, i)
		}
		i += size
	}
	return nil
}

// invalidSequence measures the invalid sequence at the start of b: the
// lead byte plus the continuation bytes that could still have belonged to
// it. incomplete is set when b ends before the sequence could be told
// apart from a truncated valid one; n then covers the rest of b.
func invalidSequence(b []byte) (n int, incomplete bool) {
	lead := b[0]
	var width int
	lo, hi := byte(0x80), byte(0xBF)
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		width = 2
	case lead >= 0xE0 && lead <= 0xEF:
		width = 3
		switch lead {
		case 0xE0:
			lo = 0xA0
		case 0xED:
			hi = 0x9F
		}
	case lead >= 0xF0 && lead <= 0xF4:
		width = 4
		switch lead {
		case 0xF0:
			lo = 0x90
		case 0xF4:
			hi = 0x8F
		}
	default:
		return 1, false
	}

	for k := 1; k < width; k++ {
		if k >= len(b) {
			return len(b), true
		}
		if b[k] < lo || b[k] > hi {
			return k, false
		}
		lo, hi = 0x80, 0xBF
	}
	// a complete sequence is valid
	return width, false
}
