// Package staging materialises embedded programs on disk.
//
// Every program is written below a scratch directory that lives as long as
// the preprocessor engine. The staged file is padded with blank lines so
// that line N of the staged file is line N of the template it came from;
// interpreter tracebacks therefore point at template lines.
package staging

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/FocuswithJustin/pymixin/core/errors"
	"github.com/FocuswithJustin/pymixin/internal/validation"
)

// Operations reported in *errors.IOError values returned by Stage.
const (
	OpCreateDir  = "create directory"
	OpCreateFile = "create file"
	OpWrite      = "write"
	OpFlush      = "flush"
)

// Injectable functions for testing.
var (
	osMkdirTemp = os.MkdirTemp
	osMkdirAll  = os.MkdirAll
	createFile  = func(name string) (io.WriteCloser, error) { return os.Create(name) }
)

// Scratch is a temporary directory owned by one engine instance.
type Scratch struct {
	dir string
}

// NewScratch creates a fresh scratch directory under the system temp dir.
func NewScratch() (*Scratch, error) {
	return NewScratchIn("")
}

// NewScratchIn creates a fresh scratch directory under parent. An empty
// parent means the system temp dir.
func NewScratchIn(parent string) (*Scratch, error) {
	dir, err := osMkdirTemp(parent, "pymixin-*")
	if err != nil {
		return nil, apperrors.NewIO(OpCreateDir, parent, err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string {
	return s.dir
}

// Close removes the scratch directory and everything staged in it.
func (s *Scratch) Close() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}

// StagedFile describes a program written into the scratch directory.
type StagedFile struct {
	// Rel is the path relative to the scratch directory. It is what the
	// interpreter receives as its argument.
	Rel string
	// Path is the absolute location on disk.
	Path string
	// Padding is the number of newline bytes written before the payload.
	Padding int
}

// StagedName maps a template filename to its location inside the scratch
// directory. Absolute paths keep only their base name; relative paths are
// preserved. Relative paths that climb out of the scratch root with ".."
// are treated like absolute ones.
func StagedName(hostFilename string) string {
	if hostFilename == "" {
		return "python_mixin"
	}
	if filepath.IsAbs(hostFilename) {
		return filepath.Base(hostFilename)
	}
	rel, err := validation.SanitizePath(".", hostFilename)
	if err != nil {
		return filepath.Base(hostFilename)
	}
	return rel
}

// Stage writes code to the scratch file derived from hostFilename. The file
// starts with firstLine-1 newlines. A previous file staged from the same
// template is overwritten.
func (s *Scratch) Stage(code string, firstLine int, hostFilename string) (*StagedFile, error) {
	rel := StagedName(hostFilename)
	path := filepath.Join(s.dir, rel)

	if err := osMkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.NewIO(OpCreateDir, filepath.Dir(path), err)
	}

	f, err := createFile(path)
	if err != nil {
		return nil, apperrors.NewIO(OpCreateFile, path, err)
	}
	defer f.Close()

	padding := firstLine - 1
	if padding < 0 {
		padding = 0
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(bytes.Repeat([]byte{'\n'}, padding)); err != nil {
		return nil, apperrors.NewIO(OpWrite, path, err)
	}
	if _, err := w.WriteString(code); err != nil {
		return nil, apperrors.NewIO(OpWrite, path, err)
	}
	if err := w.Flush(); err != nil {
		return nil, apperrors.NewIO(OpFlush, path, err)
	}
	if err := f.Close(); err != nil {
		return nil, apperrors.NewIO(OpFlush, path, err)
	}

	return &StagedFile{Rel: rel, Path: path, Padding: padding}, nil
}

// Message renders a staging failure the way it is reported to the user.
func Message(err error) string {
	var ioErr *apperrors.IOError
	if apperrors.As(err, &ioErr) {
		switch ioErr.Operation {
		case OpCreateDir:
			return fmt.Sprintf("could not create temporary directory: %v", ioErr.Err)
		case OpCreateFile:
			return fmt.Sprintf("could not create temporary file: %v", ioErr.Err)
		case OpWrite:
			return fmt.Sprintf("could not write output: %v", ioErr.Err)
		case OpFlush:
			return fmt.Sprintf("could not flush output: %v", ioErr.Err)
		}
	}
	return err.Error()
}
