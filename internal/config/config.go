// Package config holds the settings of an expansion run.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/pymixin/core/interp"
	"github.com/FocuswithJustin/pymixin/internal/validation"
)

// DefaultSuffix marks template files: calc.go.mixin generates calc.go.
const DefaultSuffix = ".mixin"

// ErrConfiguration is returned by Validate.
var ErrConfiguration = errors.New("invalid configuration")

// Config holds the configuration for an expansion run.
type Config struct {
	// Suffix identifies template files. The generated file is the template
	// path with the suffix removed.
	Suffix string

	// Interpreter is the interpreter family; the version option is
	// appended to it. Defaults to "python".
	Interpreter string

	// Timeout bounds each interpreter run. Zero means no limit.
	Timeout time.Duration

	// Gofmt formats generated files with go/format.
	Gofmt bool

	// LineDirectives brackets spliced code with /*line*/ comments so that
	// compiler errors point at the invocation.
	LineDirectives bool

	// KeepScratch leaves the scratch directory in place after the run.
	KeepScratch bool

	// ScratchParent is where the scratch directory is created. Empty
	// means the system temp dir.
	ScratchParent string

	// Transcript is the path of the JSONL transcript. Empty disables it.
	Transcript string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Suffix:         DefaultSuffix,
		Interpreter:    interp.Prefix,
		Gofmt:          true,
		LineDirectives: true,
	}
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	var problems []string

	switch {
	case c.Suffix == "":
		problems = append(problems, "suffix must not be empty")
	case !strings.HasPrefix(c.Suffix, "."):
		problems = append(problems, fmt.Sprintf("suffix %q must start with a dot", c.Suffix))
	case strings.ContainsRune(c.Suffix, filepath.Separator):
		problems = append(problems, fmt.Sprintf("suffix %q must not contain a path separator", c.Suffix))
	}

	if c.Interpreter == "" {
		problems = append(problems, "interpreter must not be empty")
	} else if strings.ContainsAny(c.Interpreter, `/\`) {
		problems = append(problems, fmt.Sprintf("interpreter %q must be a command name, not a path", c.Interpreter))
	}

	if c.Timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}

	if c.Transcript != "" {
		if err := validation.ValidatePath(c.Transcript); err != nil {
			problems = append(problems, fmt.Sprintf("transcript: %v", err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// IsTemplate reports whether path carries the template suffix.
func (c *Config) IsTemplate(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, c.Suffix) && len(base) > len(c.Suffix)
}

// OutputPath returns the file generated from template.
func (c *Config) OutputPath(template string) (string, error) {
	if !c.IsTemplate(template) {
		return "", fmt.Errorf("%s is not a template (expected suffix %q)", template, c.Suffix)
	}
	return strings.TrimSuffix(template, c.Suffix), nil
}
