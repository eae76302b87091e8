// Package interp runs the embedded-program interpreter on a staged file.
package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	apperrors "github.com/FocuswithJustin/pymixin/core/errors"
	"github.com/FocuswithJustin/pymixin/core/options"
)

// Prefix is the interpreter family. The executable name is Prefix followed
// by the version option, without a separator.
const Prefix = "python"

// Injectable functions for testing.
var (
	execCommandContext = exec.CommandContext
	timeNow            = time.Now
)

// ExecutionResult is the outcome of one interpreter run.
type ExecutionResult struct {
	Command  string
	Success  bool
	ExitCode int
	// Status is the termination state as reported by the OS, e.g.
	// "exit status 1" or "signal: killed".
	Status   string
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TimedOut bool
}

// Driver starts interpreter processes.
type Driver struct {
	// Prefix overrides the interpreter family; empty means Prefix.
	Prefix string
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
}

// NewDriver creates a driver for the python interpreter family.
func NewDriver() *Driver {
	return &Driver{Prefix: Prefix}
}

// CommandName returns the executable selected by opts.
func (d *Driver) CommandName(opts options.Options) string {
	prefix := d.Prefix
	if prefix == "" {
		prefix = Prefix
	}
	return prefix + opts.Version
}

// Run executes the interpreter with rel as its only argument and dir as its
// working directory. Stdin is not connected and the environment is
// inherited. A process that starts and exits unsuccessfully is not an
// error; the returned error is always an *errors.SpawnError.
func (d *Driver) Run(ctx context.Context, opts options.Options, dir, rel string) (*ExecutionResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	name := d.CommandName(opts)
	cmd := execCommandContext(ctx, name, rel)
	cmd.Dir = dir
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := timeNow()
	runErr := cmd.Run()
	duration := timeNow().Sub(start)

	result := &ExecutionResult{
		Command:  name,
		Duration: duration,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, apperrors.NewSpawn(name, runErr)
		}
		result.ExitCode = exitErr.ExitCode()
		result.Status = exitErr.ProcessState.String()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.Status = fmt.Sprintf("%s (timed out after %s)", result.Status, d.Timeout)
		}
	} else {
		result.Success = true
		result.Status = cmd.ProcessState.String()
	}

	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()
	return result, nil
}
