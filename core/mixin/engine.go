// Package mixin is the python_mixin! preprocessor for Go templates.
//
// A template is Go source with python_mixin! invocations in it:
//
//	var answer = python_mixin!("print(1 + 2)")
//
// Each invocation's payload is run with a python interpreter and the
// invocation is replaced by whatever the program printed, parsed as the
// Go construct the invocation's position requires. An Engine owns the
// scratch directory payloads are staged in and processes templates one
// invocation at a time.
package mixin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/FocuswithJustin/pymixin/core/diag"
	apperrors "github.com/FocuswithJustin/pymixin/core/errors"
	"github.com/FocuswithJustin/pymixin/core/interp"
	"github.com/FocuswithJustin/pymixin/core/payload"
	"github.com/FocuswithJustin/pymixin/core/staging"
	"github.com/FocuswithJustin/pymixin/core/tokens"
	"github.com/FocuswithJustin/pymixin/core/transcript"
	"github.com/FocuswithJustin/pymixin/internal/config"
	"github.com/FocuswithJustin/pymixin/internal/fileutil"
	"github.com/FocuswithJustin/pymixin/internal/logging"
)

// Injectable functions for testing.
var (
	osReadFile     = os.ReadFile
	writeIfChanged = fileutil.WriteIfChanged
	newScratchIn   = staging.NewScratchIn
	osRename       = os.Rename
)

// FileError reports a template that could not be expanded because of
// error diagnostics.
type FileError struct {
	Path   string
	Errors int
}

func (e *FileError) Error() string {
	if e.Errors == 1 {
		return fmt.Sprintf("%s: 1 error", e.Path)
	}
	return fmt.Sprintf("%s: %d errors", e.Path, e.Errors)
}

// FileResult is the outcome of processing one template.
type FileResult struct {
	Template string
	Output   string
	// Source is the generated file, whether or not it was written.
	Source      string
	Expansions  []*Expansion
	Diagnostics []diag.Diagnostic
	Written     bool
	// Unchanged is set when the output already held Source.
	Unchanged bool
}

// Errors returns the number of error diagnostics.
func (r *FileResult) Errors() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Level == diag.LevelError {
			n++
		}
	}
	return n
}

// Engine expands templates. It is not safe for concurrent use.
type Engine struct {
	cfg      config.Config
	runID    string
	scratch  *staging.Scratch
	expander *Expander
	trans    *transcript.Writer
	files    int
	failed   int
}

// NewEngine validates cfg, creates the scratch directory and opens the
// transcript, if one is configured.
func NewEngine(cfg config.Config, runID string) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scratch, err := newScratchIn(cfg.ScratchParent)
	if err != nil {
		return nil, errors.New(staging.Message(err))
	}
	logging.ScratchEvent(context.Background(), "created", scratch.Dir(), "run_id", runID)

	var trans *transcript.Writer
	if cfg.Transcript != "" {
		trans, err = transcript.Create(cfg.Transcript, runID)
		if err != nil {
			scratch.Close()
			return nil, err
		}
		if err := trans.Emit(transcript.Event{
			Type:    transcript.EventRunStart,
			Message: "pymixin",
			Attributes: map[string]any{
				"interpreter": cfg.Interpreter,
				"scratch":     scratch.Dir(),
			},
		}); err != nil {
			trans.Close()
			scratch.Close()
			return nil, err
		}
	}

	driver := interp.NewDriver()
	driver.Prefix = cfg.Interpreter
	driver.Timeout = cfg.Timeout

	return &Engine{
		cfg:     cfg,
		runID:   runID,
		scratch: scratch,
		trans:   trans,
		expander: &Expander{
			Scratch:    scratch,
			Driver:     driver,
			Transcript: trans,
		},
	}, nil
}

// RunID returns the id the engine stamps on transcripts.
func (e *Engine) RunID() string { return e.runID }

// logContext carries the run ID for log records outside a request.
func (e *Engine) logContext() context.Context {
	return logging.WithRunID(context.Background(), e.runID)
}

// ScratchDir returns the scratch directory.
func (e *Engine) ScratchDir() string { return e.scratch.Dir() }

// Close finishes the transcript and removes the scratch directory unless
// the configuration keeps it.
func (e *Engine) Close() error {
	var result *multierror.Error

	if e.trans != nil {
		err := e.trans.Emit(transcript.Event{
			Type:    transcript.EventRunEnd,
			Errors:  e.failed,
			Message: fmt.Sprintf("%d file(s)", e.files),
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
		if err := e.trans.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		e.trans = nil
		e.expander.Transcript = nil
	}

	if e.cfg.KeepScratch {
		logging.InfoContext(e.logContext(), "keeping scratch directory", "dir", e.scratch.Dir())
	} else {
		dir := e.scratch.Dir()
		if err := e.scratch.Close(); err != nil {
			result = multierror.Append(result, apperrors.Wrap(err, "failed to remove scratch directory"))
		} else if dir != "" {
			logging.ScratchEvent(e.logContext(), "removed", dir)
		}
	}
	return result.ErrorOrNil()
}

// ExpandSource expands every invocation in src, the contents of the
// template host, and returns the generated file. The result must not be
// used when h holds errors.
func (e *Engine) ExpandSource(ctx context.Context, host, src string, h *diag.Handler) (string, []*Expansion) {
	toks, err := tokens.Tokenize(host, src)
	if err != nil {
		pos := tokens.Position{Filename: host, Line: 1, Column: 1}
		h.Errorf(diag.Span{Start: pos, End: pos}, "could not tokenize template: %v", err)
		return "", nil
	}

	invocations := Scan(toks, h)
	expansions := make([]*Expansion, 0, len(invocations))
	edits := make([]Edit, 0, len(invocations))
	for _, inv := range invocations {
		x := e.expander.Expand(ctx, host, toks, inv, h)
		expansions = append(expansions, x)
		resume := resumeLocation(src, host, toks[inv.Close])
		edits = append(edits, Edit{
			Start: toks[inv.Start].Pos.Offset,
			End:   tokens.End(toks[inv.Close]).Offset,
			Text:  x.Fragment.Render(x.Synthetic, resume, e.cfg.LineDirectives),
		})
	}

	out := render(src, host, edits, e.cfg.LineDirectives)
	if e.cfg.Gofmt && !h.HasErrors() {
		out, _ = gofmt(out, strings.TrimSuffix(host, e.cfg.Suffix), h)
	}
	if e.cfg.LineDirectives {
		out = tightenDirectives(out)
	}
	return out, expansions
}

// ProcessFile expands the template at path. With write set the generated
// file is written next to it, unless errors were reported. A *FileError is
// returned when the template had errors; the result is still returned so
// the caller can render its diagnostics.
func (e *Engine) ProcessFile(ctx context.Context, path string, write bool) (*FileResult, error) {
	outPath, err := e.cfg.OutputPath(path)
	if err != nil {
		return nil, apperrors.NewValidation("path", err.Error())
	}
	data, err := osReadFile(path)
	if err != nil {
		return nil, apperrors.NewIO("read", path, err)
	}

	h := diag.NewHandler()
	out, expansions := e.ExpandSource(ctx, path, string(data), h)
	res := &FileResult{
		Template:    path,
		Output:      outPath,
		Source:      out,
		Expansions:  expansions,
		Diagnostics: h.Diagnostics(),
	}
	e.files++

	var result error
	if h.HasErrors() {
		e.failed++
		result = &FileError{Path: path, Errors: h.ErrorCount()}
	} else if write {
		changed, err := writeIfChanged(outPath, []byte(out), 0644)
		if err != nil {
			e.failed++
			logging.ErrorContext(ctx, "failed to write output", "output", outPath, "error", err)
			result = apperrors.NewIO("write", outPath, err)
		} else {
			res.Written = changed
			res.Unchanged = !changed
		}
	}

	logging.FileProcessed(ctx, path, outPath, len(expansions), h.ErrorCount(), "written", res.Written)
	if err := e.trans.Emit(transcript.Event{
		Type:     transcript.EventFileDone,
		File:     path,
		Errors:   h.ErrorCount(),
		Warnings: h.WarningCount(),
		Attributes: map[string]any{
			"output":      outPath,
			"invocations": len(expansions),
			"written":     res.Written,
		},
	}); err != nil {
		logging.WarnContext(ctx, "transcript write failed", "error", err)
	}
	return res, result
}

// ProcessPaths processes every template named by paths. Directories are
// walked for files with the template suffix. A failing template does not
// stop the others; all failures are returned together.
func (e *Engine) ProcessPaths(ctx context.Context, paths []string, write bool) ([]*FileResult, error) {
	files, err := e.Collect(paths)
	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}

	var results []*FileResult
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		res, err := e.ProcessFile(ctx, path, write)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return results, result.ErrorOrNil()
}

// Collect expands paths into the list of templates to process.
// Directories are walked recursively, skipping hidden directories,
// vendor and testdata.
func (e *Engine) Collect(paths []string) ([]string, error) {
	var (
		files  []string
		result *multierror.Error
	)
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			result = multierror.Append(result, apperrors.NewIO("stat", root, err))
			continue
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != root && (strings.HasPrefix(name, ".") || name == "vendor" || name == "testdata") {
					logging.DebugContext(e.logContext(), "skipping directory", "dir", path)
					return filepath.SkipDir
				}
				return nil
			}
			if e.cfg.IsTemplate(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			result = multierror.Append(result, apperrors.NewIO("walk", root, err))
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return files, result.ErrorOrNil()
}

// Stage writes the payloads of every invocation in the template at path
// into the scratch directory without running them. Invocations whose
// payload cannot be extracted are reported to h and skipped.
func (e *Engine) Stage(path string, h *diag.Handler) ([]*staging.StagedFile, error) {
	data, err := osReadFile(path)
	if err != nil {
		return nil, apperrors.NewIO("read", path, err)
	}
	toks, err := tokens.Tokenize(path, string(data))
	if err != nil {
		return nil, apperrors.NewParse("template", path, err.Error())
	}

	var staged []*staging.StagedFile
	for _, inv := range Scan(toks, h) {
		_, rest, _ := splitOptions(inv.Args(toks))
		pl, ok := payload.Extract(rest, inv.Span, h)
		if !ok {
			continue
		}
		sf, err := e.scratch.Stage(pl.Code, pl.FirstLine(), path)
		if err != nil {
			h.Error(inv.Span, "`python_mixin!` "+staging.Message(err))
			continue
		}
		// each invocation overwrites the last; keep a copy per line
		keep := fmt.Sprintf("%s.line%d", sf.Path, pl.FirstLine())
		if err := osRename(sf.Path, keep); err != nil {
			return staged, apperrors.NewIO("rename", sf.Path, err)
		}
		sf.Path = keep
		sf.Rel += fmt.Sprintf(".line%d", pl.FirstLine())
		staged = append(staged, sf)
	}
	return staged, nil
}
