// Command pymixin expands python_mixin! invocations in Go templates.
// It provides commands for expanding and checking templates, inspecting
// staged payloads and summarizing run transcripts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/FocuswithJustin/pymixin/core/diag"
	apperrors "github.com/FocuswithJustin/pymixin/core/errors"
	"github.com/FocuswithJustin/pymixin/core/interp"
	"github.com/FocuswithJustin/pymixin/core/mixin"
	"github.com/FocuswithJustin/pymixin/core/transcript"
	"github.com/FocuswithJustin/pymixin/internal/config"
	"github.com/FocuswithJustin/pymixin/internal/logging"
)

const version = "0.1.0"

// defaultConfigFile is loaded from the working directory when present.
const defaultConfigFile = ".pymixin.json"

// Injectable functions for testing.
var (
	newRunID   = func() string { return uuid.New().String() }
	isTerminal = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && diag.IsTerminal(f)
	}
)

// Globals are the flags shared by every command.
type Globals struct {
	Config    kong.ConfigFlag `help:"Load flag defaults from a JSON file" placeholder:"FILE"`
	LogLevel  string          `name:"log-level" help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error"`
	LogFormat string          `name:"log-format" help:"Log format (text, json)" default:"text" enum:"text,json"`
	NoColor   bool            `name:"no-color" help:"Disable colored diagnostics"`

	Suffix         string        `help:"Template file suffix" default:"${suffix}"`
	Interpreter    string        `help:"Interpreter family; the version option is appended" default:"${interpreter}"`
	Timeout        time.Duration `help:"Limit for each interpreter run (0 disables)" default:"0s"`
	Gofmt          bool          `help:"Format generated files" default:"true" negatable:""`
	LineDirectives bool          `name:"line-directives" help:"Emit line directives pointing back at templates" default:"true" negatable:""`
	KeepScratch    bool          `name:"keep-scratch" help:"Keep the scratch directory after the run"`
	ScratchDir     string        `name:"scratch-dir" help:"Parent directory for the scratch directory" type:"path"`
	Transcript     string        `help:"Write a JSONL transcript (.xz to compress)" type:"path"`

	stdout io.Writer
	stderr io.Writer
}

// CLI defines the command-line interface for pymixin.
var CLI struct {
	Globals

	Expand      ExpandCmd     `cmd:"" help:"Expand templates and write the generated files"`
	Check       CheckCmd      `cmd:"" help:"Expand templates without writing, failing on errors"`
	Stage       StageCmd      `cmd:"" help:"Stage the payloads of a template and print their paths"`
	Transcripts TranscriptCmd `cmd:"" name:"transcript" help:"Run transcript operations"`
	Version     VersionCmd    `cmd:"" help:"Print version information"`
}

// config maps the flags onto an engine configuration.
func (g *Globals) config() config.Config {
	cfg := config.DefaultConfig()
	cfg.Suffix = g.Suffix
	cfg.Interpreter = g.Interpreter
	cfg.Timeout = g.Timeout
	cfg.Gofmt = g.Gofmt
	cfg.LineDirectives = g.LineDirectives
	cfg.KeepScratch = g.KeepScratch
	cfg.ScratchParent = g.ScratchDir
	cfg.Transcript = g.Transcript
	return cfg
}

func (g *Globals) initLogging() error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

func (g *Globals) renderer() *diag.Renderer {
	return diag.NewRenderer(g.stderr, !g.NoColor && isTerminal(g.stderr))
}

// engine starts an engine for one run and returns the context carrying
// its run id.
func (g *Globals) engine(cfg config.Config) (*mixin.Engine, context.Context, error) {
	if err := g.initLogging(); err != nil {
		return nil, nil, err
	}
	runID := newRunID()
	ctx := logging.WithRunID(context.Background(), runID)
	e, err := mixin.NewEngine(cfg, runID)
	if err != nil {
		return nil, nil, err
	}
	return e, ctx, nil
}

// errFailed is returned after diagnostics explaining the failure were
// already printed.
var errFailed = errors.New("expansion failed")

// process runs the engine over paths and renders every diagnostic.
func (g *Globals) process(paths []string, write bool) error {
	e, ctx, err := g.engine(g.config())
	if err != nil {
		return err
	}

	results, runErr := e.ProcessPaths(ctx, paths, write)
	r := g.renderer()
	failed := 0
	for _, res := range results {
		if err := r.RenderAll(res.Diagnostics); err != nil {
			return err
		}
		switch {
		case res.Errors() > 0:
			failed++
		case res.Written:
			fmt.Fprintf(g.stdout, "wrote %s\n", res.Output)
		}
	}

	closeErr := e.Close()

	var other *multierror.Error
	if runErr != nil {
		var merr *multierror.Error
		if apperrors.As(runErr, &merr) {
			for _, err := range merr.Errors {
				var fileErr *mixin.FileError
				if !apperrors.As(err, &fileErr) {
					other = multierror.Append(other, err)
				}
			}
		} else {
			other = multierror.Append(other, runErr)
		}
	}
	if closeErr != nil {
		other = multierror.Append(other, closeErr)
	}
	if err := other.ErrorOrNil(); err != nil {
		return err
	}
	if failed > 0 {
		fmt.Fprintf(g.stderr, "%d of %d template(s) failed\n", failed, len(results))
		return errFailed
	}
	return nil
}

// ExpandCmd expands templates in place.
type ExpandCmd struct {
	Paths []string `arg:"" name:"path" help:"Template files or directories to walk"`
}

func (c *ExpandCmd) Run(g *Globals) error {
	return g.process(c.Paths, true)
}

// CheckCmd expands templates without writing anything.
type CheckCmd struct {
	Paths []string `arg:"" name:"path" help:"Template files or directories to walk"`
}

func (c *CheckCmd) Run(g *Globals) error {
	if err := g.process(c.Paths, false); err != nil {
		return err
	}
	fmt.Fprintln(g.stdout, "ok")
	return nil
}

// StageCmd writes the payloads of a template into a kept scratch
// directory.
type StageCmd struct {
	File string `arg:"" help:"Template file"`
}

func (c *StageCmd) Run(g *Globals) error {
	cfg := g.config()
	cfg.KeepScratch = true
	e, _, err := g.engine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	h := diag.NewHandler()
	staged, err := e.Stage(c.File, h)
	if rerr := g.renderer().RenderAll(h.Diagnostics()); rerr != nil {
		return rerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "scratch: %s\n", e.ScratchDir())
	for _, sf := range staged {
		fmt.Fprintf(g.stdout, "  %s (%d line(s) of padding)\n", sf.Path, sf.Padding)
	}
	if h.HasErrors() {
		return errFailed
	}
	return nil
}

// TranscriptCmd contains transcript operations.
type TranscriptCmd struct {
	Show TranscriptShowCmd `cmd:"" help:"Summarize a transcript"`
}

// TranscriptShowCmd prints a transcript summary.
type TranscriptShowCmd struct {
	Path string `arg:"" help:"Transcript file (.jsonl or .jsonl.xz)" type:"existingfile"`
}

func (c *TranscriptShowCmd) Run(g *Globals) error {
	t, err := transcript.Load(c.Path)
	if err != nil {
		return apperrors.Wrap(err, "failed to load transcript")
	}
	return t.Print(g.stdout)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout, "pymixin version %s\n", version)
	return nil
}

// exitCode carries a kong exit request out of run.
type exitCode int

// run parses args and executes the selected command. It returns the
// process exit status.
func run(args []string, stdout, stderr io.Writer) (code int) {
	cli := CLI
	cli.stdout, cli.stderr = stdout, stderr

	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()

	parser, err := kong.New(&cli,
		kong.Name("pymixin"),
		kong.Description("Expand python_mixin! invocations in Go templates"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
		kong.Configuration(kong.JSON, defaultConfigFile),
		kong.Vars{
			"suffix":      config.DefaultSuffix,
			"interpreter": interp.Prefix,
		},
	)
	if err != nil {
		fmt.Fprintf(stderr, "pymixin: %v\n", err)
		return 2
	}

	ctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	err = ctx.Run(&cli.Globals)
	if apperrors.Is(err, errFailed) {
		return 1
	}
	parser.FatalIfErrorf(err)
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
