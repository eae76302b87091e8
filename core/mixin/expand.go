package mixin

import (
	"context"
	"errors"

	"github.com/FocuswithJustin/pymixin/core/classify"
	"github.com/FocuswithJustin/pymixin/core/diag"
	apperrors "github.com/FocuswithJustin/pymixin/core/errors"
	"github.com/FocuswithJustin/pymixin/core/interp"
	"github.com/FocuswithJustin/pymixin/core/options"
	"github.com/FocuswithJustin/pymixin/core/payload"
	"github.com/FocuswithJustin/pymixin/core/splice"
	"github.com/FocuswithJustin/pymixin/core/staging"
	"github.com/FocuswithJustin/pymixin/core/tokens"
	"github.com/FocuswithJustin/pymixin/core/transcript"
	"github.com/FocuswithJustin/pymixin/internal/logging"
)

// Expander runs single invocations: options, payload, staging, the
// interpreter, classification and re-splicing, in that order.
type Expander struct {
	Scratch    *staging.Scratch
	Driver     *interp.Driver
	Transcript *transcript.Writer
}

// Expansion is the record of one invocation.
type Expansion struct {
	Invocation Invocation
	Options    options.Options
	Payload    payload.Payload
	Staged     *staging.StagedFile
	Result     *interp.ExecutionResult
	// Synthetic is the file name the output was parsed under.
	Synthetic string
	// Fragment is what replaces the invocation. It is a dummy when any
	// error was reported for the invocation.
	Fragment *splice.Fragment
	Outcome  string
	// Message carries the error that stopped the pipeline, if any.
	Message string
}

// Failed reports whether the invocation was replaced by a dummy.
func (x *Expansion) Failed() bool {
	return x.Fragment == nil || x.Fragment.Dummy
}

// Expand runs inv, found in toks of the template host. Diagnostics go to
// h. The returned expansion always carries a fragment.
func (e *Expander) Expand(ctx context.Context, host string, toks []tokens.Token, inv Invocation, h *diag.Handler) *Expansion {
	start := h.Len()
	x := &Expansion{Invocation: inv}
	defer e.record(ctx, host, x)

	fail := func(outcome string) *Expansion {
		x.Outcome = outcome
		x.Fragment = splice.Dummy(inv.Kind)
		return x
	}

	optToks, rest, end := splitOptions(inv.Args(toks))
	x.Options = options.Parse(optToks, end, h)

	pl, ok := payload.Extract(rest, inv.Span, h)
	if !ok {
		return fail(transcript.OutcomeRejected)
	}
	x.Payload = pl

	staged, err := e.Scratch.Stage(pl.Code, pl.FirstLine(), host)
	if err != nil {
		x.Message = staging.Message(err)
		h.Error(inv.Span, "`python_mixin!` "+x.Message)
		return fail(transcript.OutcomeStagingError)
	}
	x.Staged = staged

	res, err := e.Driver.Run(ctx, x.Options, e.Scratch.Dir(), staged.Rel)
	if err != nil {
		var spawnErr *apperrors.SpawnError
		if errors.As(err, &spawnErr) {
			logging.InterpreterError(ctx, spawnErr.Command, spawnErr.Err)
		}
		x.Message = err.Error()
		h.Error(inv.Span, "`python_mixin!` "+x.Message)
		return fail(transcript.OutcomeSpawnError)
	}
	x.Result = res
	logging.InterpreterRun(ctx, res.Command, res.Status, res.Duration, "file", host, "line", pl.FirstLine())

	outcome := classify.Classify(res, inv.Span, h)
	if !outcome.Proceed() {
		return fail(transcript.OutcomeFailed)
	}

	code, ok := classify.Decode(res.Stdout, inv.Span, h)
	if !ok {
		return fail(transcript.OutcomeFailed)
	}

	if hasErrors(h.Since(start)) {
		return fail(transcript.OutcomeRejected)
	}

	x.Synthetic = splice.SyntheticName(host, pl.FirstLine())
	frag, err := splice.New(x.Synthetic, code).Query(inv.Kind, h)
	if err != nil {
		return fail(transcript.OutcomeRejected)
	}
	x.Fragment = frag

	if outcome == classify.Noisy {
		x.Outcome = transcript.OutcomeWarned
	} else {
		x.Outcome = transcript.OutcomeExpanded
	}
	return x
}

func hasErrors(diags []diag.Diagnostic) bool {
	for _, d := range diags {
		if d.Level == diag.LevelError {
			return true
		}
	}
	return false
}

// splitOptions separates a leading { ... } option block from the payload
// tokens. end is the span of the block's closing brace, or of the end of
// the arguments when there is no block.
func splitOptions(args []tokens.Token) (opts, rest []tokens.Token, end diag.Span) {
	first := -1
	for i, tok := range args {
		if !tokens.IsTrivia(tok) {
			first = i
			break
		}
	}
	if first < 0 || !tokens.IsPunct(args[first], "{") {
		return nil, args, endSpan(args)
	}
	closeIdx, ok := tokens.MatchDelim(args, first)
	if !ok {
		return nil, args, endSpan(args)
	}
	return args[first+1 : closeIdx], args[closeIdx+1:], diag.SpanOf(args[closeIdx])
}

func endSpan(args []tokens.Token) diag.Span {
	if len(args) == 0 {
		return diag.Span{}
	}
	end := tokens.End(args[len(args)-1])
	return diag.Span{Start: end, End: end}
}

func (e *Expander) record(ctx context.Context, host string, x *Expansion) {
	line := x.Invocation.Span.Start.Line
	if x.Payload.First.Value != "" {
		line = x.Payload.FirstLine()
	}
	kind := x.Invocation.Kind.String()
	logging.Expansion(ctx, host, line, kind, x.Outcome)

	ev := transcript.Event{
		Type:    transcript.EventExpansion,
		File:    host,
		Line:    line,
		Kind:    kind,
		Command: e.Driver.CommandName(x.Options),
		Outcome: x.Outcome,
		Message: x.Message,
	}
	if x.Payload.First.Value != "" {
		ev.PayloadBLAKE3 = transcript.HashPayload(x.Payload.Code)
	}
	if res := x.Result; res != nil {
		ev.ExitCode = res.ExitCode
		ev.Status = res.Status
		ev.DurationMS = res.Duration.Milliseconds()
		ev.StdoutSHA256 = transcript.HashOutput(res.Stdout)
		ev.StdoutBytes = int64(len(res.Stdout))
		ev.Stderr = classify.Lossy(res.Stderr)
	}
	if err := e.Transcript.Emit(ev); err != nil {
		logging.WarnContext(ctx, "transcript write failed", "error", err)
	}
}
