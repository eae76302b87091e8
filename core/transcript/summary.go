package transcript

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// Transcript is a parsed transcript with helper methods.
type Transcript struct {
	Events []Event
	Path   string
}

// Load loads a transcript from a file.
func Load(path string) (*Transcript, error) {
	events, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return &Transcript{Events: events, Path: path}, nil
}

// RunID returns the run id of the first event, if any.
func (t *Transcript) RunID() string {
	for _, ev := range t.Events {
		if ev.RunID != "" {
			return ev.RunID
		}
	}
	return ""
}

// Expansions returns every EXPANSION event.
func (t *Transcript) Expansions() []Event {
	return t.ofType(EventExpansion)
}

// Failures returns EXPANSION events whose invocation did not splice.
func (t *Transcript) Failures() []Event {
	var out []Event
	for _, ev := range t.Expansions() {
		switch ev.Outcome {
		case OutcomeExpanded, OutcomeWarned:
		default:
			out = append(out, ev)
		}
	}
	return out
}

// Complete reports whether the run reached RUN_END.
func (t *Transcript) Complete() bool {
	return len(t.ofType(EventRunEnd)) > 0
}

// EventCount returns the total number of events.
func (t *Transcript) EventCount() int {
	return len(t.Events)
}

func (t *Transcript) ofType(typ string) []Event {
	var out []Event
	for _, ev := range t.Events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Summary aggregates a transcript.
type Summary struct {
	RunID      string
	Files      int
	Expansions int
	Failed     int
	Warned     int
	Interp     time.Duration
	Commands   map[string]int
	Complete   bool
}

// Summarize computes the summary of t.
func (t *Transcript) Summarize() Summary {
	s := Summary{
		RunID:    t.RunID(),
		Files:    len(t.ofType(EventFileDone)),
		Commands: make(map[string]int),
		Complete: t.Complete(),
	}
	for _, ev := range t.Expansions() {
		s.Expansions++
		s.Interp += time.Duration(ev.DurationMS) * time.Millisecond
		if ev.Command != "" {
			s.Commands[ev.Command]++
		}
		switch ev.Outcome {
		case OutcomeWarned:
			s.Warned++
		case OutcomeExpanded:
		default:
			s.Failed++
		}
	}
	return s
}

// Print writes a human-readable report of t to w.
func (t *Transcript) Print(w io.Writer) error {
	s := t.Summarize()
	status := "complete"
	if !s.Complete {
		status = "incomplete"
	}
	if _, err := fmt.Fprintf(w, "run %s (%s)\n", s.RunID, status); err != nil {
		return err
	}
	fmt.Fprintf(w, "  files:      %d\n", s.Files)
	fmt.Fprintf(w, "  expansions: %d (%d failed, %d with stderr)\n", s.Expansions, s.Failed, s.Warned)
	fmt.Fprintf(w, "  interpreter time: %s\n", s.Interp)
	commands := make([]string, 0, len(s.Commands))
	for cmd := range s.Commands {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %d run(s)\n", cmd, s.Commands[cmd])
	}
	for _, ev := range t.Failures() {
		fmt.Fprintf(w, "  %s:%d: %s", ev.File, ev.Line, ev.Outcome)
		if ev.Status != "" {
			fmt.Fprintf(w, " (%s)", ev.Status)
		}
		if ev.Message != "" {
			fmt.Fprintf(w, ": %s", ev.Message)
		}
		fmt.Fprintln(w)
	}
	return nil
}
