package transcript

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock(t *testing.T) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { timeNow = orig })
}

func sampleEvents() []Event {
	return []Event{
		{Type: EventRunStart, Message: "pymixin expand"},
		{Type: EventExpansion, File: "calc.go.mixin", Line: 3, Kind: "expr", Command: "python3", Status: "exit status 0", Outcome: OutcomeExpanded, DurationMS: 20},
		{Type: EventExpansion, File: "calc.go.mixin", Line: 9, Kind: "items", Command: "python3", Status: "exit status 1", ExitCode: 1, Outcome: OutcomeFailed, DurationMS: 30, Stderr: "ValueError\n"},
		{Type: EventExpansion, File: "calc.go.mixin", Line: 12, Kind: "expr", Command: "python2.7", Outcome: OutcomeSpawnError, Message: "could not execute `python2.7`"},
		{Type: EventExpansion, File: "other.go.mixin", Line: 1, Kind: "stmts", Command: "python3", Outcome: OutcomeWarned, DurationMS: 50},
		{Type: EventFileDone, File: "calc.go.mixin", Errors: 2},
		{Type: EventFileDone, File: "other.go.mixin", Warnings: 1},
		{Type: EventRunEnd},
	}
}

func TestWriterRoundTrip(t *testing.T) {
	fixedClock(t)
	var buf bytes.Buffer
	w := NewWriter(&buf, "run-1")
	for _, ev := range sampleEvents() {
		if err := w.Emit(ev); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("got %d lines, want 8", len(lines))
	}
	if !strings.HasPrefix(lines[0], `{"t":"RUN_START","seq":1,"run_id":"run-1","time":"2024-05-01T12:00:00Z"`) {
		t.Errorf("first line = %s", lines[0])
	}

	events, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for i, ev := range events {
		if ev.Seq != i+1 {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
		if ev.RunID != "run-1" {
			t.Errorf("event %d run id = %q", i, ev.RunID)
		}
	}
	if events[2].Stderr != "ValueError\n" || events[2].ExitCode != 1 {
		t.Errorf("event 2 = %+v", events[2])
	}
}

func TestCreateAndLoad(t *testing.T) {
	for _, name := range []string{"run.jsonl", "run.jsonl.xz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			w, err := Create(path, "run-2")
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			for _, ev := range sampleEvents() {
				if err := w.Emit(ev); err != nil {
					t.Fatal(err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			raw, _ := os.ReadFile(path)
			isXZ := bytes.HasPrefix(raw, []byte{0xFD, '7', 'z', 'X', 'Z', 0x00})
			if isXZ != IsCompressed(path) {
				t.Errorf("xz magic present = %v for %s", isXZ, name)
			}

			tr, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tr.EventCount() != 8 || tr.RunID() != "run-2" {
				t.Errorf("loaded %d events, run id %q", tr.EventCount(), tr.RunID())
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	tr := &Transcript{Events: sampleEvents()}
	for i := range tr.Events {
		tr.Events[i].RunID = "run-3"
	}

	s := tr.Summarize()
	if s.Files != 2 || s.Expansions != 4 || s.Failed != 2 || s.Warned != 1 {
		t.Errorf("Summarize() = %+v", s)
	}
	if s.Interp != 100*time.Millisecond {
		t.Errorf("Interp = %v", s.Interp)
	}
	if s.Commands["python3"] != 3 || s.Commands["python2.7"] != 1 {
		t.Errorf("Commands = %v", s.Commands)
	}
	if !s.Complete {
		t.Error("Complete = false")
	}

	var out bytes.Buffer
	if err := tr.Print(&out); err != nil {
		t.Fatal(err)
	}
	report := out.String()
	for _, want := range []string{
		"run run-3 (complete)",
		"expansions: 4 (2 failed, 1 with stderr)",
		"calc.go.mixin:9: failed (exit status 1)",
		"calc.go.mixin:12: spawn_error: could not execute `python2.7`",
		"python2.7: 1 run(s)",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestIncomplete(t *testing.T) {
	tr := &Transcript{Events: sampleEvents()[:3]}
	if tr.Complete() {
		t.Error("Complete() = true without RUN_END")
	}
	var out bytes.Buffer
	tr.Print(&out)
	if !strings.Contains(out.String(), "(incomplete)") {
		t.Errorf("report = %s", out.String())
	}
}

func TestNilWriter(t *testing.T) {
	var w *Writer
	if err := w.Emit(Event{Type: EventRunStart}); err != nil {
		t.Errorf("nil Emit() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	if w.RunID() != "" {
		t.Error("nil RunID() not empty")
	}
}

func TestCreateError(t *testing.T) {
	orig := osCreate
	defer func() { osCreate = orig }()
	osCreate = func(string) (*os.File, error) { return nil, errors.New("read-only") }

	if _, err := Create("x.jsonl", "r"); err == nil || !strings.Contains(err.Error(), "failed to create transcript") {
		t.Errorf("Create() error = %v", err)
	}
}

func TestMarshalError(t *testing.T) {
	orig := jsonMarshal
	defer func() { jsonMarshal = orig }()
	jsonMarshal = func(any) ([]byte, error) { return nil, errors.New("boom") }

	w := NewWriter(&bytes.Buffer{}, "r")
	if err := w.Emit(Event{Type: EventRunEnd}); err == nil || !strings.Contains(err.Error(), "failed to marshal event") {
		t.Errorf("Emit() error = %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(strings.NewReader("{\"t\":\"RUN_START\"}\nnot json\n")); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Parse() error = %v", err)
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("ParseFile() on missing file should fail")
	}
	events, err := Parse(strings.NewReader("\n\n"))
	if err != nil || len(events) != 0 {
		t.Errorf("Parse(blank) = %v, %v", events, err)
	}
}

func TestHashes(t *testing.T) {
	if got := HashOutput([]byte("")); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("HashOutput(empty) = %s", got)
	}
	if got := HashPayload(""); got != "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262" {
		t.Errorf("HashPayload(empty) = %s", got)
	}
	if HashPayload("print(1)") == HashPayload("print(2)") {
		t.Error("distinct payloads hash equal")
	}
}
