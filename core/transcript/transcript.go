// Package transcript records expansion runs as JSONL event streams.
//
// A transcript starts with a RUN_START event, has one EXPANSION event per
// invocation and one FILE_DONE event per template, and ends with RUN_END.
// Paths ending in ".xz" are compressed.
package transcript

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	apperrors "github.com/FocuswithJustin/pymixin/core/errors"
)

// Injectable functions for testing.
var (
	osCreate    = os.Create
	osOpen      = os.Open
	jsonMarshal = json.Marshal
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
	timeNow     = time.Now
)

// Event is a single line of a transcript.
type Event struct {
	Type          string         `json:"t"`
	Seq           int            `json:"seq"`
	RunID         string         `json:"run_id,omitempty"`
	Time          string         `json:"time,omitempty"`
	File          string         `json:"file,omitempty"`
	Line          int            `json:"line,omitempty"`
	Kind          string         `json:"kind,omitempty"`
	Command       string         `json:"command,omitempty"`
	ExitCode      int            `json:"exit_code,omitempty"`
	Status        string         `json:"status,omitempty"`
	Outcome       string         `json:"outcome,omitempty"`
	DurationMS    int64          `json:"duration_ms,omitempty"`
	PayloadBLAKE3 string         `json:"payload_blake3,omitempty"`
	StdoutSHA256  string         `json:"stdout_sha256,omitempty"`
	StdoutBytes   int64          `json:"stdout_bytes,omitempty"`
	Stderr        string         `json:"stderr,omitempty"`
	Errors        int            `json:"errors,omitempty"`
	Warnings      int            `json:"warnings,omitempty"`
	Message       string         `json:"message,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// Known event types
const (
	EventRunStart  = "RUN_START"
	EventExpansion = "EXPANSION"
	EventFileDone  = "FILE_DONE"
	EventRunEnd    = "RUN_END"
)

// Outcomes recorded on EXPANSION events.
const (
	OutcomeExpanded     = "expanded"
	OutcomeWarned       = "warned"
	OutcomeFailed       = "failed"
	OutcomeSpawnError   = "spawn_error"
	OutcomeStagingError = "staging_error"
	OutcomeRejected     = "rejected"
)

// HashPayload returns the hex BLAKE3 digest of a staged program.
func HashPayload(code string) string {
	h := blake3.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// HashOutput returns the hex SHA-256 digest of captured output.
func HashOutput(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// IsCompressed reports whether path selects an xz-compressed transcript.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".xz")
}

// Writer appends events to a transcript. A nil *Writer discards events.
type Writer struct {
	runID  string
	seq    int
	buf    *bufio.Writer
	closer []io.Closer
}

// NewWriter writes events to out. The caller owns out.
func NewWriter(out io.Writer, runID string) *Writer {
	return &Writer{runID: runID, buf: bufio.NewWriter(out)}
}

// Create opens path for writing, compressing with xz when path ends in
// ".xz".
func Create(path, runID string) (*Writer, error) {
	file, err := osCreate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	var out io.Writer = file
	closers := []io.Closer{file}
	if IsCompressed(path) {
		zw, err := xzNewWriter(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		out = zw
		closers = []io.Closer{zw, file}
	}

	w := NewWriter(out, runID)
	w.closer = closers
	return w, nil
}

// RunID returns the run id stamped on every event.
func (w *Writer) RunID() string {
	if w == nil {
		return ""
	}
	return w.runID
}

// Emit assigns the next sequence number and writes ev.
func (w *Writer) Emit(ev Event) error {
	if w == nil {
		return nil
	}
	w.seq++
	ev.Seq = w.seq
	if ev.RunID == "" {
		ev.RunID = w.runID
	}
	if ev.Time == "" {
		ev.Time = timeNow().UTC().Format(time.RFC3339Nano)
	}

	data, err := jsonMarshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Close flushes buffered events and closes anything Create opened.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	err := w.buf.Flush()
	if err != nil {
		err = fmt.Errorf("failed to flush transcript: %w", err)
	}
	for _, c := range w.closer {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close transcript: %w", cerr)
		}
	}
	w.closer = nil
	return err
}

// Parse reads JSONL events from r.
func Parse(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, apperrors.Wrapf(err, "failed to parse line %d", lineNum)
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading transcript: %w", err)
	}
	return events, nil
}

// ParseFile reads a transcript file, decompressing ".xz" paths.
func ParseFile(path string) ([]Event, error) {
	file, err := osOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if IsCompressed(path) {
		zr, err := xzNewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = zr
	}
	return Parse(r)
}
