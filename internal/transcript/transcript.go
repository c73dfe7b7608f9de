// Package transcript records the stdio of a supervised agent as
// newline-delimited JSON: one header line followed by one event per chunk.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stream identifies which pipe an event was read from or written to.
type Stream string

const (
	Stdout Stream = "o"
	Stderr Stream = "e"
	Stdin  Stream = "i"
)

// Header is the first line of a transcript.
type Header struct {
	Version   int      `json:"version"`
	AgentID   string   `json:"agentId"`
	RunID     string   `json:"runId"`
	Command   []string `json:"command"`
	Workdir   string   `json:"workingPath"`
	Timestamp int64    `json:"timestamp"`
}

// Event is one chunk of stdio. It encodes as [offset, stream, data].
type Event struct {
	Offset float64
	Stream Stream
	Data   string
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Offset, e.Stream, e.Data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event: expected 3 elements, got %d", len(arr))
	}

	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid event offset")
	}
	stream, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event stream")
	}
	text, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data")
	}

	e.Offset, e.Stream, e.Data = offset, Stream(stream), text
	return nil
}

// Recorder appends events to a transcript. It is safe for concurrent use by
// the goroutines draining stdout and stderr.
type Recorder struct {
	mu      sync.Mutex
	w       io.Writer
	file    *os.File
	started time.Time
}

// Create opens a new transcript file named after the run inside dir and
// writes its header.
func Create(dir string, h Header) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl", h.AgentID, h.RunID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	r := &Recorder{w: file, file: file, started: time.Now()}
	if err := r.writeHeader(h); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// New returns a recorder writing to w. The header is written immediately.
func New(w io.Writer, h Header) (*Recorder, error) {
	r := &Recorder{w: w, started: time.Now()}
	if err := r.writeHeader(h); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the transcript file path, or "" when not file-backed.
func (r *Recorder) Path() string {
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

// Writer returns an io.Writer that records everything written to it as
// events on stream.
func (r *Recorder) Writer(stream Stream) io.Writer {
	return streamWriter{r: r, stream: stream}
}

// Record appends one event.
func (r *Recorder) Record(stream Stream, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, err := json.Marshal(Event{
		Offset: time.Since(r.started).Seconds(),
		Stream: stream,
		Data:   string(data),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the underlying file if the recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *Recorder) writeHeader(h Header) error {
	if h.Version == 0 {
		h.Version = 1
	}
	if h.Timestamp == 0 {
		h.Timestamp = r.started.Unix()
	}
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

type streamWriter struct {
	r      *Recorder
	stream Stream
}

func (s streamWriter) Write(p []byte) (int, error) {
	if err := s.r.Record(s.stream, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
