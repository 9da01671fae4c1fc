// Package turnlog appends one JSON record per user turn to a log file.
package turnlog

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
)

// DefaultFileName is the log file name used by the chat shell.
const DefaultFileName = "mcp_client.jsonl"

// Record is one logged user turn.
type Record struct {
	Timestamp  time.Time  `json:"timestamp"`
	ChatID     string     `json:"chat_id,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model,omitempty"`
	Query      string     `json:"query"`
	Outcome    string     `json:"outcome"`
	Response   string     `json:"response,omitempty"`
	Error      string     `json:"error,omitempty"`
	Success    bool       `json:"success"`
	Steps      int        `json:"steps"`
	Usage      llms.Usage `json:"usage"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// ToolCall is one tool invocation of a logged turn.
type ToolCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
}

// Writer appends records as JSON lines. It is safe for concurrent use.
type Writer struct {
	lock   sync.Mutex
	out    io.Writer
	closer io.Closer
}

// New returns a Writer over w.
func New(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Open opens or creates the log file in append mode.
func Open(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open turn log")
	}
	return &Writer{out: f, closer: f}, nil
}

// Write appends the record as a single line.
func (w *Writer) Write(rec *Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	js, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "unable to marshal turn record")
	}
	js = append(js, '\n')

	w.lock.Lock()
	defer w.lock.Unlock()
	if _, err = w.out.Write(js); err != nil {
		return errors.Wrap(err, "unable to write turn record")
	}
	return nil
}

// Close closes the underlying file, if the Writer owns one.
func (w *Writer) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return errors.WithStack(err)
}

// Read parses all records from r.
func Read(r io.Reader) ([]*Record, error) {
	var list []*Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		bs := scanner.Bytes()
		if len(bs) == 0 {
			continue
		}
		rec := new(Record)
		if err := json.Unmarshal(bs, rec); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		list = append(list, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return list, nil
}
