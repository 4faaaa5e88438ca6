// Package audit keeps an append-only JSONL record of model interactions.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// FileName is the default audit log file name.
	FileName = "interactions.jsonl"
	idPrefix = "int-"

	defaultBuffer = 256
)

// Entry is one append-only audit event.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`

	Provider   string  `json:"provider,omitempty"`
	Model      string  `json:"model,omitempty"`
	Prompt     string  `json:"prompt,omitempty"`
	Response   string  `json:"response,omitempty"`
	Error      string  `json:"error,omitempty"`
	Attempts   int     `json:"attempts,omitempty"`
	ExpectJSON bool    `json:"expect_json,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	Temp       float64 `json:"temperature,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// EnsureFile creates the log file and its directory if they do not exist.
func EnsureFile(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // nolint:gosec // audit log is meant to be readable
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return f.Close()
}

// Append writes e to the file at p as a single JSON line.
// Callers must not mutate existing lines.
func Append(p string, e *Entry) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil entry")
	}
	if e.Kind == "" {
		return "", fmt.Errorf("kind is required")
	}
	if e.ID == "" {
		e.ID = idPrefix + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	} else {
		e.CreatedAt = e.CreatedAt.UTC()
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // nolint:gosec // intended permissions
	if err != nil {
		return "", fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return "", fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush audit log: %w", err)
	}
	return e.ID, nil
}

// Recorder appends entries from a background goroutine so callers never
// wait on disk. When the buffer is full the entry is dropped and counted.
type Recorder struct {
	path    string
	log     *slog.Logger
	entries chan *Entry
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
	failed  int
}

// NewRecorder starts a recorder writing to path.
func NewRecorder(path string, buffer int, log *slog.Logger) (*Recorder, error) {
	if err := EnsureFile(path); err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Recorder{
		path:    path,
		log:     log,
		entries: make(chan *Entry, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		if _, err := Append(r.path, e); err != nil {
			r.mu.Lock()
			r.failed++
			r.mu.Unlock()
			r.log.Warn("audit append failed", "error", err)
		}
	}
}

// Record queues e without blocking.
func (r *Recorder) Record(e *Entry) {
	if r == nil || e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.entries <- e:
	default:
		r.dropped++
	}
}

// Stats returns how many entries were dropped and how many failed to write.
func (r *Recorder) Stats() (dropped, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped, r.failed
}

// Path returns the log file path.
func (r *Recorder) Path() string { return r.path }

// Close flushes queued entries and stops the writer.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()
	<-r.done
	return nil
}

// ReadAll loads every entry from the file at p.
func ReadAll(p string) ([]*Entry, error) {
	f, err := os.Open(p) // nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []*Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, sc.Err()
}
