// Package wal is the append-only run journal. Every remote write of a
// provisioning run is recorded as one JSON line. The journal is an audit
// trail, never an inventory: nothing reads it back to decide what to do.
package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// EntryType defines the type of journal entry
type EntryType string

const (
	EntryRunStarted  EntryType = "run_started"
	EntryPlanned     EntryType = "planned"
	EntryWrite       EntryType = "write"
	EntryWriteFailed EntryType = "write_failed"
	EntryStep        EntryType = "step"
	EntryRunFinished EntryType = "run_finished"
	EntryRunFailed   EntryType = "run_failed"
)

// Entry represents a single journal entry
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	RunID     string          `json:"run_id"`
	Type      EntryType       `json:"type"`
	Key       string          `json:"key,omitempty"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
}

// Config controls file naming and retention
type Config struct {
	FilePrefix    string
	RetentionDays int
}

// DefaultConfig returns the journal defaults.
func DefaultConfig() Config {
	return Config{
		FilePrefix:    "stackfleet",
		RetentionDays: 90,
	}
}

// WAL appends entries of one run to its own file
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
	path     string
	runID    string
	now      func() time.Time
}

// Open creates the journal file of a run in dir.
func Open(dir, runID string) (*WAL, error) {
	return OpenWithConfig(dir, runID, DefaultConfig())
}

// OpenWithConfig is Open with a custom file prefix.
func OpenWithConfig(dir, runID string, cfg Config) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	filename := fmt.Sprintf("%s-%s-%s.wal", cfg.FilePrefix, time.Now().UTC().Format("20060102-150405"), short)
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path built from operator supplied dir
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	return &WAL{
		file:   file,
		writer: bufio.NewWriter(file),
		dir:    dir,
		path:   path,
		runID:  runID,
		now:    time.Now,
	}, nil
}

// Path returns the journal file of this run.
func (w *WAL) Path() string {
	return w.path
}

// RunID returns the run the journal belongs to.
func (w *WAL) RunID() string {
	return w.runID
}

// Close flushes and closes the journal
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append adds an entry to the journal
func (w *WAL) Append(entryType EntryType, key string, data any) error {
	return w.append(entryType, key, data, nil)
}

// AppendError adds a failed entry to the journal
func (w *WAL) AppendError(entryType EntryType, key string, data any, errToLog error) error {
	return w.append(entryType, key, data, errToLog)
}

func (w *WAL) append(entryType EntryType, key string, data any, errToLog error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal journal data: %w", err)
	}

	w.sequence++
	entry := Entry{
		Timestamp: w.now().UTC(),
		Sequence:  w.sequence,
		RunID:     w.runID,
		Type:      entryType,
		Key:       key,
		Data:      jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}

	return w.writeEntry(entry)
}

// writeEntry writes a single entry and syncs it to disk
func (w *WAL) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}

	return w.file.Sync()
}

// Reader reads the entries of one journal file
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- journal files found by glob
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner, file: file}, nil
}

// Next reads the next entry, returning io.EOF at the end of the file
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal journal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Files lists the journal files of dir, oldest first.
func Files(dir string, cfg Config) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, cfg.FilePrefix+"-*.wal"))
	if err != nil {
		return nil, fmt.Errorf("list journal files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Replay feeds every entry newer than since to handler, file by file in
// chronological order.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	files, err := Files(dir, DefaultConfig())
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}

		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}
}
