// Package wal is the append-only audit journal. Every decision, attempt and
// halt transition lands here before anything else reacts to it.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// EntryType defines the type of WAL entry
type EntryType string

const (
	EntryProposed    EntryType = "proposed"
	EntryDecided     EntryType = "decided"
	EntryDispatching EntryType = "dispatching"
	EntryAttempt     EntryType = "attempt"
	EntryExecuted    EntryType = "executed"
	EntryFailed      EntryType = "failed"
	EntryRolledBack  EntryType = "rolled_back"
	EntryHalted      EntryType = "halted"
	EntryReset       EntryType = "reset"
)

// Config controls file naming, rotation and retention
type Config struct {
	FilePrefix    string
	MaxFileSize   int64
	RetentionDays int
}

// DefaultConfig returns the standard WAL settings
func DefaultConfig() Config {
	return Config{
		FilePrefix:    "warden",
		MaxFileSize:   64 << 20, // 64 MiB per file before rotation
		RetentionDays: 30,
	}
}

// Entry is a single journal line
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	Type      EntryType       `json:"type"`
	ActionID  string          `json:"action_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// WAL provides write-ahead logging for audit and restart recovery
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	written  int64
	sequence int64
	dir      string
	config   Config
}

// Open creates or opens a WAL in the specified directory. The sequence
// continues from whatever earlier files in the directory reached.
func Open(dir string) (*WAL, error) {
	return OpenWithConfig(dir, DefaultConfig())
}

// OpenWithConfig opens a WAL with explicit settings
func OpenWithConfig(dir string, config Config) (*WAL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create WAL directory: %w", err)
	}

	w := &WAL{
		dir:    dir,
		config: config,
	}
	w.sequence = lastSequence(dir, config.FilePrefix)

	if err := w.openNewFile(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *WAL) openNewFile() error {
	filename := fmt.Sprintf("%s-%s.wal", w.config.FilePrefix, time.Now().Format("20060102-150405.000000"))
	path := filepath.Join(w.dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G304 -- path built from operator-chosen dir
	if err != nil {
		return fmt.Errorf("open WAL file: %w", err)
	}

	w.file = file
	w.writer = bufio.NewWriter(file)
	w.written = 0
	return nil
}

// Close flushes and closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append adds an entry to the WAL
func (w *WAL) Append(entryType EntryType, actionID string, data interface{}) error {
	return w.append(entryType, actionID, data, nil)
}

// AppendError adds an entry carrying an error
func (w *WAL) AppendError(entryType EntryType, actionID string, data interface{}, errToLog error) error {
	return w.append(entryType, actionID, data, errToLog)
}

func (w *WAL) append(entryType EntryType, actionID string, data interface{}, errToLog error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var jsonData json.RawMessage
	if data != nil {
		marshaled, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
		jsonData = marshaled
	}

	w.sequence++
	entry := Entry{
		Timestamp: time.Now(),
		Sequence:  w.sequence,
		Type:      entryType,
		ActionID:  actionID,
		Data:      jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}

	return w.writeEntry(entry)
}

func (w *WAL) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	n, err := w.writer.Write(line)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if _, err := w.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	// Flush immediately for durability
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	w.written += int64(n) + 1
	if w.config.MaxFileSize > 0 && w.written >= w.config.MaxFileSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close rotated file: %w", err)
	}
	return w.openNewFile()
}

// Sequence returns the last written sequence number
func (w *WAL) Sequence() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sequence
}

// lastSequence scans existing WAL files for the highest sequence number
func lastSequence(dir, prefix string) int64 {
	files, err := filepath.Glob(filepath.Join(dir, prefix+"-*.wal"))
	if err != nil || len(files) == 0 {
		return 0
	}
	sort.Strings(files)

	// Timestamps in the names sort chronologically; only the newest file
	// can hold the highest sequence
	var last int64
	for i := len(files) - 1; i >= 0; i-- {
		if seq, ok := lastSequenceInFile(files[i]); ok {
			last = seq
			break
		}
	}
	return last
}

func lastSequenceInFile(path string) (int64, bool) {
	reader, err := NewReader(path)
	if err != nil {
		return 0, false
	}
	defer func() { _ = reader.Close() }()

	var last int64
	found := false
	for {
		entry, err := reader.Next()
		if err != nil {
			break
		}
		last = entry.Sequence
		found = true
	}
	return last, found
}

// Reader provides WAL replay functionality
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a WAL reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- replay path chosen by operator
	if err != nil {
		return nil, fmt.Errorf("open WAL file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry from the WAL
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}

	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay replays WAL entries recorded after a point in time, oldest first
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	return ReplayWithConfig(dir, DefaultConfig(), since, handler)
}

// ReplayWithConfig replays using explicit file naming settings
func ReplayWithConfig(dir string, config Config, since time.Time, handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, config.FilePrefix+"-*.wal"))
	if err != nil {
		return fmt.Errorf("list WAL files: %w", err)
	}
	sort.Strings(files)

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
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}
}
