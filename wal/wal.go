// Package wal implements the write-ahead log: an append-only file of
// `key=value` lines that makes every accepted write durable before it is
// applied to the memtable, and that is replayed into a fresh memtable on
// startup.
package wal

import (
	"bufio"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/pellet-db/pellet/core"
)

// ErrClosed is returned by operations on a closed WAL.
var ErrClosed = errors.New("wal is closed")

// Options holds configuration for the WAL.
type Options struct {
	// Path is the WAL file location, conventionally <dataDir>/wal.log.
	Path   string
	Logger *slog.Logger

	// Optional metrics counters; nil counters are not updated.
	BytesWritten   *expvar.Int
	EntriesWritten *expvar.Int
}

// WAL is a single append-only log file. All methods are mutually exclusive;
// Append blocks its caller until the record is durable.
type WAL struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	logger *slog.Logger

	bytesWritten   *expvar.Int
	entriesWritten *expvar.Int
}

// Open creates or opens the WAL file for appending.
func Open(opts Options) (*WAL, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w := &WAL{
		path:           opts.Path,
		logger:         opts.Logger.With("component", "WAL"),
		bytesWritten:   opts.BytesWritten,
		entriesWritten: opts.EntriesWritten,
	}
	if err := w.openWriter(false); err != nil {
		return nil, err
	}
	return w, nil
}

// openWriter (re)opens the underlying file for appending, truncating first
// when requested. Caller must hold w.mu (or be the constructor).
func (w *WAL) openWriter(truncate bool) error {
	if w.file != nil {
		w.writer.Flush()
		w.file.Close()
		w.file = nil
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(w.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open wal %s: %w", w.path, err)
	}
	w.file = f
	w.writer = bufio.NewWriter(f)
	return nil
}

// Append writes one record and flushes it to durable storage before
// returning. A delete is encoded with the tombstone marker as its value.
func (w *WAL) Append(key, value string, entryType core.EntryType) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	line := core.EncodeLine(key, value, entryType)
	if _, err := w.writer.WriteString(line); err != nil {
		return fmt.Errorf("append wal record: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync wal: %w", err)
	}
	if w.bytesWritten != nil {
		w.bytesWritten.Add(int64(len(line)))
	}
	if w.entriesWritten != nil {
		w.entriesWritten.Add(1)
	}
	return nil
}

// Clear truncates the WAL to zero length and reopens it for appending. It is
// called only once the immutable memtable queue has drained, so every record
// it discards is already covered by an SSTable.
func (w *WAL) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	if err := w.openWriter(true); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	return nil
}

// Replay reads the WAL line by line and hands each decoded entry to apply,
// oldest first. Malformed lines are logged and skipped. A missing WAL file
// replays as empty.
func (w *WAL) Replay(apply func(core.Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open wal for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry, err := core.DecodeLine(scanner.Text())
		if err != nil {
			w.logger.Warn("skipping corrupt wal line", "error", err)
			continue
		}
		if err := apply(entry); err != nil {
			return fmt.Errorf("apply wal entry for key %q: %w", entry.Key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read wal: %w", err)
	}
	return nil
}

// Close flushes and releases the writer. The WAL file itself is left in
// place for the next Open to replay.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	flushErr := w.writer.Flush()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	w.writer = nil
	if flushErr != nil {
		return fmt.Errorf("flush wal on close: %w", flushErr)
	}
	if syncErr != nil {
		return fmt.Errorf("sync wal on close: %w", syncErr)
	}
	return closeErr
}

// Path returns the WAL file path.
func (w *WAL) Path() string {
	return w.path
}
