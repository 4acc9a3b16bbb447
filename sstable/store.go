// Package sstable manages the immutable on-disk tables of the engine: plain
// flushed files named sstable_<N>.txt, the gzip-compressed compaction output
// sstable_compacted.txt.gz, and the Bloom filters kept per file. Entries are
// UTF-8 lines of the shared `key=value` format.
package sstable

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pellet-db/pellet/compressors"
	"github.com/pellet-db/pellet/utils/clock"
)

const (
	tablePrefix = "sstable_"
	plainSuffix = ".txt"
	gzipSuffix  = ".gz"

	// CompactedFileName is the current compaction output.
	CompactedFileName = "sstable_compacted.txt.gz"
	// compactedTempName is transient during compaction and is excluded
	// from every read and merge set.
	compactedTempName = "sstable_compacted_temp.gz"

	renameAttempts = 3
	renameDelay    = 50 * time.Millisecond

	// DefaultBloomFPRate is the per-file lookup filter's target false
	// positive rate.
	DefaultBloomFPRate = 0.01
)

// PlainFileName returns the name of the plain flushed table for a counter.
func PlainFileName(counter uint64) string {
	return fmt.Sprintf("sstable_%d%s", counter, plainSuffix)
}

// Options configures a Store.
type Options struct {
	Dir         string
	BloomFPRate float64
	Logger      *slog.Logger
	Clock       clock.Clock
}

// Store owns the SSTable files of one data directory. A reader–writer lock
// covers all operations: lookups take the read side, flush writes and
// compaction the write side, so readers never observe a partially published
// file set.
type Store struct {
	dir     string
	fpRate  float64
	mu      sync.RWMutex
	filters *FilterRegistry
	plain   compressors.StreamCompressor
	packed  compressors.StreamCompressor
	logger  *slog.Logger
	clk     clock.Clock
}

// NewStore creates a Store over dir. The directory is created lazily by the
// first write.
func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.SystemClock{}
	}
	if opts.BloomFPRate <= 0 || opts.BloomFPRate >= 1 {
		opts.BloomFPRate = DefaultBloomFPRate
	}
	return &Store{
		dir:     opts.Dir,
		fpRate:  opts.BloomFPRate,
		filters: NewFilterRegistry(),
		plain:   &compressors.NoCompressionCompressor{},
		packed:  compressors.NewGzipCompressor(),
		logger:  opts.Logger.With("component", "SSTable"),
		clk:     opts.Clock,
	}
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Filters exposes the per-file filter registry.
func (s *Store) Filters() *FilterRegistry { return s.filters }

// tableFile is one SSTable file with the mtime used for recency ordering.
type tableFile struct {
	name    string
	size    int64
	modTime time.Time
}

func (f tableFile) compressed() bool {
	return strings.HasSuffix(f.name, gzipSuffix)
}

// listTables enumerates directory entries whose names pass keep. The
// compaction temp file is never returned. A missing directory lists as
// empty.
func (s *Store) listTables(keep func(name string) bool) ([]tableFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sstables in %s: %w", s.dir, err)
	}
	var files []tableFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == compactedTempName || !strings.HasPrefix(name, tablePrefix) || !keep(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("skipping unstatable sstable file", "file", name, "error", err)
			continue
		}
		files = append(files, tableFile{name: name, size: info.Size(), modTime: info.ModTime()})
	}
	return files, nil
}

func isPlain(name string) bool {
	return strings.HasSuffix(name, plainSuffix)
}

func isCompressed(name string) bool {
	return strings.HasSuffix(name, gzipSuffix)
}

func sortByModTime(files []tableFile, newestFirst bool) {
	sort.Slice(files, func(i, j int) bool {
		if newestFirst {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].modTime.Before(files[j].modTime)
	})
}

// Lookup scans the plain SSTables newest first for the key and returns the
// raw stored value, which may be the tombstone marker; the caller resolves
// tombstones to absence. Files whose lookup filter rejects the key are
// skipped, as are files that fail to read.
func (s *Store) Lookup(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.listTables(isPlain)
	if err != nil {
		return "", false, err
	}
	sortByModTime(files, true)

	for _, f := range files {
		if bf := s.filters.LookupFilter(f.name); bf != nil && !bf.MightContain(key) {
			continue
		}
		value, found, err := s.scanFile(f, key)
		if err != nil {
			s.logger.Warn("error reading sstable during lookup", "file", f.name, "error", err)
			continue
		}
		if found {
			return value, true, nil
		}
	}
	return "", false, nil
}

// LookupCompressed is Lookup over the gzip SSTables. No filter gate is
// applied; compacted files are few.
func (s *Store) LookupCompressed(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.listTables(isCompressed)
	if err != nil {
		return "", false, err
	}
	sortByModTime(files, true)

	for _, f := range files {
		value, found, err := s.scanFile(f, key)
		if err != nil {
			s.logger.Warn("error reading compressed sstable during lookup", "file", f.name, "error", err)
			continue
		}
		if found {
			return value, true, nil
		}
	}
	return "", false, nil
}

// scanFile sequentially scans one table for the key and returns the raw
// value of the first matching line. Lines are matched on the `key=` prefix,
// so values keep every byte after the first separator.
func (s *Store) scanFile(f tableFile, key string) (string, bool, error) {
	reader, closeAll, err := s.openReader(f)
	if err != nil {
		return "", false, err
	}
	defer closeAll()

	prefix := key + "="
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			return line[len(prefix):], true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// openReader opens a table through the codec matching its name.
func (s *Store) openReader(f tableFile) (io.Reader, func(), error) {
	file, err := os.Open(filepath.Join(s.dir, f.name))
	if err != nil {
		return nil, nil, err
	}
	codec := s.plain
	if f.compressed() {
		codec = s.packed
	}
	decoded, err := codec.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return decoded, func() {
		decoded.Close()
		file.Close()
	}, nil
}

// MightContain ORs the gate filters of every registered SSTable. A false
// result proves no on-disk table holds the key.
func (s *Store) MightContain(key string) bool {
	return s.filters.MightContain(key)
}

// buildFilters reads one table and constructs both per-file filters from its
// keys.
func (s *Store) buildFilters(f tableFile) (*BloomFilter, *TableBloom, error) {
	reader, closeAll, err := s.openReader(f)
	if err != nil {
		return nil, nil, err
	}
	defer closeAll()

	var keys []string
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, _, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			s.logger.Warn("skipping corrupt sstable line during filter build", "file", f.name)
			continue
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	n := uint64(len(keys))
	if n == 0 {
		n = 1
	}
	lookup, err := NewBloomFilter(n, s.fpRate)
	if err != nil {
		return nil, nil, err
	}
	gate := NewTableBloom()
	for _, k := range keys {
		lookup.Add(k)
		gate.Add(k)
	}
	return lookup, gate, nil
}

// RebuildFilters drops the registry and reconstructs both filters for every
// SSTable on disk. Files that fail to read are logged and skipped.
func (s *Store) RebuildFilters() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildFiltersLocked()
}

func (s *Store) rebuildFiltersLocked() error {
	s.filters.Reset()
	files, err := s.listTables(func(name string) bool {
		return isPlain(name) || isCompressed(name)
	})
	if err != nil {
		return err
	}
	for _, f := range files {
		lookup, gate, err := s.buildFilters(f)
		if err != nil {
			s.logger.Warn("failed to rebuild bloom filters for sstable", "file", f.name, "error", err)
			continue
		}
		s.filters.Register(f.name, lookup, gate)
	}
	return nil
}

// VisitKeys calls visit with the key of every line in every SSTable on
// disk, plain and compressed. Unreadable files and corrupt lines are logged
// and skipped.
func (s *Store) VisitKeys(visit func(key string)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.listTables(func(name string) bool {
		return isPlain(name) || isCompressed(name)
	})
	if err != nil {
		return err
	}
	for _, f := range files {
		reader, closeAll, err := s.openReader(f)
		if err != nil {
			s.logger.Warn("skipping unreadable sstable while visiting keys", "file", f.name, "error", err)
			continue
		}
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			key, _, ok := strings.Cut(scanner.Text(), "=")
			if !ok {
				continue
			}
			visit(key)
		}
		if err := scanner.Err(); err != nil {
			s.logger.Warn("error visiting sstable keys", "file", f.name, "error", err)
		}
		closeAll()
	}
	return nil
}

// NextCounter scans the plain tables of dir and returns max(N)+1, or 0 when
// none exist. Compacted files do not participate.
func NextCounter(dir string) uint64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var next uint64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, tablePrefix) || !strings.HasSuffix(name, plainSuffix) {
			continue
		}
		numeric := strings.TrimSuffix(strings.TrimPrefix(name, tablePrefix), plainSuffix)
		n, err := strconv.ParseUint(numeric, 10, 64)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}

// DiskUsage totals every SSTable on disk (plain and compressed) for stats
// reporting.
func (s *Store) DiskUsage() (totalBytes int64, fileCount int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.listTables(func(name string) bool {
		return isPlain(name) || isCompressed(name)
	})
	if err != nil {
		return 0, 0, err
	}
	for _, f := range files {
		totalBytes += f.size
	}
	return totalBytes, len(files), nil
}

// FlushedUsage totals the tables that have not been through compaction; the
// compaction triggers measure against this set.
func (s *Store) FlushedUsage() (totalBytes int64, fileCount int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.listTables(func(name string) bool {
		return (isPlain(name) || isCompressed(name)) && !strings.Contains(name, "compacted")
	})
	if err != nil {
		return 0, 0, err
	}
	for _, f := range files {
		totalBytes += f.size
	}
	return totalBytes, len(files), nil
}
