package sstable

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pellet-db/pellet/core"
	"github.com/pellet-db/pellet/sys"
)

// CompactBySize merges every SSTable (plain and compressed) into a single
// gzip table when their total size exceeds sizeLimitBytes. A limit of 0
// forces the merge unconditionally.
func (s *Store) CompactBySize(sizeLimitBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listTables(func(name string) bool {
		return isPlain(name) || isCompressed(name)
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	sortByModTime(files, false)

	var total int64
	for _, f := range files {
		total += f.size
	}
	if sizeLimitBytes > 0 && total <= sizeLimitBytes {
		return nil
	}
	return s.compactLocked(files)
}

// CompactByFileCount merges as CompactBySize does when more than maxFiles
// SSTables exist. A limit of 0 forces the merge.
func (s *Store) CompactByFileCount(maxFiles int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listTables(func(name string) bool {
		return isPlain(name) || isCompressed(name)
	})
	if err != nil {
		return err
	}
	if len(files) <= maxFiles {
		return nil
	}
	sortByModTime(files, false)
	return s.compactLocked(files)
}

// compactLocked merges the given tables, oldest first so later writes win,
// into sstable_compacted.txt.gz. Keys whose final value is a tombstone are
// dropped entirely: the merge covers every on-disk layer, so no older live
// value can survive below the output. Input files are deleted afterwards and
// their filters unregistered.
func (s *Store) compactLocked(files []tableFile) error {
	merged := make(map[string]string)
	for _, f := range files {
		if err := s.mergeFile(f, merged); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			s.logger.Warn("skipping unreadable sstable during compaction", "file", f.name, "error", err)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tmpPath := filepath.Join(s.dir, compactedTempName)
	finalPath := filepath.Join(s.dir, CompactedFileName)

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create compaction temp file: %w", err)
	}
	encoded, err := s.packed.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("wrap compaction writer: %w", err)
	}
	writer := bufio.NewWriter(encoded)
	for _, key := range keys {
		value := merged[key]
		if core.IsTombstone(value) {
			continue
		}
		if _, err := writer.WriteString(key + "=" + value + "\n"); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write compacted entry: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush compacted table: %w", err)
	}
	if err := encoded.Close(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("finish compacted table: %w", err)
	}
	if err := sys.SyncAndClose(file); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := sys.ReplaceFile(tmpPath, finalPath); err != nil {
		return err
	}

	for _, f := range files {
		if f.name == CompactedFileName {
			continue
		}
		if err := sys.SafeRemove(filepath.Join(s.dir, f.name)); err != nil {
			s.logger.Warn("could not delete compacted input", "file", f.name, "error", err)
		}
		s.filters.Unregister(f.name)
	}

	final := tableFile{name: CompactedFileName}
	lookup, gate, err := s.buildFilters(final)
	if err != nil {
		s.logger.Warn("failed to build bloom filters for compacted table", "error", err)
		return nil
	}
	s.filters.Register(CompactedFileName, lookup, gate)

	s.logger.Info("compaction complete", "inputs", len(files), "live_keys", len(keys))
	return nil
}

// mergeFile folds one table's entries into merged. Later calls overwrite
// earlier values for the same key. Corrupt lines are skipped.
func (s *Store) mergeFile(f tableFile, merged map[string]string) error {
	reader, closeAll, err := s.openReader(f)
	if err != nil {
		return err
	}
	defer closeAll()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			s.logger.Warn("skipping corrupt line during compaction", "file", f.name)
			continue
		}
		merged[key] = value
	}
	return scanner.Err()
}
