package sstable

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pellet-db/pellet/core"
	"github.com/pellet-db/pellet/sys"
)

// WriteMemtable persists a memtable snapshot as the plain table for counter.
// Entries must already be in key order. The data is written to a uniquely
// named temp file, fsynced, and atomically renamed into place, so readers
// only ever observe complete tables. Both per-file Bloom filters are built
// from the snapshot and registered under the final file name.
//
// Returns the published file name.
func (s *Store) WriteMemtable(entries []core.Entry, counter uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory %s: %w", s.dir, err)
	}

	nonce := s.clk.Now().UnixNano()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	tmpName := fmt.Sprintf("%s%d_%d_%s.tmp", tablePrefix, counter, nonce, id)
	tmpPath := filepath.Join(s.dir, tmpName)
	finalName := PlainFileName(counter)
	finalPath := filepath.Join(s.dir, finalName)

	file, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create temp sstable %s: %w", tmpPath, err)
	}

	encoded, err := s.plain.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("wrap temp sstable writer: %w", err)
	}
	writer := bufio.NewWriter(encoded)
	for _, entry := range entries {
		if _, err := writer.WriteString(core.EncodeLine(entry.Key, entry.Value, entry.Type)); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("write sstable entry: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("flush temp sstable: %w", err)
	}
	if err := encoded.Close(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("finish temp sstable: %w", err)
	}
	if err := sys.SyncAndClose(file); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := sys.RenameWithRetry(tmpPath, finalPath, renameAttempts, renameDelay); err != nil {
		return "", err
	}

	n := uint64(len(entries))
	if n == 0 {
		n = 1
	}
	lookup, err := NewBloomFilter(n, s.fpRate)
	if err != nil {
		return "", fmt.Errorf("build lookup filter for %s: %w", finalName, err)
	}
	gate := NewTableBloom()
	for _, entry := range entries {
		lookup.Add(entry.Key)
		gate.Add(entry.Key)
	}
	s.filters.Register(finalName, lookup, gate)

	s.logger.Debug("published sstable", "file", finalName, "entries", len(entries))
	return finalName, nil
}
