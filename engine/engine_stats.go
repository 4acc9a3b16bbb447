package engine

import (
	"fmt"

	"github.com/pellet-db/pellet/core"
	"github.com/pellet-db/pellet/sstable"
)

// Stats is a point-in-time snapshot of the engine's buffered and on-disk
// state.
type Stats struct {
	ActiveMemtableBytes    int64
	ImmutableMemtableCount int
	TotalSSTableBytes      int64
	SSTableFileCount       int
	SSTableDiskLimit       int64
	MemtableThreshold      int64
}

// ActiveMemtableUsagePercent is the mutable memtable's fill level against
// its rotation threshold.
func (s Stats) ActiveMemtableUsagePercent() float64 {
	if s.MemtableThreshold == 0 {
		return 0
	}
	return float64(s.ActiveMemtableBytes) / float64(s.MemtableThreshold) * 100
}

// SSTableUsagePercent is the on-disk total against the soft disk limit.
func (s Stats) SSTableUsagePercent() float64 {
	if s.SSTableDiskLimit == 0 {
		return 0
	}
	return float64(s.TotalSSTableBytes) / float64(s.SSTableDiskLimit) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats{active_memtable=%d/%d bytes (%.1f%%), immutables=%d, sstables=%d files, %.2f MB/%.2f GB (%.2f%% used)}",
		s.ActiveMemtableBytes,
		s.MemtableThreshold,
		s.ActiveMemtableUsagePercent(),
		s.ImmutableMemtableCount,
		s.SSTableFileCount,
		float64(s.TotalSSTableBytes)/(1024*1024),
		float64(s.SSTableDiskLimit)/(1024*1024*1024),
		s.SSTableUsagePercent(),
	)
}

// Stats returns the current snapshot.
func (e *Engine) Stats() (Stats, error) {
	if e.closed.Load() {
		return Stats{}, core.ErrEngineClosed
	}
	totalBytes, fileCount, err := e.store.DiskUsage()
	if err != nil {
		return Stats{}, err
	}
	e.mu.Lock()
	active := e.mutable.Size()
	immutableCount := len(e.immutables)
	e.mu.Unlock()

	return Stats{
		ActiveMemtableBytes:    active,
		ImmutableMemtableCount: immutableCount,
		TotalSSTableBytes:      totalBytes,
		SSTableFileCount:       fileCount,
		SSTableDiskLimit:       e.opts.SSTableDiskLimit,
		MemtableThreshold:      e.opts.MemtableThreshold,
	}, nil
}

// CompressionStats reports how much of the directory's SSTable data is
// compressed.
func (e *Engine) CompressionStats() (sstable.CompressionStats, error) {
	if e.closed.Load() {
		return sstable.CompressionStats{}, core.ErrEngineClosed
	}
	return e.store.CompressionStats()
}
