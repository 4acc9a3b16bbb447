package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"github.com/pellet-db/pellet/core"
)

// maybeCompactBySize runs size-triggered compaction when the flushed
// SSTables exceed the configured disk limit. A compaction already in
// progress makes this a no-op rather than a wait.
func (e *Engine) maybeCompactBySize() {
	total, count, err := e.store.FlushedUsage()
	if err != nil {
		e.logger.Warn("could not measure sstable usage", "error", err)
		return
	}
	if count == 0 || total <= e.opts.SSTableDiskLimit {
		return
	}
	if !e.compactionMu.TryLock() {
		return
	}
	defer e.compactionMu.Unlock()

	if err := e.store.CompactBySize(e.opts.SSTableDiskLimit); err != nil {
		e.logger.Error("size-triggered compaction failed", "error", err)
		return
	}
	if e.opts.CompactionsCompleted != nil {
		e.opts.CompactionsCompleted.Add(1)
	}
}

// maybeCompactByFileCount runs count-triggered compaction when more than
// the configured number of flushed SSTables exist.
func (e *Engine) maybeCompactByFileCount() {
	_, count, err := e.store.FlushedUsage()
	if err != nil {
		e.logger.Warn("could not count sstables", "error", err)
		return
	}
	if count <= e.opts.MaxSSTableFiles {
		return
	}
	if !e.compactionMu.TryLock() {
		return
	}
	defer e.compactionMu.Unlock()

	if err := e.store.CompactByFileCount(e.opts.MaxSSTableFiles); err != nil {
		e.logger.Error("count-triggered compaction failed", "error", err)
		return
	}
	if e.opts.CompactionsCompleted != nil {
		e.opts.CompactionsCompleted.Add(1)
	}
}

// ForceCompaction merges every SSTable into the single compacted gzip
// table, unconditionally, then rebuilds all Bloom filters from disk. It
// blocks on the compaction lock rather than returning early.
func (e *Engine) ForceCompaction() error {
	if e.closed.Load() {
		return core.ErrEngineClosed
	}
	_, span := e.tracer.Start(context.Background(), "Engine.ForceCompaction")
	defer span.End()

	e.compactionMu.Lock()
	defer e.compactionMu.Unlock()

	e.logger.Info("forcing compaction")
	if err := e.store.CompactBySize(0); err != nil {
		span.SetStatus(codes.Error, "compaction failed")
		span.RecordError(err)
		return fmt.Errorf("force compaction by size: %w", err)
	}
	if err := e.store.CompactByFileCount(0); err != nil {
		span.SetStatus(codes.Error, "compaction failed")
		span.RecordError(err)
		return fmt.Errorf("force compaction by file count: %w", err)
	}
	if e.opts.CompactionsCompleted != nil {
		e.opts.CompactionsCompleted.Add(1)
	}

	if err := e.store.RebuildFilters(); err != nil {
		e.logger.Warn("filter rebuild after forced compaction failed", "error", err)
	}
	e.rebuildWriteFilterFromDisk()
	return nil
}
