package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"github.com/pellet-db/pellet/core"
	"github.com/pellet-db/pellet/memtable"
)

// Put durably records key=value and applies it to the mutable memtable.
// When the put returns successfully the write is covered by the WAL on
// disk. Crossing the memtable threshold rotates it into the immutable queue
// and wakes the background flusher.
func (e *Engine) Put(key, value string) error {
	if key == "" {
		return core.ErrEmptyKey
	}
	if core.IsTombstone(value) {
		return core.ErrReservedValue
	}
	return e.write(key, value, core.EntryTypePut, "Engine.Put")
}

// Delete durably records a tombstone for key. The tombstone shadows older
// values in every layer until compaction has merged them all.
func (e *Engine) Delete(key string) error {
	if key == "" {
		return core.ErrEmptyKey
	}
	return e.write(key, "", core.EntryTypeDelete, "Engine.Delete")
}

func (e *Engine) write(key, value string, entryType core.EntryType, spanName string) error {
	if e.closed.Load() {
		return core.ErrEngineClosed
	}
	_, span := e.tracer.Start(context.Background(), spanName)
	defer span.End()

	if err := e.wal.Append(key, value, entryType); err != nil {
		span.SetStatus(codes.Error, "wal append failed")
		span.RecordError(err)
		return fmt.Errorf("wal append: %w", err)
	}

	e.mu.Lock()
	if err := e.mutable.Put(key, value, entryType); err != nil {
		e.mu.Unlock()
		return err
	}
	e.writeFilter.Add(key)
	rotated := false
	if e.mutable.Size() >= e.opts.MemtableThreshold {
		e.rotateLocked()
		rotated = true
	}
	e.mu.Unlock()

	if rotated {
		e.triggerBackgroundFlush()
	}
	return nil
}

// Get resolves key to its most recent live value: the mutable memtable
// first, then the immutable queue newest first, then the plain SSTables and
// finally the compressed ones, each newest file first. A tombstone in any
// layer resolves to absence.
func (e *Engine) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, core.ErrEmptyKey
	}
	if e.closed.Load() {
		return "", false, core.ErrEngineClosed
	}
	_, span := e.tracer.Start(context.Background(), "Engine.Get")
	defer span.End()

	e.mu.Lock()
	mutable := e.mutable
	immutables := make([]*memtable.Memtable, len(e.immutables))
	copy(immutables, e.immutables)
	e.mu.Unlock()

	if value, entryType, found := mutable.Get(key); found {
		if entryType == core.EntryTypeDelete {
			return "", false, nil
		}
		return value, true, nil
	}

	for i := len(immutables) - 1; i >= 0; i-- {
		if value, entryType, found := immutables[i].Get(key); found {
			if entryType == core.EntryTypeDelete {
				return "", false, nil
			}
			return value, true, nil
		}
	}

	if !e.store.MightContain(key) {
		return "", false, nil
	}

	value, found, err := e.store.Lookup(key)
	if err != nil {
		span.SetStatus(codes.Error, "sstable lookup failed")
		span.RecordError(err)
		return "", false, err
	}
	if found {
		if core.IsTombstone(value) {
			return "", false, nil
		}
		return value, true, nil
	}

	value, found, err = e.store.LookupCompressed(key)
	if err != nil {
		span.SetStatus(codes.Error, "compressed sstable lookup failed")
		span.RecordError(err)
		return "", false, err
	}
	if found {
		if core.IsTombstone(value) {
			return "", false, nil
		}
		return value, true, nil
	}
	return "", false, nil
}

// MightContainInSSTables ORs the per-file Bloom filters of every SSTable
// currently registered. A false result proves no on-disk table holds the
// key.
func (e *Engine) MightContainInSSTables(key string) bool {
	return e.store.MightContain(key)
}
