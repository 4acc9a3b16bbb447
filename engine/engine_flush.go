package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/pellet-db/pellet/core"
	"github.com/pellet-db/pellet/memtable"
)

// flushPollInterval is the sleep between WaitForFlushCompletion checks.
const flushPollInterval = 10 * time.Millisecond

// rotateLocked moves the mutable memtable into the immutable queue and
// allocates a fresh one. Caller must hold e.mu; the swap is atomic with the
// allocation, so no write ever lands between the two memtables.
func (e *Engine) rotateLocked() {
	e.immutables = append(e.immutables, e.mutable)
	e.mutable = memtable.NewMemtable(e.opts.MemtableThreshold, e.clk)
}

// popImmutable takes the oldest queued memtable, or nil when the queue is
// empty.
func (e *Engine) popImmutable() *memtable.Memtable {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.immutables) == 0 {
		return nil
	}
	head := e.immutables[0]
	e.immutables = e.immutables[1:]
	return head
}

// requeueImmutable puts a memtable back at the head of the queue after a
// failed flush, keeping its writes reachable by readers and recoverable via
// the still-untruncated WAL.
func (e *Engine) requeueImmutable(m *memtable.Memtable) {
	e.mu.Lock()
	e.immutables = append([]*memtable.Memtable{m}, e.immutables...)
	e.mu.Unlock()
}

func (e *Engine) immutableCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.immutables)
}

// triggerBackgroundFlush starts the flusher goroutine unless one is already
// running.
func (e *Engine) triggerBackgroundFlush() {
	if e.flusherRunning.CompareAndSwap(false, true) {
		go e.flushLoop()
	}
}

// flushLoop drains the immutable queue one memtable at a time. A write
// failure halts the loop with the memtable re-queued; the WAL keeps
// covering it. On clean exit the loop re-arms itself if the queue refilled
// during shutdown.
func (e *Engine) flushLoop() {
	halted := false
	defer func() {
		e.flusherRunning.Store(false)
		if !halted && e.immutableCount() > 0 && !e.closed.Load() {
			e.triggerBackgroundFlush()
		}
	}()

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	for {
		toFlush := e.popImmutable()
		if toFlush == nil {
			return
		}
		if err := e.writeTable(toFlush); err != nil {
			e.logger.Error("background flush failed, halting flusher", "error", err)
			e.requeueImmutable(toFlush)
			halted = true
			return
		}
		e.afterTableWrite()
	}
}

// writeTable persists one memtable as the next plain SSTable and advances
// the counter. Caller must hold e.flushMu.
func (e *Engine) writeTable(m *memtable.Memtable) error {
	name, err := e.store.WriteMemtable(m.Dump(), e.counter)
	if err != nil {
		return err
	}
	e.counter++
	if e.opts.FlushesCompleted != nil {
		e.opts.FlushesCompleted.Add(1)
	}
	e.logger.Info("flushed memtable to sstable", "file", name, "bytes", m.Size())
	return nil
}

// afterTableWrite truncates the WAL once the queue has drained (every write
// it covered is now in an SSTable) and runs the opportunistic compaction
// checks. Caller must hold e.flushMu.
func (e *Engine) afterTableWrite() {
	if e.immutableCount() == 0 {
		if err := e.wal.Clear(); err != nil {
			// Continued operation is preferred over surfacing the
			// truncation failure; the oversized WAL only costs
			// replay time.
			e.logger.Warn("wal truncation failed", "error", err)
		}
	}
	e.maybeCompactBySize()
	e.maybeCompactByFileCount()
}

// Flush synchronously drains the engine: the mutable memtable (if
// non-empty) is rotated and the whole immutable queue written out, the WAL
// truncated, and the compaction checks run. A no-op when there is nothing
// buffered.
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return core.ErrEngineClosed
	}
	_, span := e.tracer.Start(context.Background(), "Engine.Flush")
	defer span.End()

	e.mu.Lock()
	if e.mutable.Size() == 0 && len(e.immutables) == 0 {
		e.mu.Unlock()
		return nil
	}
	if e.mutable.Size() > 0 {
		e.rotateLocked()
	}
	e.mu.Unlock()

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	for {
		toFlush := e.popImmutable()
		if toFlush == nil {
			return nil
		}
		if err := e.writeTable(toFlush); err != nil {
			e.requeueImmutable(toFlush)
			span.SetStatus(codes.Error, "flush failed")
			span.RecordError(err)
			return fmt.Errorf("flush memtable: %w", err)
		}
		e.afterTableWrite()
	}
}

// WaitForFlushCompletion blocks until no flusher is running and the
// immutable queue is empty. If a flush has failed and left the queue
// non-empty, this blocks until a later Flush succeeds.
func (e *Engine) WaitForFlushCompletion() {
	for e.flusherRunning.Load() || e.immutableCount() > 0 {
		time.Sleep(flushPollInterval)
	}
}
