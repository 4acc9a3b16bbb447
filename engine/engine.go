// Package engine orchestrates the LSM write and read paths: the WAL, the
// mutable memtable, the immutable-memtable queue, the background flusher,
// the SSTable store, and the two compaction triggers.
package engine

import (
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pellet-db/pellet/config"
	"github.com/pellet-db/pellet/core"
	"github.com/pellet-db/pellet/memtable"
	"github.com/pellet-db/pellet/sstable"
	"github.com/pellet-db/pellet/utils/clock"
	"github.com/pellet-db/pellet/wal"
)

// WALFileName is the write-ahead log's name inside the data directory.
const WALFileName = "wal.log"

// writeFilterCapacity sizes the engine-wide write filter.
const writeFilterCapacity = 10000

// Options configures an Engine. Zero fields take the defaults from the
// config package.
type Options struct {
	DataDir           string
	MemtableThreshold int64
	SSTableDiskLimit  int64
	MaxSSTableFiles   int
	BloomFPRate       float64

	Logger *slog.Logger
	Clock  clock.Clock
	Tracer trace.Tracer

	// Optional metrics counters; nil counters are not updated.
	FlushesCompleted     *expvar.Int
	CompactionsCompleted *expvar.Int
	WALBytesWritten      *expvar.Int
	WALEntriesWritten    *expvar.Int
}

func (o *Options) applyDefaults() {
	if o.MemtableThreshold <= 0 {
		o.MemtableThreshold = config.DefaultMemtableThresholdBytes
	}
	if o.SSTableDiskLimit <= 0 {
		o.SSTableDiskLimit = config.DefaultSSTableDiskLimitBytes
	}
	if o.MaxSSTableFiles <= 0 {
		o.MaxSSTableFiles = config.DefaultMaxSSTableFiles
	}
	if o.BloomFPRate <= 0 || o.BloomFPRate >= 1 {
		o.BloomFPRate = config.DefaultBloomFPRate
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.SystemClock{}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("pellet")
	}
}

// Engine is a single-process LSM storage engine over one data directory.
// The directory is exclusively owned by this instance; behaviour with two
// instances on the same directory is undefined.
type Engine struct {
	opts Options

	// mu serializes memtable mutation and rotation.
	mu         sync.Mutex
	mutable    *memtable.Memtable
	immutables []*memtable.Memtable

	// flushMu serializes queue draining between Flush and the background
	// flusher, which also keeps the counter and file mtimes in recency
	// order.
	flushMu sync.Mutex
	counter uint64 // next plain SSTable counter; guarded by flushMu

	wal   *wal.WAL
	store *sstable.Store

	// writeFilter tracks every key accepted by this engine instance. It
	// is updated on each put and delete, and rebuilt from the on-disk
	// tables on open and after a forced compaction. Guarded by mu.
	writeFilter *sstable.BloomFilter

	flusherRunning atomic.Bool
	compactionMu   sync.Mutex // contended background checks return immediately; ForceCompaction waits
	closed         atomic.Bool

	logger *slog.Logger
	tracer trace.Tracer
	clk    clock.Clock
}

// Open creates or recovers an engine over opts.DataDir: the directory is
// created, the next SSTable counter derived from the existing plain tables,
// the WAL replayed into a fresh mutable memtable, and the Bloom filters
// rebuilt from every table on disk.
func Open(opts Options) (*Engine, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("engine: data directory must not be empty")
	}
	opts.applyDefaults()

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", opts.DataDir, err)
	}

	logger := opts.Logger.With("component", "Engine")
	store := sstable.NewStore(sstable.Options{
		Dir:         opts.DataDir,
		BloomFPRate: opts.BloomFPRate,
		Logger:      opts.Logger,
		Clock:       opts.Clock,
	})

	journal, err := wal.Open(wal.Options{
		Path:           filepath.Join(opts.DataDir, WALFileName),
		Logger:         opts.Logger,
		BytesWritten:   opts.WALBytesWritten,
		EntriesWritten: opts.WALEntriesWritten,
	})
	if err != nil {
		return nil, err
	}

	writeFilter, err := sstable.NewBloomFilter(writeFilterCapacity, opts.BloomFPRate)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		opts:        opts,
		mutable:     memtable.NewMemtable(opts.MemtableThreshold, opts.Clock),
		counter:     sstable.NextCounter(opts.DataDir),
		wal:         journal,
		store:       store,
		writeFilter: writeFilter,
		logger:      logger,
		tracer:      opts.Tracer,
		clk:         opts.Clock,
	}

	// Recovery: the WAL holds every write not yet covered by an SSTable.
	// Replay rebuilds the mutable memtable but leaves the WAL intact, so
	// a crash right after restart loses nothing.
	if err := journal.Replay(func(entry core.Entry) error {
		if err := e.mutable.Put(entry.Key, entry.Value, entry.Type); err != nil {
			if errors.Is(err, core.ErrEmptyKey) {
				logger.Warn("skipping wal entry with empty key")
				return nil
			}
			return err
		}
		return nil
	}); err != nil {
		journal.Close()
		return nil, fmt.Errorf("replay wal: %w", err)
	}

	if err := store.RebuildFilters(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("rebuild sstable filters: %w", err)
	}
	e.rebuildWriteFilterFromDisk()

	logger.Info("engine opened",
		"data_dir", opts.DataDir,
		"next_sstable_counter", e.counter,
		"recovered_entries", e.mutable.Len())
	return e, nil
}

// NewFromConfig opens an engine from a validated Config, building the
// logger it describes.
func NewFromConfig(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	return Open(Options{
		DataDir:           cfg.DataDir,
		MemtableThreshold: cfg.Memtable.SizeThresholdBytes,
		SSTableDiskLimit:  cfg.SSTable.DiskLimitBytes,
		MaxSSTableFiles:   cfg.SSTable.MaxFileCount,
		BloomFPRate:       cfg.SSTable.BloomFilterFPRate,
		Logger:            logger,
	})
}

// rebuildWriteFilterFromDisk resets the engine-wide write filter and
// re-adds every key found in the on-disk tables.
func (e *Engine) rebuildWriteFilterFromDisk() {
	fresh, err := sstable.NewBloomFilter(writeFilterCapacity, e.opts.BloomFPRate)
	if err != nil {
		e.logger.Error("could not rebuild write filter", "error", err)
		return
	}
	if err := e.store.VisitKeys(fresh.Add); err != nil {
		e.logger.Warn("write filter rebuild saw errors", "error", err)
	}
	e.mu.Lock()
	e.writeFilter = fresh
	e.mu.Unlock()
}

// Close flushes and closes the WAL and marks the engine closed. Buffered
// memtable state stays recoverable through the WAL on the next Open.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("engine closing")
	return e.wal.Close()
}
