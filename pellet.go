package pellet

import (
	"github.com/pellet-db/pellet/config"
	"github.com/pellet-db/pellet/engine"
)

// Config is an alias for config.Config, re-exported for user convenience.
type Config = config.Config

// DefaultConfig returns a Config populated with default values.
// Re-exported for user convenience.
var DefaultConfig = config.DefaultConfig

// Stats is an alias for the engine's stats snapshot.
type Stats = engine.Stats

// DB is a pellet database handle. All methods are safe for concurrent use.
type DB struct {
	engine *engine.Engine
}

// Open opens or creates a database in dir. A nil cfg uses the defaults;
// cfg.DataDir is overridden by dir.
func Open(dir string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	resolved := *cfg
	resolved.DataDir = dir
	e, err := engine.NewFromConfig(&resolved)
	if err != nil {
		return nil, err
	}
	return &DB{engine: e}, nil
}

// Put stores key=value. When Put returns, the write is durable in the WAL.
func (db *DB) Put(key, value string) error {
	return db.engine.Put(key, value)
}

// Get returns the most recent live value for key, or found=false for keys
// that are missing or deleted.
func (db *DB) Get(key string) (value string, found bool, err error) {
	return db.engine.Get(key)
}

// Delete removes key by writing a tombstone.
func (db *DB) Delete(key string) error {
	return db.engine.Delete(key)
}

// Flush synchronously writes all buffered memtables to SSTables and
// truncates the WAL.
func (db *DB) Flush() error {
	return db.engine.Flush()
}

// ForceCompaction merges every SSTable into the single compacted table.
func (db *DB) ForceCompaction() error {
	return db.engine.ForceCompaction()
}

// WaitForFlushCompletion blocks until all background flushing has drained.
func (db *DB) WaitForFlushCompletion() {
	db.engine.WaitForFlushCompletion()
}

// MightContainInSSTables reports whether any on-disk table may hold key.
func (db *DB) MightContainInSSTables(key string) bool {
	return db.engine.MightContainInSSTables(key)
}

// Stats returns a snapshot of buffered and on-disk state.
func (db *DB) Stats() (Stats, error) {
	return db.engine.Stats()
}

// Close flushes and closes the write-ahead log. Buffered writes stay
// recoverable through the WAL on the next Open.
func (db *DB) Close() error {
	return db.engine.Close()
}
