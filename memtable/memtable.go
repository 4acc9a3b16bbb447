// Package memtable implements the in-memory ordered buffer of recent
// writes. A memtable is mutated only by the engine's write path; once
// rotated into the immutable queue it is read-only until the flusher has
// written it to an SSTable.
package memtable

import (
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/skiplist"

	"github.com/pellet-db/pellet/core"
	"github.com/pellet-db/pellet/utils/clock"
)

func comparator(a, b string) int {
	return strings.Compare(a, b)
}

// Memtable is a sorted key to entry map with byte-size accounting. An entry
// carries either a live value or a tombstone; both are first-class states,
// distinct from the key being absent.
type Memtable struct {
	mu        sync.RWMutex
	data      *skiplist.SkipList[string, *core.Entry]
	sizeBytes int64
	threshold int64

	// CreationTime is stamped when the memtable is allocated and is used
	// only for observability.
	CreationTime time.Time
}

// NewMemtable creates an empty memtable with the given rotation threshold.
func NewMemtable(threshold int64, clk clock.Clock) *Memtable {
	return &Memtable{
		data:         skiplist.NewWithComparator[string, *core.Entry](comparator),
		threshold:    threshold,
		CreationTime: clk.Now(),
	}
}

// entrySize is the entry's contribution to the memtable's byte count:
// len(key) plus len(value) for live entries, len(key) alone for tombstones.
func entrySize(e *core.Entry) int64 {
	n := int64(len(e.Key))
	if e.Type == core.EntryTypePut {
		n += int64(len(e.Value))
	}
	return n
}

// Put inserts or updates a key with a live value or a tombstone. Updating an
// existing key subtracts its old contribution before adding the new one.
func (m *Memtable) Put(key, value string, entryType core.EntryType) error {
	if key == "" {
		return core.ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &core.Entry{Key: key, Value: value, Type: entryType}
	if entryType == core.EntryTypeDelete {
		entry.Value = ""
	}

	// The old contribution is read before the insert, because the skiplist
	// updates an existing node in place.
	if node, ok := m.data.Seek(key); ok && node.Key() == key {
		m.sizeBytes -= entrySize(node.Value())
	}
	m.data.Insert(key, entry)
	m.sizeBytes += entrySize(entry)
	return nil
}

// Get reports whether the key is present and, if so, whether it holds a live
// value or a tombstone. A false found return means "not in this memtable",
// not "deleted".
func (m *Memtable) Get(key string) (value string, entryType core.EntryType, found bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.data.Seek(key)
	if !ok || node.Key() != key {
		return "", 0, false
	}
	entry := node.Value()
	return entry.Value, entry.Type, true
}

// Dump returns a snapshot of all entries in ascending key order.
func (m *Memtable) Dump() []core.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]core.Entry, 0, m.data.Len())
	iter := m.data.NewIterator()
	for iter.Next() {
		entries = append(entries, *iter.Value())
	}
	return entries
}

// Size returns the accounted byte size of all entries.
func (m *Memtable) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeBytes
}

// IsFull reports whether the memtable has reached its rotation threshold.
func (m *Memtable) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeBytes >= m.threshold
}

// Len returns the number of entries.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Len()
}

// IsEmpty reports whether the memtable holds no entries.
func (m *Memtable) IsEmpty() bool {
	return m.Len() == 0
}

// Clear drops all entries and resets the byte count.
func (m *Memtable) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = skiplist.NewWithComparator[string, *core.Entry](comparator)
	m.sizeBytes = 0
}
