package sstable

import "sync"

// FilterRegistry holds the in-memory Bloom filters for the SSTable files
// currently present in a data directory, keyed by file name. Each file has
// two filters: the parameterized lookup filter consulted before scanning
// that file, and the fixed-size gate filter ORed across files to decide
// whether any SSTable scan is worthwhile.
//
// The registry is scoped to one Store instance, so multiple engines in a
// process never share filter state.
type FilterRegistry struct {
	mu     sync.RWMutex
	lookup map[string]*BloomFilter
	gate   map[string]*TableBloom
}

func NewFilterRegistry() *FilterRegistry {
	return &FilterRegistry{
		lookup: make(map[string]*BloomFilter),
		gate:   make(map[string]*TableBloom),
	}
}

// Register installs the filters for an SSTable file, replacing any previous
// registration under the same name.
func (r *FilterRegistry) Register(name string, lookup *BloomFilter, gate *TableBloom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup[name] = lookup
	r.gate[name] = gate
}

// Unregister drops the filters for a file, typically after compaction has
// deleted it.
func (r *FilterRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lookup, name)
	delete(r.gate, name)
}

// LookupFilter returns the per-file lookup filter, or nil if none is
// registered. A file without a filter is scanned unconditionally.
func (r *FilterRegistry) LookupFilter(name string) *BloomFilter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup[name]
}

// MightContain ORs the gate filters of every registered file.
func (r *FilterRegistry) MightContain(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tb := range r.gate {
		if tb.MightContain(key) {
			return true
		}
	}
	return false
}

// Len returns the number of registered files.
func (r *FilterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.gate)
}

// Reset drops every registration.
func (r *FilterRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup = make(map[string]*BloomFilter)
	r.gate = make(map[string]*TableBloom)
}
