package sstable

import (
	"errors"
	"math"
	"math/bits"
)

// BloomFilter is the parameterized probabilistic membership filter attached
// to each SSTable on the lookup path. False positives are acceptable; false
// negatives are not.
type BloomFilter struct {
	bitset    []byte
	numBits   uint64
	numHashes uint32
}

// NewBloomFilter sizes a filter for expectedItems entries at the target
// falsePositiveRate (0 < p < 1). Bit count and hash count follow the
// standard optimum: m = ceil(-n·ln(p)/ln(2)²), k = round((m/n)·ln(2)).
func NewBloomFilter(expectedItems uint64, falsePositiveRate float64) (*BloomFilter, error) {
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		return nil, errors.New("invalid arguments for NewBloomFilter: falsePositiveRate must be (0, 1)")
	}
	if expectedItems == 0 {
		// A minimal valid filter, so an empty SSTable still registers one.
		return &BloomFilter{bitset: make([]byte, 1), numBits: 8, numHashes: 1}, nil
	}

	m := uint64(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	k := uint32(math.Round(float64(m) / float64(expectedItems) * math.Ln2))

	if m%8 != 0 {
		m = (m/8 + 1) * 8
	}
	if m == 0 {
		m = 8
	}
	if k == 0 {
		k = 1
	}

	return &BloomFilter{
		bitset:    make([]byte, m/8),
		numBits:   m,
		numHashes: k,
	}, nil
}

// Add records a key in the filter.
func (bf *BloomFilter) Add(key string) {
	h1, h2 := seedHashes(key)
	for i := uint32(0); i < bf.numHashes; i++ {
		idx := (uint64(h1) + uint64(i)*uint64(h2)) % bf.numBits
		bf.bitset[idx/8] |= 1 << (idx % 8)
	}
}

// MightContain reports whether the key may have been added. A false result
// is definitive.
func (bf *BloomFilter) MightContain(key string) bool {
	if bf == nil || len(bf.bitset) == 0 {
		return false
	}
	h1, h2 := seedHashes(key)
	for i := uint32(0); i < bf.numHashes; i++ {
		idx := (uint64(h1) + uint64(i)*uint64(h2)) % bf.numBits
		if bf.bitset[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// seedHashes derives the two base hashes for double hashing from the key's
// UTF-8 bytes, using two distinct polynomial accumulations.
func seedHashes(key string) (uint32, uint32) {
	var h1, h2 uint32
	for i := 0; i < len(key); i++ {
		h1 = 31*h1 + uint32(key[i])
		h2 = 17*h2 + uint32(key[i])
	}
	return h1, h2
}

// tableBloomBits is the fixed bit count of the per-file gate filter.
const tableBloomBits = 8 * 1024

// TableBloom is the simpler fixed-size filter variant kept per SSTable file
// and consulted as a whole-directory gate before any file scan. Its two
// probes come from the key's string hash and that hash's 16-bit rotation.
type TableBloom struct {
	bitset [tableBloomBits / 8]byte
}

// NewTableBloom returns an empty gate filter.
func NewTableBloom() *TableBloom {
	return &TableBloom{}
}

func (tb *TableBloom) probes(key string) (uint32, uint32) {
	var h1 uint32
	for i := 0; i < len(key); i++ {
		h1 = 31*h1 + uint32(key[i])
	}
	return h1 % tableBloomBits, bits.RotateLeft32(h1, 16) % tableBloomBits
}

// Add records a key in the filter.
func (tb *TableBloom) Add(key string) {
	p1, p2 := tb.probes(key)
	tb.bitset[p1/8] |= 1 << (p1 % 8)
	tb.bitset[p2/8] |= 1 << (p2 % 8)
}

// MightContain reports whether the key may have been added.
func (tb *TableBloom) MightContain(key string) bool {
	p1, p2 := tb.probes(key)
	return tb.bitset[p1/8]&(1<<(p1%8)) != 0 && tb.bitset[p2/8]&(1<<(p2%8)) != 0
}
