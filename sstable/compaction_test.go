package sstable

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pellet-db/pellet/core"
)

func writeTables(t *testing.T, s *Store, tables ...[]core.Entry) {
	t.Helper()
	for i, entries := range tables {
		_, err := s.WriteMemtable(entries, uint64(i))
		require.NoError(t, err)
		time.Sleep(15 * time.Millisecond) // distinct mtimes for recency ordering
	}
}

func TestCompaction_ForcedMergeProducesCompactedFile(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s,
		[]core.Entry{putEntry("a", "1")},
		[]core.Entry{putEntry("b", "2")},
	)

	require.NoError(t, s.CompactByFileCount(0))

	_, err := os.Stat(filepath.Join(s.Dir(), CompactedFileName))
	require.NoError(t, err)

	// Inputs are gone.
	for _, name := range []string{"sstable_0.txt", "sstable_1.txt"} {
		_, err := os.Stat(filepath.Join(s.Dir(), name))
		assert.True(t, os.IsNotExist(err), "input %s should be deleted", name)
	}

	// All live keys stay retrievable through the compressed path.
	for key, want := range map[string]string{"a": "1", "b": "2"} {
		value, found, err := s.LookupCompressed(key)
		require.NoError(t, err)
		require.True(t, found, "key %s", key)
		assert.Equal(t, want, value)
	}
}

func TestCompaction_NewestValueWins(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s,
		[]core.Entry{putEntry("k", "old")},
		[]core.Entry{putEntry("k", "new")},
	)

	require.NoError(t, s.CompactBySize(0))

	value, found, err := s.LookupCompressed("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", value)
}

func TestCompaction_DropsTombstonedKeys(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s,
		[]core.Entry{putEntry("keep", "v"), putEntry("gone", "v")},
		[]core.Entry{delEntry("gone")},
	)

	require.NoError(t, s.CompactByFileCount(0))

	_, found, err := s.LookupCompressed("gone")
	require.NoError(t, err)
	assert.False(t, found, "tombstoned key should be dropped entirely")

	value, found, err := s.LookupCompressed("keep")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", value)

	// The dropped key's filters are gone with its input files.
	assert.False(t, s.MightContain("gone"))
	assert.True(t, s.MightContain("keep"))
}

func TestCompaction_ThresholdsRespected(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s, []core.Entry{putEntry("k", "v")})

	// Under both limits: nothing happens.
	require.NoError(t, s.CompactBySize(1024*1024))
	require.NoError(t, s.CompactByFileCount(10))
	_, err := os.Stat(filepath.Join(s.Dir(), "sstable_0.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.Dir(), CompactedFileName))
	assert.True(t, os.IsNotExist(err))

	// Over the count limit: merged.
	time.Sleep(15 * time.Millisecond)
	_, werr := s.WriteMemtable([]core.Entry{putEntry("k2", "v2")}, 1)
	require.NoError(t, werr)
	require.NoError(t, s.CompactByFileCount(1))
	_, err = os.Stat(filepath.Join(s.Dir(), CompactedFileName))
	assert.NoError(t, err)
}

func TestCompaction_PreviousCompactedFileIsMerged(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s, []core.Entry{putEntry("old", "1")})
	require.NoError(t, s.CompactByFileCount(0))

	time.Sleep(15 * time.Millisecond)
	writeTables(t, s, []core.Entry{putEntry("new", "2")})
	require.NoError(t, s.CompactByFileCount(0))

	// Both generations survive in the single compacted output.
	for key, want := range map[string]string{"old": "1", "new": "2"} {
		value, found, err := s.LookupCompressed(key)
		require.NoError(t, err)
		require.True(t, found, "key %s", key)
		assert.Equal(t, want, value)
	}
}

func TestCompaction_SkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s, []core.Entry{putEntry("good", "v")})
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "sstable_9.txt"),
		[]byte("no separator\nok=fine\n"), 0o644))

	require.NoError(t, s.CompactByFileCount(0))

	value, found, err := s.LookupCompressed("good")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", value)

	value, found, err = s.LookupCompressed("ok")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fine", value)
}

func TestCompaction_NoTempFileLeftBehind(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s, []core.Entry{putEntry("k", "v")})
	require.NoError(t, s.CompactBySize(0))

	_, err := os.Stat(filepath.Join(s.Dir(), compactedTempName))
	assert.True(t, os.IsNotExist(err))
}

func TestCompaction_EmptyDirectoryIsNoOp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CompactBySize(0))
	require.NoError(t, s.CompactByFileCount(10))
}

func TestCompressionStats(t *testing.T) {
	s := newTestStore(t)
	writeTables(t, s, []core.Entry{putEntry("a", "1")}, []core.Entry{putEntry("b", "2")})

	cs, err := s.CompressionStats()
	require.NoError(t, err)
	assert.Equal(t, 2, cs.TotalFiles)
	assert.Equal(t, 0, cs.CompressedFiles)

	require.NoError(t, s.CompactByFileCount(0))
	cs, err = s.CompressionStats()
	require.NoError(t, err)
	assert.Equal(t, 1, cs.TotalFiles)
	assert.Equal(t, 1, cs.CompressedFiles)
	assert.Equal(t, cs.TotalBytes, cs.CompressedBytes)
	assert.InDelta(t, 100, cs.Ratio(), 0.001)
}
