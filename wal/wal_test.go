package wal

import (
	"expvar"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pellet-db/pellet/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestWAL(t *testing.T, dir string) *WAL {
	t.Helper()
	w, err := Open(Options{Path: filepath.Join(dir, "wal.log")})
	require.NoError(t, err)
	return w
}

func replayAll(t *testing.T, w *WAL) []core.Entry {
	t.Helper()
	var entries []core.Entry
	require.NoError(t, w.Replay(func(e core.Entry) error {
		entries = append(entries, e)
		return nil
	}))
	return entries
}

func TestWAL_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	require.NoError(t, w.Append("k1", "v1", core.EntryTypePut))
	require.NoError(t, w.Append("k2", "v2", core.EntryTypePut))
	require.NoError(t, w.Append("k1", "", core.EntryTypeDelete))

	entries := replayAll(t, w)
	require.Len(t, entries, 3)
	assert.Equal(t, core.Entry{Key: "k1", Value: "v1", Type: core.EntryTypePut}, entries[0])
	assert.Equal(t, core.Entry{Key: "k2", Value: "v2", Type: core.EntryTypePut}, entries[1])
	assert.Equal(t, core.Entry{Key: "k1", Type: core.EntryTypeDelete}, entries[2])
}

func TestWAL_RecordFormat(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)

	require.NoError(t, w.Append("name", "Likitha", core.EntryTypePut))
	require.NoError(t, w.Append("gone", "", core.EntryTypeDelete))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	assert.Equal(t, "name=Likitha\ngone=__TOMBSTONE__\n", string(raw))
}

func TestWAL_ReplaySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	require.NoError(t, w.Append("k", "v", core.EntryTypePut))
	require.NoError(t, w.Close())

	// A fresh WAL over the same file appends rather than truncating.
	w2 := openTestWAL(t, dir)
	defer w2.Close()
	require.NoError(t, w2.Append("k2", "v2", core.EntryTypePut))

	entries := replayAll(t, w2)
	require.Len(t, entries, 2)
	assert.Equal(t, "k", entries[0].Key)
	assert.Equal(t, "k2", entries[1].Key)
}

func TestWAL_Clear(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	require.NoError(t, w.Append("k", "v", core.EntryTypePut))
	require.NoError(t, w.Clear())

	assert.Empty(t, replayAll(t, w))

	info, err := os.Stat(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.Size())

	// The writer stays usable after truncation.
	require.NoError(t, w.Append("k2", "v2", core.EntryTypePut))
	entries := replayAll(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "k2", entries[0].Key)
}

func TestWAL_ReplaySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	require.NoError(t, os.WriteFile(path, []byte("good=1\nno separator here\nalso-good=2\n"), 0o644))

	w, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer w.Close()

	entries := replayAll(t, w)
	require.Len(t, entries, 2)
	assert.Equal(t, "good", entries[0].Key)
	assert.Equal(t, "also-good", entries[1].Key)
}

func TestWAL_ReplayMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	w := &WAL{path: filepath.Join(dir, "never-created.log"), logger: discardLogger()}
	assert.Empty(t, replayAll(t, w))
}

func TestWAL_ValueWithEquals(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	require.NoError(t, w.Append("k", "a=b=c", core.EntryTypePut))
	entries := replayAll(t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "a=b=c", entries[0].Value)
}

func TestWAL_Metrics(t *testing.T) {
	dir := t.TempDir()
	bytesWritten := new(expvar.Int)
	entriesWritten := new(expvar.Int)
	w, err := Open(Options{
		Path:           filepath.Join(dir, "wal.log"),
		BytesWritten:   bytesWritten,
		EntriesWritten: entriesWritten,
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append("k", "v", core.EntryTypePut))
	assert.EqualValues(t, 1, entriesWritten.Value())
	assert.EqualValues(t, len("k=v\n"), bytesWritten.Value())
}

func TestWAL_ClosedOperations(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Append("k", "v", core.EntryTypePut), ErrClosed)
	assert.ErrorIs(t, w.Clear(), ErrClosed)
	assert.NoError(t, w.Close()) // idempotent
}
