package sys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameWithRetry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tmp")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	require.NoError(t, RenameWithRetry(src, dst, 3, time.Millisecond))

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(raw))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestRenameWithRetry_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tmp")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, RenameWithRetry(src, dst, 3, time.Millisecond))

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(raw))
}

func TestRenameWithRetry_FailureRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tmp")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	// Renaming into a missing directory cannot succeed.
	err := RenameWithRetry(src, filepath.Join(dir, "missing", "dst.txt"), 2, time.Millisecond)
	require.Error(t, err)
	_, statErr := os.Stat(src)
	assert.True(t, os.IsNotExist(statErr), "source should be cleaned up after final failure")
}

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.gz")
	dst := filepath.Join(dir, "dst.gz")
	require.NoError(t, os.WriteFile(src, []byte("compacted"), 0o644))

	require.NoError(t, ReplaceFile(src, dst))
	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "compacted", string(raw))
}

func TestSafeRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	assert.NoError(t, SafeRemove(path))
	assert.NoError(t, SafeRemove(path)) // already gone
}
