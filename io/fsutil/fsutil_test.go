package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirSize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "one"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "two"), make([]byte, 20), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "three"), make([]byte, 30), 0o644))

	size, err := DirSize(root)
	require.NoError(t, err)
	require.Equal(t, int64(60), size)

	size, err = DirSize(filepath.Join(root, "missing"))
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	dst := filepath.Join(dir, "nested", "dst")
	n, err := CopyFile(src, dst, 0o640)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	require.Equal(t, int64(7), FileSize(dst))
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	require.NoError(t, err)
	require.Greater(t, free, int64(0))
}
