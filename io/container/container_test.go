package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManager_Lifecycle(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := m.Create("smdl2tmp1", 4, "secret", 1000, true)
	require.NoError(t, err)
	require.DirExists(t, path)
	require.True(t, m.IsMounted("smdl2tmp1"))

	require.NoError(t, os.WriteFile(filepath.Join(path, "pkg.apk"), []byte("code"), 0o644))
	require.NoError(t, m.Finalize("smdl2tmp1"))
	require.True(t, m.IsFinalized("smdl2tmp1"))

	size, err := m.Size("smdl2tmp1")
	require.NoError(t, err)
	require.Equal(t, int64(4), size)

	limit, err := m.SizeLimit("smdl2tmp1")
	require.NoError(t, err)
	require.Equal(t, int64(4<<20), limit)

	// renaming requires the volume to be unmounted
	require.ErrorIs(t, m.Rename("smdl2tmp1", "com.example.app-1"), ErrMounted)
	require.NoError(t, m.Unmount("smdl2tmp1", false))
	require.NoError(t, m.Rename("smdl2tmp1", "com.example.app-1"))

	_, err = m.Path("com.example.app-1")
	require.ErrorIs(t, err, ErrNotMounted)

	_, err = m.Mount("com.example.app-1", "wrong", 1000)
	require.ErrorIs(t, err, ErrBadKey)

	path, err = m.Mount("com.example.app-1", "secret", 1000)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(path, "pkg.apk"))

	ids, err := m.List()
	require.NoError(t, err)
	require.Equal(t, []string{"com.example.app-1"}, ids)

	require.ErrorIs(t, m.Destroy("com.example.app-1", false), ErrMounted)
	require.NoError(t, m.Destroy("com.example.app-1", true))

	ids, err = m.List()
	require.NoError(t, err)
	require.Empty(t, ids)

	// destroying a missing container is a no-op
	require.NoError(t, m.Destroy("com.example.app-1", true))
}

func TestManager_CreateTwice(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = m.Create("c1", 1, "k", 0, false)
	require.NoError(t, err)
	_, err = m.Create("c1", 1, "k", 0, false)
	require.ErrorIs(t, err, ErrContainerExists)

	_, err = m.Create("../escape", 1, "k", 0, false)
	require.Error(t, err)
}

func TestManager_FixPermissions(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := m.Create("c1", 1, "k", 10001, true)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "pkg.apk"), []byte("code"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(path, "res.zip"), []byte("res"), 0o600))

	require.NoError(t, m.FixPermissions("c1", 50001, "res.zip"))

	info, err := os.Stat(filepath.Join(path, "pkg.apk"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(path, "res.zip"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	gid, ok := m.Group("c1", "res.zip")
	require.True(t, ok)
	require.Equal(t, 50001, gid)

	require.NoError(t, m.Unmount("c1", false))
	require.ErrorIs(t, m.FixPermissions("c1", 1, "res.zip"), ErrNotMounted)
}

func TestManager_SharedRoot(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	require.NoError(t, err)
	b, err := New(root)
	require.NoError(t, err)

	_, err = a.Create("c1", 1, "k", 0, false)
	require.NoError(t, err)
	require.True(t, b.IsMounted("c1"))

	require.NoError(t, b.Unmount("c1", false))
	require.False(t, a.IsMounted("c1"))
}
