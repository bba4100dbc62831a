package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/installd/io/container"
)

func TestRemoveStale(t *testing.T) {
	root := t.TempDir()
	containers, err := container.New(filepath.Join(root, "containers"))
	require.NoError(t, err)

	env := &Env{
		AppDir:        filepath.Join(root, "app"),
		PrivateAppDir: filepath.Join(root, "app-private"),
		LibDir:        filepath.Join(root, "app-lib"),
		Containers:    containers,
		InstallLock:   &sync.Mutex{},
	}
	for _, dir := range []string{env.AppDir, env.PrivateAppDir, filepath.Join(env.LibDir, "vmdl42")} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	stale := []string{
		filepath.Join(env.AppDir, "vmdl1.tmp"),
		filepath.Join(env.PrivateAppDir, "vmdl2.tmp"),
	}
	kept := filepath.Join(env.AppDir, "com.example.app-1.pkg")
	for _, p := range append(stale, kept) {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	_, err = containers.Create("smdl2tmp1", 1, "k", 0, true)
	require.NoError(t, err)
	_, err = containers.Create("com.example.other-1", 1, "k", 0, true)
	require.NoError(t, err)

	removed, err := RemoveStale(env)
	require.NoError(t, err)
	require.Len(t, removed, 4)

	for _, p := range stale {
		require.NoFileExists(t, p)
	}
	require.NoDirExists(t, filepath.Join(env.LibDir, "vmdl42"))
	require.FileExists(t, kept)

	ids, err := containers.List()
	require.NoError(t, err)
	require.Equal(t, []string{"com.example.other-1"}, ids)
}
