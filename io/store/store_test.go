package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
)

func TestStore_SaveLoad(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	e := registry.Entry{
		Name:       "com.example.app",
		Version:    3,
		UID:        10001,
		CertDigest: "abc",
		Flags:      dto.FlagForwardLock,
		Storage: storage.Descriptor{
			Kind:        storage.KindContainer,
			ContainerID: "com.example.app-1",
		},
	}
	require.NoError(t, s.Save(e))

	got, err := s.Load("com.example.app")
	require.NoError(t, err)
	assert.Equal(t, e.Version, got.Version)
	assert.Equal(t, e.Storage, got.Storage)
	assert.Equal(t, dto.FlagForwardLock, got.Flags)
	assert.Equal(t, 1, s.Size())

	require.NoError(t, s.Delete("com.example.app"))
	_, err = s.Load("com.example.app")
	assert.Equal(t, ErrNotFound, err)
	assert.Equal(t, 0, s.Size())

	// deleting twice is fine
	require.NoError(t, s.Delete("com.example.app"))
	require.Error(t, s.Save(registry.Entry{}))
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(registry.Entry{Name: "a", UID: 10000}))
	require.NoError(t, s.Save(registry.Entry{Name: "b", UID: 10001}))
	require.NoError(t, s.Close())

	s, err = New(dir)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
}

func TestStore_BacksRegistry(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	r, err := registry.New(s)
	require.NoError(t, err)

	first, err := r.Commit(registry.Entry{Name: "a"}, false)
	require.NoError(t, err)
	r.Close()
	require.NoError(t, s.Close())

	s, err = New(dir)
	require.NoError(t, err)
	defer s.Close()
	r, err = registry.New(s)
	require.NoError(t, err)
	defer r.Close()

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, first.UID, got.UID)

	second, err := r.Commit(registry.Entry{Name: "b"}, false)
	require.NoError(t, err)
	assert.Equal(t, first.UID+1, second.UID)
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
