package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, m Manifest) string {
	path := filepath.Join(t.TempDir(), "app.pkg")
	require.NoError(t, BuildFile(path, m, []byte("bytecode"), []byte("cert-1"), map[string][]byte{"res/icon.png": []byte("png")}))
	return path
}

func TestOpen(t *testing.T) {
	path := writeArchive(t, Manifest{
		Package:         "com.example.app",
		Version:         3,
		InstallLocation: LocationPreferExternal,
		Verifiers:       []VerifierDecl{{Package: "com.example.verifier", PublicKey: Digest([]byte("vcert"))}},
	})

	info, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, "com.example.app", info.Package)
	require.Equal(t, int64(3), info.Version)
	require.Equal(t, LocationPreferExternal, info.InstallLocation)
	require.Equal(t, Digest([]byte("cert-1")), info.CertDigest)
	require.Len(t, info.Verifiers, 1)
	require.NotEmpty(t, info.ManifestDigest)
	require.Greater(t, info.Size, int64(0))
}

func TestOpen_DefaultsLocation(t *testing.T) {
	info, err := Open(writeArchive(t, Manifest{Package: "com.example.app", Version: 1}))
	require.NoError(t, err)
	require.Equal(t, LocationAuto, info.InstallLocation)
}

func TestOpen_Invalid(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(notZip, []byte("hello"), 0o644))
	_, err := Open(notZip)
	require.ErrorIs(t, err, ErrInvalidArchive)

	unsigned := filepath.Join(dir, "unsigned.pkg")
	require.NoError(t, BuildFile(unsigned, Manifest{Package: "a.b"}, []byte("code"), nil, nil))
	_, err = Open(unsigned)
	require.ErrorIs(t, err, ErrInvalidArchive)

	badName := filepath.Join(dir, "bad.pkg")
	require.NoError(t, BuildFile(badName, Manifest{Package: "a/b"}, []byte("code"), []byte("c"), nil))
	_, err = Open(badName)
	require.ErrorIs(t, err, ErrInvalidArchive)

	_, err = Open(filepath.Join(dir, "missing.pkg"))
	require.ErrorIs(t, err, ErrInvalidArchive)
}

func TestWritePublicResources(t *testing.T) {
	src := writeArchive(t, Manifest{Package: "com.example.app", Version: 1})
	dst := filepath.Join(t.TempDir(), "res.zip")

	require.NoError(t, WritePublicResources(src, dst))

	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names[ManifestEntry])
	require.True(t, names["res/icon.png"])
	require.False(t, names[CodeEntry])
}

func TestExtractNativeLibs(t *testing.T) {
	src := filepath.Join(t.TempDir(), "app.pkg")
	require.NoError(t, BuildFile(src, Manifest{Package: "com.example.app"}, []byte("code"), []byte("cert"), map[string][]byte{
		"lib/arm64/libfoo.so": []byte("foo"),
		"lib/libbar.so":       []byte("bar"),
	}))
	dir := filepath.Join(t.TempDir(), "lib")

	n, err := ExtractNativeLibs(src, dir)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.FileExists(t, filepath.Join(dir, "libfoo.so"))
	require.FileExists(t, filepath.Join(dir, "libbar.so"))

	empty := writeArchive(t, Manifest{Package: "com.example.nolibs"})
	other := filepath.Join(t.TempDir(), "none")
	n, err = ExtractNativeLibs(empty, other)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoDirExists(t, other)
}
