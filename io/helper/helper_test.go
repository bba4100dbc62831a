package helper

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/io/archive"
	"github.com/vadiminshakov/installd/io/container"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type env struct {
	client     *Client
	service    *Service
	containers *container.Manager
	appDir     string
	free       map[string]int64
	external   bool
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		appDir:   t.TempDir(),
		free:     map[string]int64{},
		external: true,
	}
	containerRoot := t.TempDir()
	var err error
	e.containers, err = container.New(containerRoot)
	require.NoError(t, err)

	e.free[e.appDir] = 1 << 30
	e.free[containerRoot] = 1 << 30
	e.service = NewService(e.appDir, containerRoot, e.containers,
		WithFreeSpace(func(path string) (int64, error) { return e.free[path], nil }),
		WithExternalAvailable(func() bool { return e.external }),
	)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(codec{}), grpc.UnaryInterceptor(LoggingInterceptor))
	RegisterStorageHelperServer(srv, e.service)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	e.client, err = Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { e.client.Close() })

	return e
}

func writePackage(t *testing.T, m archive.Manifest) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.pkg")
	require.NoError(t, archive.BuildFile(path, m, []byte("bytecode"), []byte("cert"), map[string][]byte{"res/strings.xml": []byte("<r/>")}))
	return path
}

func TestHelper_Ping(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.client.Ping(context.Background()))
}

func TestHelper_MinimalInfo(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pkg := writePackage(t, archive.Manifest{
		Package:   "com.example.app",
		Version:   7,
		Verifiers: []archive.VerifierDecl{{Package: "com.example.verifier", PublicKey: "abc"}},
	})

	info, err := e.client.GetMinimalPackageInfo(ctx, "file://"+pkg, 0, 0)
	require.NoError(t, err)
	require.Equal(t, "com.example.app", info.Package)
	require.Equal(t, int64(7), info.Version)
	require.Equal(t, dto.RecommendInstallInternal, info.RecommendedLocation)
	require.Equal(t, []dto.VerifierInfo{{Package: "com.example.verifier", PublicKey: "abc"}}, info.Verifiers)

	info, err = e.client.GetMinimalPackageInfo(ctx, "relative/path.pkg", 0, 0)
	require.NoError(t, err)
	require.Equal(t, dto.RecommendFailedInvalidURI, info.RecommendedLocation)

	garbage := filepath.Join(t.TempDir(), "garbage.pkg")
	require.NoError(t, os.WriteFile(garbage, []byte("not a zip"), 0o644))
	info, err = e.client.GetMinimalPackageInfo(ctx, garbage, 0, 0)
	require.NoError(t, err)
	require.Equal(t, dto.RecommendFailedInvalidArchive, info.RecommendedLocation)
}

func TestHelper_RecommendLocation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	internalOnly := writePackage(t, archive.Manifest{Package: "a.internal", InstallLocation: archive.LocationInternalOnly})
	preferExternal := writePackage(t, archive.Manifest{Package: "a.external", InstallLocation: archive.LocationPreferExternal})
	auto := writePackage(t, archive.Manifest{Package: "a.auto"})

	tests := []struct {
		name     string
		path     string
		flags    dto.InstallFlags
		internal int64
		external bool
		want     dto.RecommendedLocation
	}{
		{"both flags", auto, dto.FlagInternal | dto.FlagExternal, 1 << 30, true, dto.RecommendFailedInvalidLocation},
		{"internal flag", preferExternal, dto.FlagInternal, 1 << 30, true, dto.RecommendInstallInternal},
		{"external flag", internalOnly, dto.FlagExternal, 1 << 30, true, dto.RecommendInstallExternal},
		{"external flag without media", auto, dto.FlagExternal, 1 << 30, false, dto.RecommendMediaUnavailable},
		{"internal only full", internalOnly, 0, 0, true, dto.RecommendFailedInsufficientStorage},
		{"prefer external", preferExternal, 0, 1 << 30, true, dto.RecommendInstallExternal},
		{"prefer external falls back", preferExternal, 0, 1 << 30, false, dto.RecommendInstallInternal},
		{"auto prefers internal", auto, 0, 1 << 30, true, dto.RecommendInstallInternal},
		{"auto falls back to external", auto, 0, 0, true, dto.RecommendInstallExternal},
		{"auto nowhere", auto, 0, 0, false, dto.RecommendFailedInsufficientStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.free[e.appDir] = tt.internal
			e.external = tt.external

			info, err := e.client.GetMinimalPackageInfo(ctx, tt.path, tt.flags, 0)
			require.NoError(t, err)
			require.Equal(t, tt.want, info.RecommendedLocation)
		})
	}
}

func TestHelper_FreeSpaceThreshold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pkg := writePackage(t, archive.Manifest{Package: "a.b"})
	size := fileSize(t, pkg)

	e.free[e.appDir] = size + 100
	fits, err := e.client.CheckInternalFreeSpace(ctx, pkg, false, 50)
	require.NoError(t, err)
	require.True(t, fits)

	fits, err = e.client.CheckInternalFreeSpace(ctx, pkg, false, 100)
	require.NoError(t, err)
	require.False(t, fits)

	// forward-locked packages need room for a public copy too
	fits, err = e.client.CheckInternalFreeSpace(ctx, pkg, true, 50)
	require.NoError(t, err)
	require.False(t, fits)

	fits, err = e.client.CheckExternalFreeSpace(ctx, pkg, false)
	require.NoError(t, err)
	require.True(t, fits)
}

func TestHelper_CopyResource(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pkg := writePackage(t, archive.Manifest{Package: "a.b"})

	dest := filepath.Join(e.appDir, "vmdl1.tmp")
	st, err := e.client.CopyResource(ctx, "file://"+pkg, dest, 0o644)
	require.NoError(t, err)
	require.Equal(t, dto.Succeeded, st)
	require.Equal(t, fileSize(t, pkg), fileSize(t, dest))

	st, err = e.client.CopyResource(ctx, filepath.Join(t.TempDir(), "missing.pkg"), dest, 0o644)
	require.NoError(t, err)
	require.Equal(t, dto.FailedInvalidURI, st)

	public := filepath.Join(e.appDir, "a.b.zip")
	st, err = e.client.CopyPublicResources(ctx, pkg, public)
	require.NoError(t, err)
	require.Equal(t, dto.Succeeded, st)
	require.FileExists(t, public)
}

func TestHelper_CopyResourceToContainer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pkg := writePackage(t, archive.Manifest{Package: "a.b"})

	path, err := e.client.CopyResourceToContainer(ctx, dto.ContainerCopyRequest{
		URI:               pkg,
		ContainerID:       "smdl2tmp1",
		Key:               "k",
		ResFileName:       "pkg.apk",
		PublicResFileName: "res.zip",
		OwnerUID:          1000,
		External:          true,
		ForwardLocked:     true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, path)
	require.True(t, e.containers.IsFinalized("smdl2tmp1"))
	require.False(t, e.containers.IsMounted("smdl2tmp1"))

	path, err = e.containers.Mount("smdl2tmp1", "k", 1000)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(path, "pkg.apk"))
	require.FileExists(t, filepath.Join(path, "res.zip"))

	// an existing container id is refused and left alone
	_, err = e.client.CopyResourceToContainer(ctx, dto.ContainerCopyRequest{URI: pkg, ContainerID: "smdl2tmp1", Key: "k", ResFileName: "pkg.apk"})
	require.Error(t, err)
	require.True(t, e.containers.IsMounted("smdl2tmp1"))
}

func TestHelper_CalculateDirectorySize(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 5), 0o644))

	size, err := e.client.CalculateDirectorySize(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, int64(15), size)

	_, err = e.client.CalculateDirectorySize(context.Background(), "relative")
	require.Error(t, err)
}

func TestContainerSizeMB(t *testing.T) {
	require.Equal(t, 1, containerSizeMB(0, false))
	require.Equal(t, 2, containerSizeMB(1, false))
	require.Equal(t, 2, containerSizeMB(1<<20, false))
	require.Equal(t, 3, containerSizeMB(1<<20, true))
}

func fileSize(t *testing.T, path string) int64 {
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}
