package installer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/installer/hooks"
	"github.com/vadiminshakov/installd/core/journal"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
	"github.com/vadiminshakov/installd/core/verify"
	"github.com/vadiminshakov/installd/io/archive"
	"github.com/vadiminshakov/installd/io/container"
	"github.com/vadiminshakov/installd/io/daemon"
	"github.com/vadiminshakov/installd/io/helper"
)

const waitTimeout = 10 * time.Second

type traceRecorder struct {
	mu     sync.Mutex
	phases []Phase
	binds  int
	votes  []verify.Result
}

func (r *traceRecorder) ItemFinished(string, dto.Status, time.Duration) {}

func (r *traceRecorder) PhaseFinished(_ string, phase Phase, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
}

func (r *traceRecorder) BindRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binds++
}

func (r *traceRecorder) VerificationFinished(res verify.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes = append(r.votes, res)
}

func (r *traceRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = nil
}

func (r *traceRecorder) trace() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

type harnessOptions struct {
	verification bool
	timeout      time.Duration
	hooks        *hooks.Registry

	// the wrap functions stand in front of the real dependencies
	wrapHelper     func(Helper) Helper
	wrapDaemon     func(Daemon) Daemon
	wrapContainers func(storage.Containers) storage.Containers
}

// harness runs the orchestrator against a real daemon server, a real
// storage helper and a container root shared between them.
type harness struct {
	t          *testing.T
	root       string
	in         *Installer
	env        *storage.Env
	reg        *registry.Registry
	journal    *journal.Journal
	daemon     *daemon.Server
	client     *daemon.Client
	containers *container.Manager
	agents     *verify.LocalDirectory
	rec        *traceRecorder

	internalFree atomic.Int64
	externalFree atomic.Int64
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	h := &harness{t: t, root: t.TempDir(), rec: &traceRecorder{}}
	h.internalFree.Store(1 << 30)
	h.externalFree.Store(1 << 30)

	containerRoot := filepath.Join(h.root, "containers")
	appDir := filepath.Join(h.root, "app")

	socket := filepath.Join(h.root, "d.sock")
	srv, err := daemon.NewServer(socket, filepath.Join(h.root, "data"), filepath.Join(h.root, "dex"))
	require.NoError(t, err)
	require.NoError(t, srv.Run())
	t.Cleanup(srv.Stop)
	h.daemon = srv

	conn := daemon.NewConnector(daemon.UnixDialer(socket))
	t.Cleanup(func() { conn.Close() })

	helperContainers, err := container.New(containerRoot)
	require.NoError(t, err)
	svc := helper.NewService(appDir, containerRoot, helperContainers,
		helper.WithFreeSpace(func(path string) (int64, error) {
			if path == containerRoot {
				return h.externalFree.Load(), nil
			}
			return h.internalFree.Load(), nil
		}))
	hsrv := helper.NewServer("127.0.0.1:0", svc)
	require.NoError(t, hsrv.Run())
	t.Cleanup(hsrv.Stop)

	client, err := helper.Dial(hsrv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	h.containers, err = container.New(containerRoot)
	require.NoError(t, err)

	h.reg, err = registry.New(nil)
	require.NoError(t, err)
	t.Cleanup(h.reg.Close)

	h.journal, err = journal.Open(journal.Config{Dir: filepath.Join(h.root, "journal")})
	require.NoError(t, err)
	t.Cleanup(func() { h.journal.Close() })

	var containers storage.Containers = h.containers
	if opts.wrapContainers != nil {
		containers = opts.wrapContainers(h.containers)
	}
	h.env = &storage.Env{
		AppDir:        appDir,
		PrivateAppDir: filepath.Join(h.root, "app-private"),
		LibDir:        filepath.Join(h.root, "app-lib"),
		ContainerKey:  "device-key",
		Containers:    containers,
		InstallLock:   &sync.Mutex{},
	}
	h.agents = verify.NewLocalDirectory()
	h.client = daemon.NewClient(conn)

	var (
		helperDep Helper = client
		daemonDep Daemon = h.client
	)
	if opts.wrapHelper != nil {
		helperDep = opts.wrapHelper(client)
	}
	if opts.wrapDaemon != nil {
		daemonDep = opts.wrapDaemon(h.client)
	}

	h.in = New(Config{
		VerificationEnabled: opts.verification,
		VerificationTimeout: opts.timeout,
		BindRetryDelay:      10 * time.Millisecond,
	}, Deps{
		Env:      h.env,
		Helper:   helperDep,
		Daemon:   daemonDep,
		Registry: h.reg,
		Journal:  h.journal,
		Agents:   h.agents,
		Hooks:    opts.hooks,
		Recorder: h.rec,
	})
	t.Cleanup(h.in.Stop)
	return h
}

type completion struct {
	name   string
	status dto.Status
}

func awaitCompletion(t *testing.T, ch <-chan completion) completion {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("no completion")
		return completion{}
	}
}

// buildPackage writes an archive of pkg at version signed with cert.
func buildPackage(t *testing.T, pkg string, version int64, cert string) string {
	path := filepath.Join(t.TempDir(), pkg+".pkg")
	require.NoError(t, archive.BuildFile(path, archive.Manifest{Package: pkg, Version: version}, []byte("code"), []byte(cert), map[string][]byte{
		"lib/libnative.so": []byte("elf"),
	}))
	return path
}

func (h *harness) submitInstall(path string, flags dto.InstallFlags) <-chan completion {
	ch := make(chan completion, 1)
	h.in.Install(dto.NewInstallRequest(path, flags, "com.example.store", dto.InstallObserverFunc(func(name string, status dto.Status) {
		ch <- completion{name, status}
	})))
	return ch
}

func (h *harness) install(path string, flags dto.InstallFlags) completion {
	return awaitCompletion(h.t, h.submitInstall(path, flags))
}

// leftovers lists files under the placement directories that no registry
// entry owns.
func (h *harness) leftovers() []string {
	owned := map[string]bool{}
	for _, e := range h.reg.List() {
		owned[e.Storage.CodePath] = true
		owned[e.Storage.ResourcePath] = true
		owned[e.Storage.LibDir] = true
	}

	var out []string
	for _, dir := range []string{h.env.AppDir, h.env.PrivateAppDir, h.env.LibDir} {
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			p := filepath.Join(dir, e.Name())
			if !owned[p] {
				out = append(out, p)
			}
		}
	}
	ids, err := h.containers.List()
	require.NoError(h.t, err)
	for _, id := range ids {
		found := false
		for _, e := range h.reg.List() {
			if e.Storage.ContainerID == id {
				found = true
			}
		}
		if !found {
			out = append(out, "container:"+id)
		}
	}
	sort.Strings(out)
	return out
}

func TestInstall_FreshPackage(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	done := h.install(buildPackage(t, "com.example.app", 1, "cert"), 0)
	require.Equal(t, completion{"com.example.app", dto.Succeeded}, done)

	require.Equal(t, []Phase{
		PhaseQueued, PhaseBinding, PhaseCopying, PhaseScanning,
		PhaseCommitting, PhaseRenaming, PhaseFinalizing,
	}, h.rec.trace())

	entry, ok := h.reg.Get("com.example.app")
	require.True(t, ok)
	require.Equal(t, storage.FirstApplicationUID, entry.UID)
	require.Equal(t, int64(1), entry.Version)
	require.Equal(t, archive.Digest([]byte("cert")), entry.CertDigest)
	require.Equal(t, storage.KindLooseFile, entry.Storage.Kind)
	require.Equal(t, filepath.Join(h.env.AppDir, "com.example.app-1.pkg"), entry.Storage.CodePath)

	require.FileExists(t, entry.Storage.CodePath)
	require.FileExists(t, filepath.Join(entry.Storage.LibDir, "libnative.so"))
	require.FileExists(t, h.daemon.DexPath(entry.Storage.CodePath))
	require.DirExists(t, filepath.Join(h.root, "data", "com.example.app"))
	require.Empty(t, h.leftovers())
	require.Empty(t, h.journal.Pending())
	require.Zero(t, h.in.Pending())
}

func TestInstall_ForwardLockedContainer(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	done := h.install(buildPackage(t, "com.example.app", 1, "cert"), dto.FlagExternal|dto.FlagForwardLock)
	require.Equal(t, dto.Succeeded, done.status)

	entry, _ := h.reg.Get("com.example.app")
	require.Equal(t, storage.KindContainer, entry.Storage.Kind)
	require.Equal(t, "com.example.app-1", entry.Storage.ContainerID)
	require.True(t, entry.Storage.External)
	require.FileExists(t, entry.Storage.CodePath)

	gid, ok := h.containers.Group(entry.Storage.ContainerID, storage.PublicResFileName)
	require.True(t, ok)
	require.Equal(t, storage.SharedGID(entry.UID), gid)
	require.Empty(t, h.leftovers())
}

func TestInstall_ReplaceRetiresOldVersionAfterCallback(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)
	v1, _ := h.reg.Get("com.example.app")

	oldPresentAtCallback := make(chan bool, 1)
	h.in.Install(dto.NewInstallRequest(buildPackage(t, "com.example.app", 2, "cert"), dto.FlagReplace, "", dto.InstallObserverFunc(
		func(_ string, status dto.Status) {
			_, err := os.Stat(v1.Storage.CodePath)
			oldPresentAtCallback <- err == nil && status.OK()
		})))

	select {
	case present := <-oldPresentAtCallback:
		require.True(t, present, "the old version must still exist when the observer runs")
	case <-time.After(waitTimeout):
		t.Fatal("no completion")
	}
	require.Eventually(t, func() bool { return h.in.Pending() == 0 }, waitTimeout, 10*time.Millisecond)

	v2, _ := h.reg.Get("com.example.app")
	require.Equal(t, int64(2), v2.Version)
	require.Equal(t, v1.UID, v2.UID)
	require.Equal(t, filepath.Join(h.env.AppDir, "com.example.app-2.pkg"), v2.Storage.CodePath)
	require.NoFileExists(t, v1.Storage.CodePath)
	require.NoFileExists(t, h.daemon.DexPath(v1.Storage.CodePath))
	require.Empty(t, h.leftovers())
}

func TestInstall_RegistryConflicts(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)

	h.rec.reset()
	done := h.install(buildPackage(t, "com.example.app", 2, "cert"), 0)
	require.Equal(t, dto.FailedAlreadyExists, done.status)
	require.NotContains(t, h.rec.trace(), PhaseCopying, "a name collision is caught before any copy")

	done = h.install(buildPackage(t, "com.example.app", 2, "other-cert"), dto.FlagReplace)
	require.Equal(t, dto.FailedUpdateIncompatible, done.status)

	entry, _ := h.reg.Get("com.example.app")
	require.Equal(t, int64(1), entry.Version)
	require.Empty(t, h.leftovers())
	require.Empty(t, h.journal.Pending())
}

type rejectingHook struct {
	scan, commit bool
}

func (r *rejectingHook) OnScan(*archive.Info) bool     { return !r.scan }
func (r *rejectingHook) OnCommit(*registry.Entry) bool { return !r.commit }

func TestInstall_RollbackLeavesNothing(t *testing.T) {
	for _, tc := range []struct {
		name  string
		hook  *rejectingHook
		flags dto.InstallFlags
	}{
		{"scan rejected, loose file", &rejectingHook{scan: true}, 0},
		{"scan rejected, container", &rejectingHook{scan: true}, dto.FlagExternal},
		{"commit rejected, loose file", &rejectingHook{commit: true}, dto.FlagForwardLock},
		{"commit rejected, container", &rejectingHook{commit: true}, dto.FlagExternal | dto.FlagForwardLock},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reg := hooks.NewRegistry()
			reg.Register("reject", tc.hook)
			h := newHarness(t, harnessOptions{hooks: reg})

			done := h.install(buildPackage(t, "com.example.app", 1, "cert"), tc.flags)
			require.Equal(t, dto.FailedInternalError, done.status)

			_, ok := h.reg.Get("com.example.app")
			require.False(t, ok)
			require.Empty(t, h.leftovers())
			require.NoDirExists(t, filepath.Join(h.root, "data", "com.example.app"))
			require.Empty(t, h.journal.Pending())
		})
	}
}

func TestInstall_InvalidInputs(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	done := h.install(filepath.Join(t.TempDir(), "missing.pkg"), 0)
	require.Equal(t, dto.FailedInvalidURI, done.status)

	junk := filepath.Join(t.TempDir(), "junk.pkg")
	require.NoError(t, os.WriteFile(junk, []byte("not a zip"), 0o644))
	require.Equal(t, dto.FailedInvalidArchive, h.install(junk, 0).status)

	path := buildPackage(t, "com.example.app", 1, "cert")
	require.Equal(t, dto.FailedInvalidInstallLocation, h.install(path, dto.FlagInternal|dto.FlagExternal).status)

	req := dto.NewInstallRequest(path, 0, "", nil)
	req.ExpectedDigest = "deadbeef"
	ch := make(chan completion, 1)
	req.Observer = dto.InstallObserverFunc(func(name string, status dto.Status) { ch <- completion{name, status} })
	h.in.Install(req)
	require.Equal(t, dto.FailedPackageChanged, awaitCompletion(t, ch).status)

	h.internalFree.Store(0)
	h.externalFree.Store(0)
	require.Equal(t, dto.FailedInsufficientStorage, h.install(path, 0).status)
	require.Empty(t, h.leftovers())
}

func TestInstall_TestOnlyNeedsFlag(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	path := filepath.Join(t.TempDir(), "test.pkg")
	require.NoError(t, archive.BuildFile(path, archive.Manifest{Package: "com.example.test", Version: 1, TestOnly: true},
		[]byte("code"), []byte("cert"), nil))

	require.Equal(t, dto.FailedInvalidArchive, h.install(path, 0).status)
	require.Empty(t, h.leftovers())
	require.Equal(t, dto.Succeeded, h.install(path, dto.FlagAllowTest).status)
}

func TestInstall_FIFO(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	var (
		mu       sync.Mutex
		order    []string
		statuses []dto.Status
		wg       sync.WaitGroup
	)
	names := []string{"com.example.a", "com.example.b", "com.example.c", "com.example.d"}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = buildPackage(t, n, 1, "cert")
	}
	for _, p := range paths {
		wg.Add(1)
		h.in.Install(dto.NewInstallRequest(p, 0, "", dto.InstallObserverFunc(func(name string, status dto.Status) {
			defer wg.Done()
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			statuses = append(statuses, status)
		})))
	}
	wg.Wait()
	require.Equal(t, names, order)
	for _, status := range statuses {
		require.Equal(t, dto.Succeeded, status)
	}

	uids := map[int]bool{}
	for _, e := range h.reg.List() {
		uids[e.UID] = true
	}
	require.Len(t, uids, len(names))
}

func TestInstall_AfterStop(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.in.Stop()

	done := h.install(buildPackage(t, "com.example.app", 1, "cert"), 0)
	require.Equal(t, dto.FailedInternalError, done.status)
}

func TestRecoverAfterCrash(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)

	// an item that copied and then died
	args := storage.NewInstallArgs(h.env, "file://"+buildPackage(t, "com.example.crashed", 1, "cert"), 0, dto.LocationInternal)
	require.Equal(t, dto.Succeeded, args.Copy(context.Background(), true))
	_, err := h.journal.Begin(journal.Record{Kind: "install", Storage: []storage.Descriptor{args.Descriptor()}})
	require.NoError(t, err)
	require.NotEmpty(t, h.leftovers())

	recovered, err := h.journal.Recover(context.Background(), h.env, h.reg, h.client)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Empty(t, h.leftovers())

	entry, _ := h.reg.Get("com.example.app")
	require.FileExists(t, entry.Storage.CodePath)
}

func TestRecover_InstallCommittedBeforeRename(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})

	args := storage.NewInstallArgs(h.env, "file://"+buildPackage(t, "com.example.app", 1, "cert"), 0, dto.LocationInternal)
	require.Equal(t, dto.Succeeded, args.Copy(ctx, true))
	_, err := h.journal.Begin(journal.Record{Kind: "install", Package: "com.example.app", Storage: []storage.Descriptor{args.Descriptor()}})
	require.NoError(t, err)
	entry, err := h.reg.Commit(registry.Entry{Name: "com.example.app", Version: 1, Storage: args.Descriptor()}, false)
	require.NoError(t, err)
	require.NoError(t, h.client.Install(ctx, "com.example.app", entry.UID, entry.UID))

	_, err = h.journal.Recover(ctx, h.env, h.reg, h.client)
	require.NoError(t, err)

	_, ok := h.reg.Get("com.example.app")
	require.False(t, ok, "the registry must not point at the removed scratch file")
	require.NoFileExists(t, args.CodePath())
	require.NoDirExists(t, filepath.Join(h.root, "data", "com.example.app"))
	require.Empty(t, h.leftovers())
	require.Empty(t, h.journal.Pending())
}

func TestRecover_ReplaceRenamedBeforeCommitted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)
	v1, _ := h.reg.Get("com.example.app")

	args := storage.NewInstallArgs(h.env, "file://"+buildPackage(t, "com.example.app", 2, "cert"), dto.FlagReplace, dto.LocationInternal)
	require.Equal(t, dto.Succeeded, args.Copy(ctx, true))
	seq, err := h.journal.Begin(journal.Record{Kind: "install", Package: "com.example.app", Storage: []storage.Descriptor{args.Descriptor()}, Previous: &v1})
	require.NoError(t, err)
	_, err = h.reg.Commit(registry.Entry{Name: "com.example.app", Version: 2, CertDigest: v1.CertDigest, Storage: args.Descriptor()}, true)
	require.NoError(t, err)
	require.NoError(t, args.Rename(dto.Succeeded, "com.example.app", v1.Storage.Name()))
	require.NoError(t, h.journal.Placed(seq, []storage.Descriptor{args.Descriptor()}))
	_, err = h.reg.Update("com.example.app", func(e *registry.Entry) error {
		e.Storage = args.Descriptor()
		return nil
	})
	require.NoError(t, err)

	_, err = h.journal.Recover(ctx, h.env, h.reg, h.client)
	require.NoError(t, err)

	entry, _ := h.reg.Get("com.example.app")
	require.Equal(t, int64(1), entry.Version)
	require.Equal(t, v1.Storage, entry.Storage)
	require.FileExists(t, v1.Storage.CodePath)
	require.NoFileExists(t, args.CodePath())
	require.Empty(t, h.leftovers())
	require.Empty(t, h.journal.Pending())
}

func TestRecover_MoveUpdatedBeforeCommitted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)
	before, _ := h.reg.Get("com.example.app")

	src, err := storage.FromDescriptor(h.env, before.Storage)
	require.NoError(t, err)
	target := storage.NewMoveTargetArgs(h.env, src, dto.LocationExternal)
	require.Equal(t, dto.Succeeded, target.Copy(ctx, false))
	_, err = h.journal.Begin(journal.Record{Kind: journal.KindMove, Package: "com.example.app", Storage: []storage.Descriptor{target.Descriptor()}, Previous: &before})
	require.NoError(t, err)
	require.NoError(t, h.client.MoveDex(ctx, src.CodePath(), target.CodePath()))
	_, err = h.reg.Update("com.example.app", func(e *registry.Entry) error {
		e.Storage = target.Descriptor()
		return nil
	})
	require.NoError(t, err)

	_, err = h.journal.Recover(ctx, h.env, h.reg, h.client)
	require.NoError(t, err)

	entry, _ := h.reg.Get("com.example.app")
	require.Equal(t, before.Storage, entry.Storage)
	require.FileExists(t, entry.Storage.CodePath)
	require.FileExists(t, h.daemon.DexPath(entry.Storage.CodePath))
	require.Empty(t, h.leftovers())
	require.Empty(t, h.journal.Pending())
}

func TestRecover_CommittedMoveKeepsTarget(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)
	before, _ := h.reg.Get("com.example.app")

	src, err := storage.FromDescriptor(h.env, before.Storage)
	require.NoError(t, err)
	target := storage.NewMoveTargetArgs(h.env, src, dto.LocationExternal)
	require.Equal(t, dto.Succeeded, target.Copy(ctx, false))
	seq, err := h.journal.Begin(journal.Record{Kind: journal.KindMove, Package: "com.example.app", Storage: []storage.Descriptor{target.Descriptor()}, Previous: &before})
	require.NoError(t, err)
	_, err = h.reg.Update("com.example.app", func(e *registry.Entry) error {
		e.Storage = target.Descriptor()
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.journal.Committed(seq, []storage.Descriptor{before.Storage}))

	recovered, err := h.journal.Recover(ctx, h.env, h.reg, h.client)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.True(t, recovered[0].Committed)

	entry, _ := h.reg.Get("com.example.app")
	require.Equal(t, target.Descriptor(), entry.Storage)
	require.FileExists(t, entry.Storage.CodePath)
	require.NoFileExists(t, before.Storage.CodePath)
	require.Empty(t, h.leftovers())
}

func TestInstall_CleanRunLeavesNothingToRecover(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 2, "cert"), dto.FlagReplace).status)
	require.Eventually(t, func() bool { return h.in.Pending() == 0 }, waitTimeout, 10*time.Millisecond)

	// a clean run leaves nothing for recovery
	recovered, err := h.journal.Recover(context.Background(), h.env, h.reg, h.client)
	require.NoError(t, err)
	require.Empty(t, recovered)
	entry, _ := h.reg.Get("com.example.app")
	require.Equal(t, int64(2), entry.Version)
}
