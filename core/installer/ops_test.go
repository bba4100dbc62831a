package installer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/installd/core/dto"
)

type measured struct {
	stats dto.PackageStats
	ok    bool
}

func (h *harness) measure(pkg string) measured {
	ch := make(chan measured, 1)
	h.in.Measure(&dto.MeasureRequest{Package: pkg, Observer: dto.MeasureObserverFunc(func(stats dto.PackageStats, ok bool) {
		ch <- measured{stats, ok}
	})})
	select {
	case m := <-ch:
		return m
	case <-time.After(waitTimeout):
		h.t.Fatal("no measurement")
		return measured{}
	}
}

func (h *harness) delete(pkg string, keepData bool) completion {
	ch := make(chan completion, 1)
	h.in.Delete(&dto.DeleteRequest{Package: pkg, KeepData: keepData, Observer: dto.DeleteObserverFunc(func(name string, status dto.Status) {
		ch <- completion{name, status}
	})})
	return awaitCompletion(h.t, ch)
}

func TestMeasure(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.loose", 1, "cert"), 0).status)
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.boxed", 1, "cert"), dto.FlagExternal).status)

	m := h.measure("com.example.loose")
	require.True(t, m.ok)
	require.Equal(t, "com.example.loose", m.stats.Package)
	entry, _ := h.reg.Get("com.example.loose")
	info, err := os.Stat(entry.Storage.CodePath)
	require.NoError(t, err)
	require.GreaterOrEqual(t, m.stats.CodeSize, info.Size())

	m = h.measure("com.example.boxed")
	require.True(t, m.ok)
	require.Positive(t, m.stats.CodeSize)

	m = h.measure("com.example.none")
	require.False(t, m.ok)
	require.Equal(t, "com.example.none", m.stats.Package)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), 0).status)
	entry, _ := h.reg.Get("com.example.app")

	require.Equal(t, completion{"com.example.app", dto.Succeeded}, h.delete("com.example.app", false))

	_, ok := h.reg.Get("com.example.app")
	require.False(t, ok)
	require.NoFileExists(t, entry.Storage.CodePath)
	require.NoFileExists(t, h.daemon.DexPath(entry.Storage.CodePath))
	require.NoDirExists(t, filepath.Join(h.root, "data", "com.example.app"))
	require.Empty(t, h.leftovers())

	require.Equal(t, dto.FailedDoesntExist, h.delete("com.example.app", false).status)
}

func TestDelete_KeepData(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 1, "cert"), dto.FlagExternal).status)

	require.Equal(t, dto.Succeeded, h.delete("com.example.app", true).status)
	require.DirExists(t, filepath.Join(h.root, "data", "com.example.app"))
	require.Empty(t, h.leftovers())

	// a reinstall gets a fresh uid but keeps working on the kept data dir
	require.Equal(t, dto.Succeeded, h.install(buildPackage(t, "com.example.app", 2, "cert"), 0).status)
}

func TestStop_FailsParkedAndQueued(t *testing.T) {
	h := newHarness(t, harnessOptions{verification: true, timeout: time.Minute})
	reqs := tokenAgent(t, h)

	parked := h.submitInstall(buildPackage(t, "com.example.first", 1, "cert"), 0)
	awaitRequest(t, reqs)
	queued := h.submitInstall(buildPackage(t, "com.example.second", 1, "cert"), 0)

	h.in.Stop()

	require.Equal(t, dto.FailedInternalError, awaitCompletion(t, parked).status)
	require.Equal(t, dto.FailedInternalError, awaitCompletion(t, queued).status)
	require.Zero(t, h.in.Pending())
	require.Empty(t, h.leftovers())
}
