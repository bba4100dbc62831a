package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/installer"
	"github.com/vadiminshakov/installd/core/verify"
	"github.com/vadiminshakov/installd/io/daemon"
)

func TestRecorder(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ItemFinished("install", dto.Succeeded, time.Second)
	m.ItemFinished("install", dto.Succeeded, time.Second)
	m.ItemFinished("move", dto.FailedInsufficientStorage, time.Millisecond)
	m.PhaseFinished("install", installer.PhaseCopying, 10*time.Millisecond)
	m.BindRetry()
	m.VerificationFinished(verify.TimedOut)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Items.WithLabelValues("install", "SUCCESS")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Items.WithLabelValues("move", "INSUFFICIENT_STORAGE")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BindRetries))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("timed-out")))
	require.Equal(t, 1, testutil.CollectAndCount(m.PhaseDuration))
}

func TestCallObserver(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCall("ping", time.Millisecond, nil)
	m.ObserveCall("install", time.Millisecond, errors.Wrap(daemon.ErrTimeout, "install"))
	m.ObserveCall("install", time.Millisecond, daemon.ErrDisconnected)
	m.ObserveCall("remove", time.Millisecond, errors.New("daemon replied -1"))
	m.ObserveReconnect(nil)
	m.ObserveReconnect(errors.New("refused"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.DaemonCalls.WithLabelValues("ping", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DaemonCalls.WithLabelValues("install", "timeout")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DaemonCalls.WithLabelValues("install", "disconnected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DaemonCalls.WithLabelValues("remove", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DaemonReconnects.WithLabelValues("error")))
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.BindRetry()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "installd_bind_failures_total 1")
}
