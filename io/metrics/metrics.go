// Package metrics exports installer and transport measurements to
// Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/installer"
	"github.com/vadiminshakov/installd/core/verify"
	"github.com/vadiminshakov/installd/io/daemon"
)

const namespace = "installd"

var durationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds all collectors.
type Metrics struct {
	// installer metrics
	Items         *prometheus.CounterVec
	ItemDuration  *prometheus.HistogramVec
	PhaseDuration *prometheus.HistogramVec
	BindRetries   prometheus.Counter
	Verifications *prometheus.CounterVec

	// transport metrics
	DaemonCalls        *prometheus.CounterVec
	DaemonCallDuration *prometheus.HistogramVec
	DaemonReconnects   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var (
	_ installer.Recorder  = (*Metrics)(nil)
	_ daemon.CallObserver = (*Metrics)(nil)
)

// New registers the collectors with reg. A nil reg uses the default
// Prometheus registry.
func New(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		Items: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Finished work items by kind and status",
			},
			[]string{"kind", "status"},
		),
		ItemDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Time from submission to completion of a work item",
				Buckets:   durationBuckets,
			},
			[]string{"kind"},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Time spent in each work item phase",
				Buckets:   durationBuckets,
			},
			[]string{"kind", "phase"},
		),
		BindRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bind_failures_total",
				Help:      "Failed attempts to reach the storage helper",
			},
		),
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Finished package verifications by result",
			},
			[]string{"result"},
		),

		DaemonCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "daemon",
				Name:      "calls_total",
				Help:      "Storage daemon commands by verb and outcome",
			},
			[]string{"verb", "outcome"},
		),
		DaemonCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "daemon",
				Name:      "call_duration_seconds",
				Help:      "Storage daemon command round trip time",
				Buckets:   durationBuckets,
			},
			[]string{"verb"},
		),
		DaemonReconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "daemon",
				Name:      "reconnects_total",
				Help:      "Connection attempts to the storage daemon by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) ItemFinished(kind string, status dto.Status, d time.Duration) {
	m.Items.WithLabelValues(kind, status.String()).Inc()
	m.ItemDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) PhaseFinished(kind string, phase installer.Phase, d time.Duration) {
	m.PhaseDuration.WithLabelValues(kind, string(phase)).Observe(d.Seconds())
}

func (m *Metrics) BindRetry() {
	m.BindRetries.Inc()
}

func (m *Metrics) VerificationFinished(result verify.Result) {
	m.Verifications.WithLabelValues(result.String()).Inc()
}

// ObserveCall counts a daemon command. Timeouts are counted apart from
// other failures since they leave the command outcome unknown.
func (m *Metrics) ObserveCall(verb string, d time.Duration, err error) {
	m.DaemonCalls.WithLabelValues(verb, callOutcome(err)).Inc()
	m.DaemonCallDuration.WithLabelValues(verb).Observe(d.Seconds())
}

func (m *Metrics) ObserveReconnect(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.DaemonReconnects.WithLabelValues(outcome).Inc()
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, daemon.ErrTimeout):
		return "timeout"
	case errors.Is(err, daemon.ErrDisconnected):
		return "disconnected"
	default:
		return "error"
	}
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Server exposes the metrics endpoint.
type Server struct {
	srv *http.Server
}

// Serve starts serving /metrics on addr in the background.
func Serve(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}

	go func() {
		log.Infof("metrics listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return s
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
