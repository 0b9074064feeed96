package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sidecarStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hcdesk",
			Subsystem: "sidecar",
			Name:      "starts_total",
			Help:      "Number of successful backend starts.",
		}, []string{"mode"},
	)
	sidecarStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hcdesk",
			Subsystem: "sidecar",
			Name:      "start_failures_total",
			Help:      "Number of failed backend starts by reason.",
		}, []string{"reason"},
	)
	handshakeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hcdesk",
			Subsystem: "sidecar",
			Name:      "handshake_seconds",
			Help:      "Time from spawn until the backend reported its port.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	handshakeLines = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hcdesk",
			Subsystem: "sidecar",
			Name:      "handshake_lines",
			Help:      "Output lines read before the port line was found.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)
	sidecarExits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hcdesk",
			Subsystem: "sidecar",
			Name:      "exits_total",
			Help:      "Number of times a running backend exited or was stopped.",
		},
	)
	sidecarUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hcdesk",
			Subsystem: "sidecar",
			Name:      "up",
			Help:      "1 while a backend child process is running.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{sidecarStarts, sidecarStartFailures, handshakeSeconds, handshakeLines, sidecarExits, sidecarUp}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr and blocks until the server stops.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(mode string) {
	if regOK.Load() {
		sidecarStarts.WithLabelValues(mode).Inc()
	}
}

func IncStartFailure(reason string) {
	if regOK.Load() {
		sidecarStartFailures.WithLabelValues(reason).Inc()
	}
}

func ObserveHandshake(d time.Duration, lines int) {
	if regOK.Load() {
		handshakeSeconds.Observe(d.Seconds())
		handshakeLines.Observe(float64(lines))
	}
}

func IncExit() {
	if regOK.Load() {
		sidecarExits.Inc()
	}
}

func SetUp(up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1
		}
		sidecarUp.Set(v)
	}
}
