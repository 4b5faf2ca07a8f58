// Copyright 2025 Google LLC.
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tscsim/internal/simulate"
	"tscsim/internal/tscmath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promMetricPrefix = "tscsim_"

// Exporter implements simulate.Observer. It owns its registry so that several
// exporters can coexist, e.g. in tests.
type Exporter struct {
	registry    *prometheus.Registry
	guestTSC    *prometheus.GaugeVec
	hostTSC     *prometheus.GaugeVec
	samples     *prometheus.CounterVec
	migrations  *prometheus.CounterVec
	arithErrors *prometheus.CounterVec
}

var _ simulate.Observer = (*Exporter)(nil)

// NewExporter creates an exporter with all metrics registered.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		guestTSC: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: promMetricPrefix + "guest_tsc",
				Help: "Guest TSC at the most recent simulated second",
			},
			[]string{"format", "segment"},
		),
		hostTSC: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: promMetricPrefix + "host_tsc",
				Help: "Host TSC at the most recent simulated second",
			},
			[]string{"format", "segment"},
		),
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: promMetricPrefix + "samples_total",
				Help: "Simulated seconds evaluated",
			},
			[]string{"format"},
		),
		migrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: promMetricPrefix + "migrations_total",
				Help: "Migrations performed",
			},
			[]string{"format"},
		),
		arithErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: promMetricPrefix + "arith_errors_total",
				Help: "Simulations aborted by an arithmetic error, by kind",
			},
			[]string{"format", "kind"},
		),
	}
	e.registry.MustRegister(e.guestTSC, e.hostTSC, e.samples, e.migrations, e.arithErrors)
	return e
}

// ObserveSample records the TSC values of one simulated second.
func (e *Exporter) ObserveSample(f tscmath.Format, s simulate.Sample) {
	format, segment := f.Name(), strconv.Itoa(s.Segment)
	e.guestTSC.WithLabelValues(format, segment).Set(float64(s.GuestTSC))
	e.hostTSC.WithLabelValues(format, segment).Set(float64(s.HostTSC))
	e.samples.WithLabelValues(format).Inc()
}

// ObserveMigration counts a migration.
func (e *Exporter) ObserveMigration(f tscmath.Format, _ simulate.Migration) {
	e.migrations.WithLabelValues(f.Name()).Inc()
}

// ObserveError counts a failed simulation by error kind.
func (e *Exporter) ObserveError(f tscmath.Format, err error) {
	e.arithErrors.WithLabelValues(f.Name(), tscmath.ErrorKind(err)).Inc()
}

// Handler serves the exporter's registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on listenAddr and returns
// immediately. The caller shuts the server down.
func (e *Exporter) Serve(listenAddr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	slog.Info("Starting Prometheus metrics server", slog.String("address", listenAddr))
	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Prometheus HTTP server ListenAndServe error", slog.String("error", err.Error()))
		}
	}()
	return server
}
