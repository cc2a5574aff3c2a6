// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes Prometheus metrics for the write-coalescing layer:
// how many flushes ran, how many operations each carried, how many same-key writes
// were absorbed, and how long the backend took. When disabled every Observe call is
// a no-op, so the scheduler can call it unconditionally.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the module.
//
// MetricsAddr, when non-empty, starts a dedicated HTTP server serving /metrics. If
// /metrics is already mounted elsewhere (see Handler), leave it empty.
type Config struct {
	Enabled     bool
	MetricsAddr string
}

// FlushStats describes one completed flush.
type FlushStats struct {
	Puts     int
	Deletes  int
	Deduped  int
	Waiters  int
	Duration time.Duration
	Err      error
}

var (
	modEnabled atomic.Bool

	flushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_connector_flushes_total",
		Help: "Bulk write requests sent to the backend, by outcome",
	}, []string{"outcome"})
	operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_connector_flushed_operations_total",
		Help: "Operations written through bulk requests, by kind",
	}, []string{"kind"})
	dedupedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storage_connector_deduplicated_operations_total",
		Help: "Operations replaced by a later write to the same key within one window",
	})
	waitersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storage_connector_completed_callbacks_total",
		Help: "Set/delete callbacks completed by flushes",
	})
	operationsPerFlush = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storage_connector_operations_per_flush",
		Help:    "Distribution of operations per bulk write",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})
	flushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storage_connector_flush_duration_seconds",
		Help:    "Backend latency of bulk writes",
		Buckets: prometheus.DefBuckets,
	})
	pendingOperations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storage_connector_pending_operations",
		Help: "Operations accumulated in the current window",
	})
)

func init() {
	prometheus.MustRegister(flushesTotal, operationsTotal, dedupedTotal, waitersTotal, operationsPerFlush, flushDuration, pendingOperations)
}

// Enable configures the module. Safe to call more than once.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.Enabled && cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether observations are recorded.
func Enabled() bool { return modEnabled.Load() }

// ObserveFlush records the outcome of one bulk write.
func ObserveFlush(s FlushStats) {
	if !modEnabled.Load() {
		return
	}
	if s.Err != nil {
		flushesTotal.WithLabelValues("error").Inc()
	} else {
		flushesTotal.WithLabelValues("ok").Inc()
		operationsTotal.WithLabelValues("put").Add(float64(s.Puts))
		operationsTotal.WithLabelValues("delete").Add(float64(s.Deletes))
	}
	operationsPerFlush.Observe(float64(s.Puts + s.Deletes))
	flushDuration.Observe(s.Duration.Seconds())
	if s.Deduped > 0 {
		dedupedTotal.Add(float64(s.Deduped))
	}
	waitersTotal.Add(float64(s.Waiters))
}

// SetPending reports the size of the window currently accumulating.
func SetPending(n int) {
	if !modEnabled.Load() {
		return
	}
	pendingOperations.Set(float64(n))
}

// Handler returns the Prometheus exposition handler for mounting on an existing mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// startMetricsEndpoint exposes /metrics on addr in a background goroutine.
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
