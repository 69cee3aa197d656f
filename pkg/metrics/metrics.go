// Package metrics exposes Prometheus instrumentation for a map's STM
// runtime and dart/attribute population, adapted from the teacher's
// pkg/metrics: package-level metric vars registered at init, plus a
// Collector that polls a *cmap.Map on a ticker (the teacher's
// Collector.Start/collect pattern) rather than threading counters through
// every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DartsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmap_darts_total",
		Help: "Total number of allocated darts, including unused (free-listed) ones.",
	})

	DartsUnused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmap_darts_unused",
		Help: "Number of darts currently on the free list.",
	})

	AttributesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmap_attributes_registered",
		Help: "Number of attribute storages registered on the map's manager.",
	})

	TxnCommitsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmap_stm_commits_total",
		Help: "Total committed transactions observed on the runtime so far.",
	})

	TxnRetriesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmap_stm_retries_total",
		Help: "Total internal Atomically retries observed on the runtime so far.",
	})

	TxnConflictsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmap_stm_conflicts_total",
		Help: "Total TryAtomically conflicts surfaced to callers so far.",
	})
)

// Sampler is the slice of *cmap.Map the Collector needs; defined as an
// interface here (rather than importing pkg/cmap) to keep pkg/metrics free
// of a dependency on the core package it instruments.
type Sampler interface {
	Stats() Snapshot
}

// Snapshot is the shape of data a Collector polls once per tick.
type Snapshot struct {
	NumDarts      int
	NumUnused     int
	NumAttributes int
	Commits       uint64
	Retries       uint64
	Conflicts     uint64
}

// Collector polls a Sampler on an interval and republishes its snapshot as
// gauges, mirroring the teacher's metrics.Collector (NewCollector/Start/
// Stop/collect) but sampling a *cmap.Map instead of a cluster manager.
type Collector struct {
	sampler  Sampler
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector that samples at the given interval.
func NewCollector(s Sampler, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{sampler: s, interval: interval, stopCh: make(chan struct{})}
}

// Start begins polling in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts polling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	snap := c.sampler.Stats()
	DartsTotal.Set(float64(snap.NumDarts))
	DartsUnused.Set(float64(snap.NumUnused))
	AttributesRegistered.Set(float64(snap.NumAttributes))
	TxnCommitsTotal.Set(float64(snap.Commits))
	TxnRetriesTotal.Set(float64(snap.Retries))
	TxnConflictsTotal.Set(float64(snap.Conflicts))
}

// Handler returns the HTTP handler that exposes the registered metrics for
// scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
