package main

import (
	"github.com/cuemby/cmap/pkg/cmap"
	"github.com/cuemby/cmap/pkg/metrics"
)

// mapSampler adapts a *cmap.Map to metrics.Sampler, translating cmap.Stats
// and the map's stm.Runtime.Stats() into a metrics.Snapshot. This lives in
// the CLI rather than pkg/metrics so that package never needs to import
// pkg/cmap.
type mapSampler struct {
	m *cmap.Map
}

func newSampler(m *cmap.Map) metrics.Sampler {
	return mapSampler{m: m}
}

func (s mapSampler) Stats() metrics.Snapshot {
	stats := s.m.Stats()
	rt := s.m.Runtime().Stats()
	return metrics.Snapshot{
		NumDarts:      stats.NumDarts,
		NumUnused:     stats.NumUnused,
		NumAttributes: len(s.m.Attrs().Names()),
		Commits:       rt.Commits,
		Retries:       rt.Retries,
		Conflicts:     rt.Conflicts,
	}
}
