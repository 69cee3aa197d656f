// Package builder implements the §4.6 construction interface: a thin,
// single-threaded convenience layer over pkg/cmap for callers assembling a
// map from scratch, wrapping each step in its own transaction so builder
// calls can be interleaved with direct cmap.Map use.
package builder

import (
	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/cmap"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// Builder accumulates darts and attribute bindings for a map under
// construction.
type Builder struct {
	m *cmap.Map
}

// New creates a builder for a fresh map of the given dimension.
func New(dim types.Dimension, opts ...cmap.Option) (*Builder, error) {
	m, err := cmap.New(dim, opts...)
	if err != nil {
		return nil, err
	}
	return &Builder{m: m}, nil
}

// AddDart allocates a single new, fully-free dart.
func (b *Builder) AddDart() (types.DartID, error) {
	var d types.DartID
	err := stm.Atomically(b.m.Runtime(), func(tx *stm.Txn) error {
		var err error
		d, err = b.m.AddDart(tx)
		return err
	})
	return d, err
}

// AddDarts allocates n new, fully-free darts.
func (b *Builder) AddDarts(n int) ([]types.DartID, error) {
	var darts []types.DartID
	err := stm.Atomically(b.m.Runtime(), func(tx *stm.Txn) error {
		var err error
		darts, err = b.m.AddDarts(tx, n)
		return err
	})
	return darts, err
}

// AddAttribute registers a new attribute storage of type T on the map
// under construction and returns the typed handle for direct use.
func AddAttribute[T any](b *Builder, name string, spec attribute.Spec[T]) *attribute.Storage[T] {
	return attribute.Register(b.m.Attrs(), b.m.Runtime(), name, spec)
}

// Build finalizes construction and returns the assembled map. The returned
// Map is a live, fully mutable cmap.Map — Build does not freeze it.
func (b *Builder) Build() *cmap.Map {
	return b.m
}
