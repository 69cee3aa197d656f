// Package cmap implements the programmatic facade of §6.1: a Map composes
// a dart store, the orbit walker, and an attribute manager behind link,
// unlink, sew, and unsew operations, plus their force_ and try_ variants.
package cmap

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/dartstore"
	"github.com/cuemby/cmap/pkg/log"
	"github.com/cuemby/cmap/pkg/orbit"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// Error kinds per §7. attribute/stm errors are re-exported here so callers
// of this package only need to import one error taxonomy.
var (
	ErrDartNotFree         = dartstore.ErrDartNotFree
	ErrLink                = errors.New("cmap: link precondition violated")
	ErrAttributeMerge      = attribute.ErrAttributeMerge
	ErrAttributeSplit      = attribute.ErrAttributeSplit
	ErrIncompleteAttribute = attribute.ErrIncompleteAttribute
	ErrTransactionConflict = stm.ErrTransactionConflict
)

// Map is a single combinatorial-map instance: process-wide state owned by
// one dart store, β table, and attribute manager (§5 resource policy).
type Map struct {
	rt    *stm.Runtime
	dim   types.Dimension
	darts *dartstore.Store
	attrs *attribute.Manager
	log   zerolog.Logger
}

// Option configures a Map at construction time.
type Option func(*Map)

// WithLogger overrides the default component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Map) { m.log = l }
}

// New builds an empty map of the given dimension. dim must be 1, 2, or 3
// (§4.5 treats 3-sew as optional, but the dimension itself must still be
// in range for link/sew at any i to be meaningful).
func New(dim types.Dimension, opts ...Option) (*Map, error) {
	if dim < 1 || dim > types.MaxDimension {
		return nil, fmt.Errorf("%w: dimension must be 1..%d, got %d", ErrLink, types.MaxDimension, dim)
	}
	rt := stm.NewRuntime()
	m := &Map{
		rt:    rt,
		dim:   dim,
		darts: dartstore.New(rt, dim),
		attrs: attribute.NewManager(),
		log:   log.WithComponent("cmap"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Runtime exposes the underlying STM runtime so callers can drive their own
// atomically/try_atomically blocks that mix map operations with other
// transactional state.
func (m *Map) Runtime() *stm.Runtime { return m.rt }

// Dim returns the map's dimension bound.
func (m *Map) Dim() types.Dimension { return m.dim }

// Attrs exposes the attribute manager so callers can Register typed
// attribute storages bound to this map's cell kinds.
func (m *Map) Attrs() *attribute.Manager { return m.attrs }

func (m *Map) checkDim(i types.Dimension) error {
	if i < 1 || i > m.dim {
		return fmt.Errorf("%w: dimension %d out of range for a %d-map", ErrLink, i, m.dim)
	}
	return nil
}

// --- dart lifecycle (§6.1) ---

// AddDart allocates a single new, fully-free dart.
func (m *Map) AddDart(tx *stm.Txn) (types.DartID, error) {
	return m.darts.AllocateDart(tx)
}

// AddDarts allocates n new, fully-free darts.
func (m *Map) AddDarts(tx *stm.Txn, n int) ([]types.DartID, error) {
	darts := make([]types.DartID, n)
	for i := range darts {
		d, err := m.darts.AllocateDart(tx)
		if err != nil {
			return nil, err
		}
		darts[i] = d
	}
	return darts, nil
}

// RemoveDart removes a dart that is free in every dimension (I4), clearing
// any attribute values keyed at it.
func (m *Map) RemoveDart(tx *stm.Txn, d types.DartID) error {
	if err := m.darts.RemoveDart(tx, d); err != nil {
		return err
	}
	return m.attrs.RemoveAllAt(tx, d)
}

// Beta reads β[i](d) non-transactionally, for best-effort queries (§5).
func (m *Map) Beta(i types.Dimension, d types.DartID) types.DartID {
	return m.darts.BetaPeek(i, d)
}

// BetaTrans reads β[i](d) transactionally.
func (m *Map) BetaTrans(tx *stm.Txn, i types.Dimension, d types.DartID) (types.DartID, error) {
	return m.darts.Beta(tx, i, d)
}

// CellID computes the i-cell id of d by walking its orbit and taking the
// minimum dart, per §4.4 ("recomputed by callers; no cache is maintained").
func (m *Map) CellID(tx *stm.Txn, kind types.CellKind, d types.DartID) (types.DartID, error) {
	return orbit.CellID(tx, m.darts, d, types.CellOrbit(kind, m.dim))
}

// Orbit returns every dart in d's i-cell orbit, seed first, BFS order.
func (m *Map) Orbit(tx *stm.Txn, kind types.CellKind, d types.DartID) ([]types.DartID, error) {
	return orbit.Walk(tx, m.darts, d, types.CellOrbit(kind, m.dim))
}

// CellIDPeek is the non-transactional counterpart of CellID, for
// best-effort queries such as serialization (§5).
func (m *Map) CellIDPeek(kind types.CellKind, d types.DartID) types.DartID {
	return orbit.CellIDSnapshot(m.darts, d, types.CellOrbit(kind, m.dim))
}

// UnusedPeek returns a non-transactional snapshot of the unused-dart set.
func (m *Map) UnusedPeek() []types.DartID {
	return m.darts.UnusedPeek()
}

// --- attribute access (§6.1) ---

// ReadAttribute reads the value of a key in a registered storage.
func ReadAttribute[T any](tx *stm.Txn, st *attribute.Storage[T], key types.DartID) (T, bool, error) {
	return st.Read(tx, key)
}

// WriteAttribute writes a value at a key in a registered storage.
func WriteAttribute[T any](tx *stm.Txn, st *attribute.Storage[T], key types.DartID, v T) error {
	return st.Write(tx, key, v)
}

// RemoveAttribute clears a key in a registered storage.
func RemoveAttribute[T any](tx *stm.Txn, st *attribute.Storage[T], key types.DartID) (T, bool, error) {
	return st.Remove(tx, key)
}
