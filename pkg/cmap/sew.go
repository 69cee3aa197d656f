package cmap

import (
	"github.com/cuemby/cmap/pkg/log"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// cellIDsByKind computes, for every kind in kinds, the i-cell id of both a
// and b under the current β state.
func (m *Map) cellIDsByKind(tx *stm.Txn, kinds []types.CellKind, a, b types.DartID) (ka, kb map[types.CellKind]types.DartID, err error) {
	ka = make(map[types.CellKind]types.DartID, len(kinds))
	kb = make(map[types.CellKind]types.DartID, len(kinds))
	for _, kind := range kinds {
		id, err := m.CellID(tx, kind, a)
		if err != nil {
			return nil, nil, err
		}
		ka[kind] = id
		id, err = m.CellID(tx, kind, b)
		if err != nil {
			return nil, nil, err
		}
		kb[kind] = id
	}
	return ka, kb, nil
}

// Sew performs an i-sew of darts a and b: the dim-i link, plus a merge of
// every attribute storage whose cell kind is affected by dimension i
// (§4.5's affect table). a == b is the self-sew edge case and is a NoOp.
func (m *Map) Sew(tx *stm.Txn, i types.Dimension, a, b types.DartID) error {
	if err := m.checkDim(i); err != nil {
		return err
	}
	if a == b {
		return nil
	}

	kinds := m.attrs.AffectedKinds(i)
	ka, kb, err := m.cellIDsByKind(tx, kinds, a, b)
	if err != nil {
		return err
	}

	if err := m.Link(tx, i, a, b); err != nil {
		return err
	}

	for _, kind := range kinds {
		newID, err := m.CellID(tx, kind, a)
		if err != nil {
			return err
		}
		if err := m.attrs.MergeKind(tx, kind, newID, ka[kind], kb[kind]); err != nil {
			return err
		}
		log.WithCellID(m.log, uint32(newID)).Debug().Str("kind", kind.String()).Msg("merged attribute cell")
	}
	return nil
}

// Unsew performs an i-unsew at dart d: the pre-cell id is computed for
// every affected kind, β[i] (and β[0]/β[1] for dim 1) is cleared, and the
// attribute values are split from the old cell id into the two new ones.
func (m *Map) Unsew(tx *stm.Txn, i types.Dimension, d types.DartID) error {
	if err := m.checkDim(i); err != nil {
		return err
	}

	other, err := m.darts.Beta(tx, i, d)
	if err != nil {
		return err
	}
	if other == types.NullDart {
		return nil
	}

	kinds := m.attrs.AffectedKinds(i)
	preID := make(map[types.CellKind]types.DartID, len(kinds))
	for _, kind := range kinds {
		id, err := m.CellID(tx, kind, d)
		if err != nil {
			return err
		}
		preID[kind] = id
	}

	if err := m.Unlink(tx, i, d); err != nil {
		return err
	}

	for _, kind := range kinds {
		newD, err := m.CellID(tx, kind, d)
		if err != nil {
			return err
		}
		newOther, err := m.CellID(tx, kind, other)
		if err != nil {
			return err
		}
		if newD == newOther {
			// Same cell kind wasn't actually split by this unlink
			// (e.g. the two rims reconnect through another path);
			// nothing to distribute.
			continue
		}
		if err := m.attrs.SplitKind(tx, kind, newD, newOther, preID[kind]); err != nil {
			return err
		}
		log.WithCellID(m.log, uint32(preID[kind])).Debug().Str("kind", kind.String()).Msg("split attribute cell")
	}
	return nil
}

// ForceSew wraps Sew in an unconditional Atomically driver, retrying until
// it commits. Suitable for single-threaded callers that don't need to
// compose the sew with other transactional state.
func (m *Map) ForceSew(i types.Dimension, a, b types.DartID) error {
	return stm.Atomically(m.rt, func(tx *stm.Txn) error {
		return m.Sew(tx, i, a, b)
	})
}

// ForceUnsew wraps Unsew in an unconditional Atomically driver.
func (m *Map) ForceUnsew(i types.Dimension, d types.DartID) error {
	return stm.Atomically(m.rt, func(tx *stm.Txn) error {
		return m.Unsew(tx, i, d)
	})
}

// TrySew performs one Sew attempt and surfaces ErrTransactionConflict
// instead of retrying, for callers composing with outer transactions.
func (m *Map) TrySew(i types.Dimension, a, b types.DartID) error {
	return stm.TryAtomically(m.rt, func(tx *stm.Txn) error {
		return m.Sew(tx, i, a, b)
	})
}

// TryUnsew performs one Unsew attempt and surfaces ErrTransactionConflict
// instead of retrying.
func (m *Map) TryUnsew(i types.Dimension, d types.DartID) error {
	return stm.TryAtomically(m.rt, func(tx *stm.Txn) error {
		return m.Unsew(tx, i, d)
	})
}
