package cmap

import (
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// LoadRaw reconstructs a map from a pre-validated β table: betas[i][d] is
// the image of β[i](d) for d in 1..n (column 0, the NULL dart, is never
// consulted). It is the deserialization entry point for pkg/format, which
// validates I1/I2 and shape constraints against the parsed table itself
// (raising its own SerializationError) before calling LoadRaw; pkg/vtkio
// builds its maps through New and sews instead. LoadRaw still fails with
// ErrLink for a dimension New rejects, and with ErrDartNotFree (via the
// normal RemoveDart path) for an "unused" dart that is not free everywhere.
//
// betas must have exactly dim+1 rows, each of length n+1, matching §6.2's
// on-disk shape.
func LoadRaw(dim types.Dimension, betas [][]types.DartID, unused []types.DartID) (*Map, error) {
	m, err := New(dim)
	if err != nil {
		return nil, err
	}

	n := 0
	if len(betas) > 0 {
		n = len(betas[0]) - 1
	}

	err = stm.Atomically(m.rt, func(tx *stm.Txn) error {
		for k := 0; k < n; k++ {
			if _, err := m.darts.AllocateDart(tx); err != nil {
				return err
			}
		}
		for i, row := range betas {
			for d := 1; d <= n; d++ {
				if err := m.darts.SetBeta(tx, types.Dimension(i), types.DartID(d), row[d]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range unused {
		if err := stm.Atomically(m.rt, func(tx *stm.Txn) error {
			return m.darts.RemoveDart(tx, d)
		}); err != nil {
			return nil, err
		}
	}
	return m, nil
}
