package cmap_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/cmap"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

type vertexWeight struct{ value float64 }

func weightSpec() attribute.Spec[vertexWeight] {
	return attribute.Spec[vertexWeight]{
		Bind: types.CellVertex,
		Merge: func(a, b vertexWeight) (vertexWeight, error) {
			return vertexWeight{value: a.value + b.value}, nil
		},
		Split: func(v vertexWeight) (vertexWeight, vertexWeight, error) {
			return vertexWeight{value: v.value}, vertexWeight{value: v.value}, nil
		},
		MergeIncomplete: func(v vertexWeight) (vertexWeight, error) { return v, nil },
	}
}

// buildSquare builds the §8 scenario 1 unit square: four darts glued into
// a single face cycle via dim-1 sew, with a vertex weight attribute. Each
// dim-1 sew merges the vertex cells of its two darts, so the weights are
// written only once the face is closed.
func buildSquare(t *testing.T) (*cmap.Map, *attribute.Storage[vertexWeight], [4]types.DartID) {
	t.Helper()
	m, err := cmap.New(2)
	require.NoError(t, err)
	weights := attribute.Register(m.Attrs(), m.Runtime(), "weight", weightSpec())

	var darts [4]types.DartID
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		all, err := m.AddDarts(tx, 4)
		if err != nil {
			return err
		}
		copy(darts[:], all)
		return nil
	}))

	for i := 0; i < 4; i++ {
		require.NoError(t, m.ForceSew(1, darts[i], darts[(i+1)%4]))
	}
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		for _, d := range darts {
			if err := weights.Write(tx, d, vertexWeight{value: 1}); err != nil {
				return err
			}
		}
		return nil
	}))
	return m, weights, darts
}

func TestUnitSquareFaceOrbitAndVertexWeights(t *testing.T) {
	m, weights, darts := buildSquare(t)

	var face []types.DartID
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		face, err = m.Orbit(tx, types.CellFace, darts[0])
		return err
	}))
	assert.Equal(t, darts[:], face)

	// Only β[1] is populated (no β[2] gluing across edges yet), so each
	// corner is its own 0-cell; the weights were written after the face was
	// closed, so each one reads back as written.
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		for _, d := range darts {
			v, ok, err := weights.Read(tx, d)
			if err != nil {
				return err
			}
			assert.True(t, ok)
			assert.Equal(t, 1.0, v.value)
		}
		return nil
	}))
}

// buildTwoTriangles wires two independent triangles (darts 1-3 and 4-6),
// each a closed β[1] cycle, matching §8 scenario 2's starting point. As in
// buildSquare, the weights are written after the dim-1 sews that close the
// cycles, so every dart starts with weight 1.
func buildTwoTriangles(t *testing.T) (*cmap.Map, *attribute.Storage[vertexWeight], [3]types.DartID, [3]types.DartID) {
	t.Helper()
	m, err := cmap.New(2)
	require.NoError(t, err)
	weights := attribute.Register(m.Attrs(), m.Runtime(), "weight", weightSpec())

	var t1, t2 [3]types.DartID
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		a, err := m.AddDarts(tx, 3)
		if err != nil {
			return err
		}
		copy(t1[:], a)
		b, err := m.AddDarts(tx, 3)
		if err != nil {
			return err
		}
		copy(t2[:], b)
		return nil
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, m.ForceSew(1, t1[i], t1[(i+1)%3]))
		require.NoError(t, m.ForceSew(1, t2[i], t2[(i+1)%3]))
	}
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		for _, d := range append(append([]types.DartID{}, t1[:]...), t2[:]...) {
			if err := weights.Write(tx, d, vertexWeight{value: 1}); err != nil {
				return err
			}
		}
		return nil
	}))
	return m, weights, t1, t2
}

func TestTwoTrianglesFuseAndUnfuseVertexWeights(t *testing.T) {
	m, weights, t1, t2 := buildTwoTriangles(t)

	// Glue t1[0]'s edge (t1[0]->t1[1]) to t2[1]'s edge (t2[1]->t2[2])
	// (opposite winding, as a 2-sew would require for a consistent shared
	// edge).
	require.NoError(t, m.ForceSew(2, t1[0], t2[1]))

	var v0 vertexWeight
	var ok bool
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		v0, ok, err = weights.Read(tx, t1[0])
		return err
	}))
	require.True(t, ok)
	assert.Equal(t, 2.0, v0.value, "sewing the shared vertex must merge both sides' weights")

	require.NoError(t, m.ForceUnsew(2, t1[0]))

	var back1, back2 vertexWeight
	var ok1, ok2 bool
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		back1, ok1, err = weights.Read(tx, t1[0])
		if err != nil {
			return err
		}
		back2, ok2, err = weights.Read(tx, t2[1])
		return err
	}))
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, 2.0, back1.value)
	assert.Equal(t, 2.0, back2.value)
}

// tagSpec merges by concatenation and splits by bisecting the merged slice
// back in half, a genuine inverse of merge for same-length sides (unlike
// weightSpec's copying split, which discards which original value came
// from which cell). It exercises P4 (merge then split restores the
// pre-merge values) with a real round trip rather than a reconstruction
// that happens to look consistent only because both sides started equal.
func tagSpec() attribute.Spec[[]float64] {
	return attribute.Spec[[]float64]{
		Bind: types.CellVertex,
		Merge: func(a, b []float64) ([]float64, error) {
			out := make([]float64, 0, len(a)+len(b))
			out = append(out, a...)
			out = append(out, b...)
			return out, nil
		},
		Split: func(v []float64) ([]float64, []float64, error) {
			mid := len(v) / 2
			left := append([]float64{}, v[:mid]...)
			right := append([]float64{}, v[mid:]...)
			return left, right, nil
		},
	}
}

func TestMergeSplitRoundTripRestoresOriginalValues(t *testing.T) {
	m, _, t1, t2 := buildTwoTriangles(t)
	tags := attribute.Register(m.Attrs(), m.Runtime(), "tag", tagSpec())

	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		if err := tags.Write(tx, t1[0], []float64{1}); err != nil {
			return err
		}
		return tags.Write(tx, t2[1], []float64{5})
	}))

	require.NoError(t, m.ForceSew(2, t1[0], t2[1]))

	var merged []float64
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		merged, _, err = tags.Read(tx, t1[0])
		return err
	}))
	assert.Equal(t, []float64{1, 5}, merged, "merge must concatenate, not discard, each side's original value")

	require.NoError(t, m.ForceUnsew(2, t1[0]))

	var back1, back2 []float64
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		back1, _, err = tags.Read(tx, t1[0])
		if err != nil {
			return err
		}
		back2, _, err = tags.Read(tx, t2[1])
		return err
	}))
	assert.Equal(t, []float64{1}, back1, "split must restore t1[0]'s pre-merge value exactly")
	assert.Equal(t, []float64{5}, back2, "split must restore t2[1]'s pre-merge value exactly")
}

func TestSelfSewIsNoOp(t *testing.T) {
	m, weights, darts := buildSquare(t)
	err := m.ForceSew(1, darts[0], darts[0])
	require.NoError(t, err)

	var v vertexWeight
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		v, _, err = weights.Read(tx, darts[0])
		return err
	}))
	assert.Equal(t, 1.0, v.value)
}

func TestUnlinkRequiresRelationPresent(t *testing.T) {
	m, err := cmap.New(2)
	require.NoError(t, err)

	var d types.DartID
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		d, err = m.AddDart(tx)
		return err
	}))

	err = stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		return m.Unlink(tx, 1, d)
	})
	assert.True(t, errors.Is(err, cmap.ErrLink))
}

func TestRemoveFreeDartClearsAttributes(t *testing.T) {
	m, err := cmap.New(1)
	require.NoError(t, err)
	weights := attribute.Register(m.Attrs(), m.Runtime(), "weight", weightSpec())

	var d types.DartID
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		d, err = m.AddDart(tx)
		if err != nil {
			return err
		}
		return weights.Write(tx, d, vertexWeight{value: 3})
	}))

	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		return m.RemoveDart(tx, d)
	}))

	var ok bool
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		_, ok, err = weights.Read(tx, d)
		return err
	}))
	assert.False(t, ok)
}

func TestMergeFailureRollsBackTopologyAndAttributes(t *testing.T) {
	m, err := cmap.New(2)
	require.NoError(t, err)
	boom := errors.New("boom")
	rejecting := attribute.Register(m.Attrs(), m.Runtime(), "rejecting", attribute.Spec[int]{
		Bind: types.CellVertex,
		Merge: func(a, b int) (int, error) {
			return 0, boom
		},
		MergeIncomplete: func(v int) (int, error) { return v, nil },
	})

	var a, b types.DartID
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		var err error
		a, err = m.AddDart(tx)
		if err != nil {
			return err
		}
		b, err = m.AddDart(tx)
		if err != nil {
			return err
		}
		if err := rejecting.Write(tx, a, 1); err != nil {
			return err
		}
		return rejecting.Write(tx, b, 2)
	}))

	sewErr := m.ForceSew(1, a, b)
	require.Error(t, sewErr)
	assert.True(t, errors.Is(sewErr, attribute.ErrAttributeMerge))

	// No partial effect: β relations must remain exactly as before.
	assert.Equal(t, types.NullDart, m.Beta(1, a))
	assert.Equal(t, types.NullDart, m.Beta(0, b))

	// ...and so must both attribute values.
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		va, oka, err := rejecting.Read(tx, a)
		if err != nil {
			return err
		}
		vb, okb, err := rejecting.Read(tx, b)
		if err != nil {
			return err
		}
		assert.True(t, oka)
		assert.True(t, okb)
		assert.Equal(t, 1, va)
		assert.Equal(t, 2, vb)
		return nil
	}))
}

func TestConcurrentForceSewsSerializeCleanly(t *testing.T) {
	const n = 40
	m, err := cmap.New(2)
	require.NoError(t, err)
	weights := attribute.Register(m.Attrs(), m.Runtime(), "weight", weightSpec())

	darts := make([]types.DartID, n)
	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		all, err := m.AddDarts(tx, n)
		if err != nil {
			return err
		}
		copy(darts, all)
		for _, d := range darts {
			if err := weights.Write(tx, d, vertexWeight{value: 1}); err != nil {
				return err
			}
		}
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < n-1; i += 2 {
		wg.Add(1)
		go func(a, b types.DartID) {
			defer wg.Done()
			require.NoError(t, m.ForceSew(1, a, b))
		}(darts[i], darts[i+1])
	}
	wg.Wait()

	for i := 0; i < n-1; i += 2 {
		assert.Equal(t, darts[i+1], m.Beta(1, darts[i]))
	}
}
