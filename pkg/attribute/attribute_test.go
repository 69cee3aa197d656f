package attribute_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

type weight struct {
	value float64
}

func weightSpec() attribute.Spec[weight] {
	return attribute.Spec[weight]{
		Bind: types.CellVertex,
		Merge: func(a, b weight) (weight, error) {
			return weight{value: a.value + b.value}, nil
		},
		Split: func(v weight) (weight, weight, error) {
			half := v.value / 2
			return weight{value: half}, weight{value: half}, nil
		},
		MergeIncomplete: func(v weight) (weight, error) { return v, nil },
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	rt := stm.NewRuntime()
	st := attribute.NewStorage(rt, weightSpec())

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Write(tx, 5, weight{value: 1.5})
	}))

	var got weight
	var ok bool
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		got, ok, err = st.Read(tx, 5)
		return err
	}))
	assert.True(t, ok)
	assert.Equal(t, 1.5, got.value)
}

func TestReadAbsentKeyReturnsFalse(t *testing.T) {
	rt := stm.NewRuntime()
	st := attribute.NewStorage(rt, weightSpec())

	var ok bool
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		_, ok, err = st.Read(tx, 42)
		return err
	}))
	assert.False(t, ok)
}

func TestMergeCombinesBothPresentValues(t *testing.T) {
	rt := stm.NewRuntime()
	st := attribute.NewStorage(rt, weightSpec())

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		if err := st.Write(tx, 1, weight{value: 2}); err != nil {
			return err
		}
		return st.Write(tx, 2, weight{value: 3})
	}))

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Merge(tx, 1, 1, 2)
	}))

	var got weight
	var ok bool
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		got, ok, err = st.Read(tx, 1)
		return err
	}))
	assert.True(t, ok)
	assert.Equal(t, 5.0, got.value)

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		_, ok, err := st.Read(tx, 2)
		assert.False(t, ok)
		return err
	}))
}

func TestMergeSelfSewIsNoOp(t *testing.T) {
	rt := stm.NewRuntime()
	st := attribute.NewStorage(rt, weightSpec())

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Write(tx, 1, weight{value: 7})
	}))
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Merge(tx, 1, 1, 1)
	}))

	var got weight
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		got, _, err = st.Read(tx, 1)
		return err
	}))
	assert.Equal(t, 7.0, got.value)
}

func TestMergeWithoutIncompleteLawFails(t *testing.T) {
	rt := stm.NewRuntime()
	spec := weightSpec()
	spec.MergeIncomplete = nil
	st := attribute.NewStorage(rt, spec)

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Write(tx, 1, weight{value: 2})
	}))

	err := stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Merge(tx, 1, 1, 2)
	})
	assert.True(t, errors.Is(err, attribute.ErrIncompleteAttribute))
}

func TestSplitProducesTwoValues(t *testing.T) {
	rt := stm.NewRuntime()
	st := attribute.NewStorage(rt, weightSpec())

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Write(tx, 1, weight{value: 10})
	}))
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return st.Split(tx, 1, 2, 1)
	}))

	var v1, v2 weight
	var ok1, ok2 bool
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		v1, ok1, err = st.Read(tx, 1)
		if err != nil {
			return err
		}
		v2, ok2, err = st.Read(tx, 2)
		return err
	}))
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, 5.0, v1.value)
	assert.Equal(t, 5.0, v2.value)
}

func TestManagerDispatchesOnlyAffectedStorages(t *testing.T) {
	rt := stm.NewRuntime()
	mgr := attribute.NewManager()
	vertex := attribute.Register(mgr, rt, "weight", weightSpec())

	faceSpec := attribute.Spec[string]{
		Bind: types.CellFace,
		Merge: func(a, b string) (string, error) {
			return a + "+" + b, nil
		},
	}
	face := attribute.Register(mgr, rt, "label", faceSpec)

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		if err := vertex.Write(tx, 1, weight{value: 1}); err != nil {
			return err
		}
		if err := vertex.Write(tx, 2, weight{value: 4}); err != nil {
			return err
		}
		if err := face.Write(tx, 1, "a"); err != nil {
			return err
		}
		return face.Write(tx, 2, "b")
	}))

	// dim 1 affects vertex (0-cell) but not face (2-cell, needs dim>=3).
	kinds := mgr.AffectedKinds(1)
	assert.Equal(t, []types.CellKind{types.CellVertex}, kinds)
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return mgr.MergeKind(tx, types.CellVertex, 1, 1, 2)
	}))

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		v, ok, err := vertex.Read(tx, 1)
		if err != nil {
			return err
		}
		assert.True(t, ok)
		assert.Equal(t, 5.0, v.value)

		l1, ok1, err := face.Read(tx, 1)
		if err != nil {
			return err
		}
		l2, ok2, err := face.Read(tx, 2)
		if err != nil {
			return err
		}
		assert.True(t, ok1)
		assert.True(t, ok2)
		assert.Equal(t, "a", l1)
		assert.Equal(t, "b", l2)
		return nil
	}))
}

func TestRemoveAllAtClearsEveryStorage(t *testing.T) {
	rt := stm.NewRuntime()
	mgr := attribute.NewManager()
	vertex := attribute.Register(mgr, rt, "weight", weightSpec())

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return vertex.Write(tx, 9, weight{value: 1})
	}))
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return mgr.RemoveAllAt(tx, 9)
	}))

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		_, ok, err := vertex.Read(tx, 9)
		assert.False(t, ok)
		return err
	}))
}
