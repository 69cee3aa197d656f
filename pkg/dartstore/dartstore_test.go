package dartstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cmap/pkg/dartstore"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

func newStore(t *testing.T, dim types.Dimension) (*stm.Runtime, *dartstore.Store) {
	t.Helper()
	rt := stm.NewRuntime()
	return rt, dartstore.New(rt, dim)
}

func TestAllocateDartAssignsSequentialIDs(t *testing.T) {
	rt, s := newStore(t, 2)

	var ids []types.DartID
	for i := 0; i < 3; i++ {
		err := stm.Atomically(rt, func(tx *stm.Txn) error {
			d, err := s.AllocateDart(tx)
			if err != nil {
				return err
			}
			ids = append(ids, d)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []types.DartID{1, 2, 3}, ids)
	assert.Equal(t, 3, s.NumDarts())
}

func TestRemoveThenAllocateReusesSmallestID(t *testing.T) {
	rt, s := newStore(t, 2)

	var d1, d2, d3 types.DartID
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		if d1, err = s.AllocateDart(tx); err != nil {
			return err
		}
		if d2, err = s.AllocateDart(tx); err != nil {
			return err
		}
		if d3, err = s.AllocateDart(tx); err != nil {
			return err
		}
		return nil
	}))

	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return s.RemoveDart(tx, d2)
	}))

	var reused types.DartID
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		reused, err = s.AllocateDart(tx)
		return err
	}))
	assert.Equal(t, d2, reused)
	_ = d1
	_ = d3
}

func TestRemoveDartRequiresFreeInEveryDimension(t *testing.T) {
	rt, s := newStore(t, 1)

	var a, b types.DartID
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		if a, err = s.AllocateDart(tx); err != nil {
			return err
		}
		if b, err = s.AllocateDart(tx); err != nil {
			return err
		}
		if err := s.SetBeta(tx, 1, a, b); err != nil {
			return err
		}
		return s.SetBeta(tx, 0, b, a)
	}))

	err := stm.Atomically(rt, func(tx *stm.Txn) error {
		return s.RemoveDart(tx, a)
	})
	assert.ErrorIs(t, err, dartstore.ErrDartNotFree)
}

func TestBetaPeekIsNonTransactional(t *testing.T) {
	rt, s := newStore(t, 1)
	var a, b types.DartID
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		if a, err = s.AllocateDart(tx); err != nil {
			return err
		}
		if b, err = s.AllocateDart(tx); err != nil {
			return err
		}
		return s.SetBeta(tx, 1, a, b)
	}))
	assert.Equal(t, b, s.BetaPeek(1, a))
	assert.Equal(t, types.NullDart, s.BetaPeek(1, b))
}

func TestUnusedPeekReflectsFreeSet(t *testing.T) {
	rt, s := newStore(t, 1)
	var a, b types.DartID
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		var err error
		if a, err = s.AllocateDart(tx); err != nil {
			return err
		}
		if b, err = s.AllocateDart(tx); err != nil {
			return err
		}
		return nil
	}))
	require.NoError(t, stm.Atomically(rt, func(tx *stm.Txn) error {
		return s.RemoveDart(tx, a)
	}))
	assert.Equal(t, []types.DartID{a}, s.UnusedPeek())
	_ = b
}
