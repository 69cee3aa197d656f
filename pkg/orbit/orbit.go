// Package orbit implements the generic breadth-first orbit walker of
// spec §4.4: given a seed dart and an OrbitPolicy naming a subset of β
// relations (or compositions of them, for the 0-cell), it produces the
// deterministic, finite sequence of distinct darts reachable from the
// seed — seed first, then BFS expanding neighbors in the policy's declared
// step order, each dart emitted the first time it is encountered.
package orbit

import (
	"github.com/cuemby/cmap/pkg/dartstore"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// betaReader abstracts the one thing Walk needs from a dart store, so the
// transactional and snapshot walks share the same traversal code.
type betaReader func(i types.Dimension, d types.DartID) (types.DartID, error)

// Walk performs a transactional orbit walk: every β read goes through tx,
// so the orbit is consistent with whatever the enclosing transaction
// ultimately commits or retries. Use this for any orbit computation that
// feeds a decision (cell id lookups inside sew/unsew, etc).
func Walk(tx *stm.Txn, store *dartstore.Store, seed types.DartID, policy types.OrbitPolicy) ([]types.DartID, error) {
	return walk(seed, policy, func(i types.Dimension, d types.DartID) (types.DartID, error) {
		return store.Beta(tx, i, d)
	})
}

// WalkSnapshot performs a non-transactional orbit walk, reading current
// TVar values directly. Results may be torn relative to concurrent
// writers; per §4.4 this must never be used to decide a mutating action —
// only for best-effort queries and diagnostics.
func WalkSnapshot(store *dartstore.Store, seed types.DartID, policy types.OrbitPolicy) []types.DartID {
	darts, _ := walk(seed, policy, func(i types.Dimension, d types.DartID) (types.DartID, error) {
		return store.BetaPeek(i, d), nil
	})
	return darts
}

func walk(seed types.DartID, policy types.OrbitPolicy, read betaReader) ([]types.DartID, error) {
	visited := map[types.DartID]bool{seed: true}
	order := []types.DartID{seed}
	queue := []types.DartID{seed}

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		for _, step := range policy.Steps {
			n := d
			for _, dim := range step {
				next, err := read(dim, n)
				if err != nil {
					return nil, err
				}
				n = next
			}
			if n == types.NullDart || visited[n] {
				continue
			}
			visited[n] = true
			order = append(order, n)
			queue = append(queue, n)
		}
	}
	return order, nil
}

// CellID returns the minimum dart id in Orb(seed) under policy — the
// canonical cell id used to key attribute storages (§3 I5, §4.4).
func CellID(tx *stm.Txn, store *dartstore.Store, seed types.DartID, policy types.OrbitPolicy) (types.DartID, error) {
	darts, err := Walk(tx, store, seed, policy)
	if err != nil {
		return 0, err
	}
	return minDart(darts), nil
}

// CellIDSnapshot is the non-transactional counterpart of CellID.
func CellIDSnapshot(store *dartstore.Store, seed types.DartID, policy types.OrbitPolicy) types.DartID {
	return minDart(WalkSnapshot(store, seed, policy))
}

func minDart(darts []types.DartID) types.DartID {
	m := darts[0]
	for _, d := range darts[1:] {
		if d < m {
			m = d
		}
	}
	return m
}
