// Package dartstore implements spec §4.3: a monotonically growing indexed
// collection of darts, the β table (one stm.TVar per (dart, dimension)
// slot), and the unused-dart free list. Dart 0 is the permanent NULL dart
// and is never allocated or freed.
package dartstore

import (
	"errors"
	"sort"
	"sync"

	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// ErrDartNotFree is returned by RemoveDart when the dart still carries a β
// relation in some dimension (I4).
var ErrDartNotFree = errors.New("dartstore: dart is not free in every dimension")

// dartSlots holds the β images for a single dart, one TVar per dimension
// 0..dim.
type dartSlots struct {
	beta []*stm.TVar[types.DartID]
}

// Store is the dart store plus β table for one map instance.
type Store struct {
	rt  *stm.Runtime
	dim types.Dimension

	// growMu guards the slots slice: growTo holds it while extending
	// slots, and slotsFor while looking up one dart's slots. It is the
	// "coarse lock distinct from the STM" §5 allows for backing-storage
	// growth, held only for a slice extension or a slot lookup and never
	// across the STM's own commit path.
	growMu sync.Mutex
	slots  []dartSlots

	nextID *stm.TVar[types.DartID]
	unused *stm.TVar[[]types.DartID]
}

// New creates a dart store for a map of the given dimension (the highest
// β index in use; β[0] is always present as β[1]'s inverse). Dart 0 (NULL)
// is pre-allocated with every β image free.
func New(rt *stm.Runtime, dim types.Dimension) *Store {
	s := &Store{
		rt:     rt,
		dim:    dim,
		nextID: stm.NewVar(rt, types.DartID(1)),
		unused: stm.NewVar(rt, []types.DartID(nil)),
	}
	s.growTo(1) // slot 0, the NULL dart
	return s
}

// Dim returns the store's highest β dimension.
func (s *Store) Dim() types.Dimension { return s.dim }

// growTo ensures slots has at least n entries, creating fresh, all-free β
// TVars for any new dart ids. Safe to call repeatedly, including from a
// transaction attempt that later retries — it only ever grows.
func (s *Store) growTo(n int) {
	s.growMu.Lock()
	defer s.growMu.Unlock()
	if len(s.slots) >= n {
		return
	}
	grown := make([]dartSlots, n)
	copy(grown, s.slots)
	for i := len(s.slots); i < n; i++ {
		beta := make([]*stm.TVar[types.DartID], s.dim+1)
		for d := 0; d <= int(s.dim); d++ {
			beta[d] = stm.NewVar(s.rt, types.NullDart)
		}
		grown[i] = dartSlots{beta: beta}
	}
	s.slots = grown
}

func (s *Store) slotsFor(d types.DartID) dartSlots {
	s.growMu.Lock()
	defer s.growMu.Unlock()
	return s.slots[d]
}

// Beta reads β[i](d) transactionally.
func (s *Store) Beta(tx *stm.Txn, i types.Dimension, d types.DartID) (types.DartID, error) {
	if d == types.NullDart {
		return types.NullDart, nil
	}
	sl := s.slotsFor(d)
	return stm.Read(tx, sl.beta[i])
}

// SetBeta writes β[i](d) = image transactionally. Reserved for link/unlink;
// sew/unsew call it as part of their own transactions.
func (s *Store) SetBeta(tx *stm.Txn, i types.Dimension, d types.DartID, image types.DartID) error {
	sl := s.slotsFor(d)
	stm.Write(tx, sl.beta[i], image)
	return nil
}

// BetaPeek reads β[i](d) non-transactionally (§6.1's "map.beta(i, d)").
// Results may be torn under concurrent writers; never use this to decide a
// mutating action.
func (s *Store) BetaPeek(i types.Dimension, d types.DartID) types.DartID {
	if d == types.NullDart {
		return types.NullDart
	}
	sl := s.slotsFor(d)
	return stm.Peek(sl.beta[i])
}

// IsFree reports whether d is i-free.
func (s *Store) IsFree(tx *stm.Txn, i types.Dimension, d types.DartID) (bool, error) {
	v, err := s.Beta(tx, i, d)
	if err != nil {
		return false, err
	}
	return v == types.NullDart, nil
}

// IsFreeEverywhere reports whether d is free in every dimension (I4).
func (s *Store) IsFreeEverywhere(tx *stm.Txn, d types.DartID) (bool, error) {
	for i := types.Dimension(0); i <= s.dim; i++ {
		free, err := s.IsFree(tx, i, d)
		if err != nil {
			return false, err
		}
		if !free {
			return false, nil
		}
	}
	return true, nil
}

// AllocateDart allocates a dart id, preferring the smallest id in the
// unused set (so that cell ids, defined as the min dart id in an orbit,
// stay stable across remove/insert cycles — §8 P7). If the unused set is
// empty, it extends the store. Must run inside a transaction so that two
// concurrent allocations can never observe and consume the same free slot.
func (s *Store) AllocateDart(tx *stm.Txn) (types.DartID, error) {
	free, err := stm.Read(tx, s.unused)
	if err != nil {
		return 0, err
	}
	if len(free) > 0 {
		d := free[0]
		rest := make([]types.DartID, len(free)-1)
		copy(rest, free[1:])
		stm.Write(tx, s.unused, rest)
		return d, nil
	}

	next, err := stm.Read(tx, s.nextID)
	if err != nil {
		return 0, err
	}
	s.growTo(int(next) + 1)
	stm.Write(tx, s.nextID, next+1)
	return next, nil
}

// RemoveDart releases d back to the unused set. d must be free in every
// dimension (I4); otherwise ErrDartNotFree is returned and no state
// changes. The caller (pkg/cmap) is responsible for clearing any attribute
// values keyed at d in the same transaction.
func (s *Store) RemoveDart(tx *stm.Txn, d types.DartID) error {
	if d == types.NullDart {
		return ErrDartNotFree
	}
	free, err := s.IsFreeEverywhere(tx, d)
	if err != nil {
		return err
	}
	if !free {
		return ErrDartNotFree
	}

	unused, err := stm.Read(tx, s.unused)
	if err != nil {
		return err
	}
	idx := sort.Search(len(unused), func(i int) bool { return unused[i] >= d })
	if idx < len(unused) && unused[idx] == d {
		return nil // already unused; nothing to do
	}
	next := make([]types.DartID, len(unused)+1)
	copy(next, unused[:idx])
	next[idx] = d
	copy(next[idx+1:], unused[idx:])
	stm.Write(tx, s.unused, next)
	return nil
}

// UnusedPeek returns a non-transactional snapshot of the unused set, for
// diagnostics and §6.2 serialization of the [UNUSED] section.
func (s *Store) UnusedPeek() []types.DartID {
	return append([]types.DartID(nil), stm.Peek(s.unused)...)
}

// NumDarts returns a non-transactional snapshot of the number of dart ids
// ever allocated, excluding the NULL dart (some may currently be unused).
func (s *Store) NumDarts() int {
	return int(stm.Peek(s.nextID)) - 1
}
