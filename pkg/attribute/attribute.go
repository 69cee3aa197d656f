// Package attribute implements spec §4.2: generic, sparse, per-cell
// attribute storages with user-supplied merge/split/merge-incomplete laws,
// and a type-erased manager that dispatches merge/split across every
// registered storage affected by a given sew/unsew dimension (§4.5's
// affect table, see types.AffectedByDim).
//
// Each storage's slots are themselves transactional variables (stm.TVar),
// so a cell's attribute value is shared transactionally between concurrent
// transactions exactly like a β image (§3: "Ownership... each cell slot is
// shared transactionally between concurrent transactions").
package attribute

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// Error kinds distinguishable per §7.
var (
	ErrAttributeMerge     = errors.New("attribute: merge law rejected its inputs")
	ErrAttributeSplit     = errors.New("attribute: split law rejected its input")
	ErrIncompleteAttribute = errors.New("attribute: merge invoked with only one side present and no merge_incomplete law")
)

// Spec describes one attribute type's binding and laws (§4.2).
type Spec[T any] struct {
	// Bind names the orbit kind whose id keys this storage.
	Bind types.CellKind

	// Merge combines two present values when an orbit absorbs another.
	Merge func(a, b T) (T, error)

	// Split is the inverse of Merge, used when an orbit is cut in two.
	// A nil Split means splitting a cell that holds a value fails with
	// ErrIncompleteAttribute; no second value is synthesized.
	Split func(v T) (T, T, error)

	// MergeIncomplete is used when only one side of a merge has a value.
	// A nil MergeIncomplete means such a merge fails with
	// ErrIncompleteAttribute (§7).
	MergeIncomplete func(v T) (T, error)
}

// Storage is a sparse column from cell id to a value of type T.
type Storage[T any] struct {
	rt   *stm.Runtime
	spec Spec[T]

	// growMu is the coarse lock guarding backing-slice growth only (§5
	// resource policy option (a)), mirroring dartstore.Store.
	growMu sync.Mutex
	slots  []*stm.TVar[*T]
}

// NewStorage creates an empty storage bound to spec.
func NewStorage[T any](rt *stm.Runtime, spec Spec[T]) *Storage[T] {
	return &Storage[T]{rt: rt, spec: spec}
}

// Bind returns the orbit kind this storage is keyed by.
func (s *Storage[T]) Bind() types.CellKind { return s.spec.Bind }

// TypeName returns a stable-enough identifier for logs and the manager's
// registry; the manager itself keys storages by the name passed to
// Register, not this.
func (s *Storage[T]) TypeName() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func (s *Storage[T]) ensure(n int) {
	s.growMu.Lock()
	defer s.growMu.Unlock()
	if len(s.slots) >= n {
		return
	}
	grown := make([]*stm.TVar[*T], n)
	copy(grown, s.slots)
	for i := len(s.slots); i < n; i++ {
		grown[i] = stm.NewVar[*T](s.rt, nil)
	}
	s.slots = grown
}

func (s *Storage[T]) slotLen() int {
	s.growMu.Lock()
	defer s.growMu.Unlock()
	return len(s.slots)
}

func (s *Storage[T]) slot(key types.DartID) *stm.TVar[*T] {
	s.growMu.Lock()
	defer s.growMu.Unlock()
	return s.slots[key]
}

// Read returns the value at key, if any.
func (s *Storage[T]) Read(tx *stm.Txn, key types.DartID) (T, bool, error) {
	var zero T
	if int(key) >= s.slotLen() {
		return zero, false, nil
	}
	v, err := stm.Read(tx, s.slot(key))
	if err != nil {
		return zero, false, err
	}
	if v == nil {
		return zero, false, nil
	}
	return *v, true, nil
}

// Write sets the value at key, extending the backing storage on demand.
func (s *Storage[T]) Write(tx *stm.Txn, key types.DartID, val T) error {
	s.ensure(int(key) + 1)
	v := val
	stm.Write(tx, s.slot(key), &v)
	return nil
}

// Peek reads the value at key non-transactionally, for best-effort queries
// such as serialization (§5's "non-transactional reads are permitted for
// best-effort queries"). Results may be torn relative to concurrent
// writers and must never decide a mutating action.
func (s *Storage[T]) Peek(key types.DartID) (T, bool) {
	var zero T
	if int(key) >= s.slotLen() {
		return zero, false
	}
	v := stm.Peek(s.slot(key))
	if v == nil {
		return zero, false
	}
	return *v, true
}

// Remove clears the value at key and returns what was there, if anything.
func (s *Storage[T]) Remove(tx *stm.Txn, key types.DartID) (T, bool, error) {
	prev, ok, err := s.Read(tx, key)
	if err != nil || !ok {
		return prev, ok, err
	}
	var nilv *T
	stm.Write(tx, s.slot(key), nilv)
	return prev, true, nil
}

// Merge reads the values at k1 and k2, applies the merge (or incomplete)
// law, writes the result at newKey, and removes k1/k2 if distinct from
// newKey. Per §4.5's self-sew edge case, k1 == k2 is a NoOp.
func (s *Storage[T]) Merge(tx *stm.Txn, newKey, k1, k2 types.DartID) error {
	if k1 == k2 {
		return nil
	}

	v1, ok1, err := s.Read(tx, k1)
	if err != nil {
		return err
	}
	v2, ok2, err := s.Read(tx, k2)
	if err != nil {
		return err
	}

	var merged T
	switch {
	case ok1 && ok2:
		merged, err = s.spec.Merge(v1, v2)
	case ok1 && !ok2:
		merged, err = s.mergeIncomplete(v1)
	case !ok1 && ok2:
		merged, err = s.mergeIncomplete(v2)
	default:
		return nil
	}
	if err != nil {
		if errors.Is(err, ErrIncompleteAttribute) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrAttributeMerge, err)
	}

	if k1 != newKey {
		if _, _, err := s.Remove(tx, k1); err != nil {
			return err
		}
	}
	if k2 != newKey {
		if _, _, err := s.Remove(tx, k2); err != nil {
			return err
		}
	}
	return s.Write(tx, newKey, merged)
}

func (s *Storage[T]) mergeIncomplete(v T) (T, error) {
	if s.spec.MergeIncomplete == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrIncompleteAttribute, s.TypeName())
	}
	return s.spec.MergeIncomplete(v)
}

// Split reads the value at src, applies the split law, and writes the two
// results at newK1/newK2, removing src first if it is not one of them. If
// src has no value, Split is a no-op — not every cell carries a value.
func (s *Storage[T]) Split(tx *stm.Txn, newK1, newK2, src types.DartID) error {
	v, ok, err := s.Read(tx, src)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if s.spec.Split == nil {
		return fmt.Errorf("%w: %s has no split law", ErrIncompleteAttribute, s.TypeName())
	}

	v1, v2, err := s.spec.Split(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttributeSplit, err)
	}

	if src != newK1 && src != newK2 {
		if _, _, err := s.Remove(tx, src); err != nil {
			return err
		}
	}
	if err := s.Write(tx, newK1, v1); err != nil {
		return err
	}
	return s.Write(tx, newK2, v2)
}

// --- type-erased dispatch (§9's capability-set translation) ---

// ErasedStorage is the capability set the Manager dispatches through,
// without knowing the concrete attribute type T.
type ErasedStorage interface {
	Bind() types.CellKind
	TypeName() string
	MergeAt(tx *stm.Txn, newKey, k1, k2 types.DartID) error
	SplitAt(tx *stm.Txn, newK1, newK2, src types.DartID) error
	RemoveAt(tx *stm.Txn, key types.DartID) error
}

func (s *Storage[T]) MergeAt(tx *stm.Txn, newKey, k1, k2 types.DartID) error {
	return s.Merge(tx, newKey, k1, k2)
}

func (s *Storage[T]) SplitAt(tx *stm.Txn, newK1, newK2, src types.DartID) error {
	return s.Split(tx, newK1, newK2, src)
}

func (s *Storage[T]) RemoveAt(tx *stm.Txn, key types.DartID) error {
	_, _, err := s.Remove(tx, key)
	return err
}

// Manager holds one storage per registered attribute type, keyed by a
// caller-chosen stable name, and dispatches merge/split/remove across
// every storage affected by a given dimension.
type Manager struct {
	mu       sync.RWMutex
	storages map[string]ErasedStorage
}

// NewManager creates an empty attribute manager.
func NewManager() *Manager {
	return &Manager{storages: make(map[string]ErasedStorage)}
}

// Register creates a new Storage[T] bound to spec, adds it to the manager
// under name, and returns the typed handle for direct Read/Write/Remove
// access outside the merge/split machinery.
func Register[T any](m *Manager, rt *stm.Runtime, name string, spec Spec[T]) *Storage[T] {
	st := NewStorage(rt, spec)
	m.mu.Lock()
	m.storages[name] = st
	m.mu.Unlock()
	return st
}

// Names returns the registered attribute names in stable sorted order, for
// callers (the CLI's info command, metrics) that want to report on the
// manager without touching its internals.
func (m *Manager) Names() []string {
	return m.names()
}

func (m *Manager) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.storages))
	for n := range m.storages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) get(name string) ErasedStorage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storages[name]
}

// AffectedKinds returns, in a stable order, the cell kinds that have at
// least one registered storage and are affected by a sew/unsew at
// dimension dim (§4.5's affect table). Callers use this to know which
// cell ids to compute before and after the β update.
func (m *Manager) AffectedKinds(dim types.Dimension) []types.CellKind {
	seen := map[types.CellKind]bool{}
	var kinds []types.CellKind
	for _, name := range m.names() {
		k := m.get(name).Bind()
		if seen[k] || !types.AffectedByDim(k, dim) {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds
}

// MergeKind dispatches Merge to every registered storage bound to kind.
// The caller supplies kind-specific cell ids: newKey/k1/k2 are only
// meaningful within that one cell kind's id space.
func (m *Manager) MergeKind(tx *stm.Txn, kind types.CellKind, newKey, k1, k2 types.DartID) error {
	for _, name := range m.names() {
		st := m.get(name)
		if st.Bind() != kind {
			continue
		}
		if err := st.MergeAt(tx, newKey, k1, k2); err != nil {
			return err
		}
	}
	return nil
}

// SplitKind dispatches Split to every registered storage bound to kind.
func (m *Manager) SplitKind(tx *stm.Txn, kind types.CellKind, newK1, newK2, src types.DartID) error {
	for _, name := range m.names() {
		st := m.get(name)
		if st.Bind() != kind {
			continue
		}
		if err := st.SplitAt(tx, newK1, newK2, src); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAllAt clears every registered storage's value at key (used when a
// dart is removed and I4 requires it carry no attribute value).
func (m *Manager) RemoveAllAt(tx *stm.Txn, key types.DartID) error {
	for _, name := range m.names() {
		if err := m.get(name).RemoveAt(tx, key); err != nil {
			return err
		}
	}
	return nil
}
