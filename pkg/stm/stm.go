// Package stm implements the software-transactional-memory runtime described
// in spec §4.1: transactional variables (TVars) with optimistic,
// TL2-style concurrency control — read/write logs, a global version clock,
// write-set locking in a total order, read-set validation, and automatic
// retry under Atomically.
//
// The algorithm (sample clock, speculate, lock write-set, bump clock,
// validate read-set, publish, unlock) is the classic transactional-locking
// scheme; this implementation adds a deadlock-free total lock order over
// the write-set (sorted by TVar identity) which a bare map-iteration lock
// order does not guarantee.
package stm

import (
	"errors"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/cmap/pkg/log"
)

// ErrTransactionConflict is the STM's internal conflict signal. Atomically
// recovers it locally and retries; TryAtomically surfaces it to the caller.
var ErrTransactionConflict = errors.New("stm: transaction conflict")

// Runtime owns the global version clock and the TVar id sequence for one
// map instance. It is not a package-level singleton: callers construct one
// Runtime per Map (§9 "process-wide singletons are disallowed").
type Runtime struct {
	clock atomic.Uint64
	idSeq atomic.Uint64

	// Best-effort counters for pkg/metrics to poll (§5 non-transactional
	// reads are permitted for best-effort queries); never consulted to
	// decide a mutating action.
	commits   atomic.Uint64
	retries   atomic.Uint64
	conflicts atomic.Uint64

	log zerolog.Logger
}

// RuntimeStats is a non-transactional snapshot of a runtime's commit/retry
// activity, for pkg/metrics.
type RuntimeStats struct {
	Commits   uint64
	Retries   uint64
	Conflicts uint64
}

// Stats returns a snapshot of this runtime's counters.
func (rt *Runtime) Stats() RuntimeStats {
	return RuntimeStats{
		Commits:   rt.commits.Load(),
		Retries:   rt.retries.Load(),
		Conflicts: rt.conflicts.Load(),
	}
}

// NewRuntime creates a fresh STM runtime with its version clock at zero.
func NewRuntime() *Runtime {
	return &Runtime{log: log.WithComponent("stm")}
}

func (rt *Runtime) nextID() uint64 {
	return rt.idSeq.Add(1)
}

// versionLock packs a locked flag into the top bit of a 64-bit word and a
// version number into the remaining 63 bits, following the classic
// versioned write-lock used by transactional-locking STMs.
type versionLock struct {
	word atomic.Uint64
}

const lockedBit = uint64(1) << 63

func (l *versionLock) load() (locked bool, version uint64) {
	v := l.word.Load()
	return v&lockedBit != 0, v &^ lockedBit
}

func (l *versionLock) tryAcquire() bool {
	for {
		v := l.word.Load()
		if v&lockedBit != 0 {
			return false
		}
		if l.word.CompareAndSwap(v, v|lockedBit) {
			return true
		}
	}
}

func (l *versionLock) commit(version uint64) {
	l.word.Store(version)
}

func (l *versionLock) release() {
	v := l.word.Load()
	l.word.Store(v &^ lockedBit)
}

// tvar is the type-erased capability every TVar[T] exposes to the Txn log,
// so a single transaction can mix TVars of different payload types.
type tvar interface {
	varID() uint64
	snapshot() (locked bool, version uint64)
	tryLock() bool
	unlock()
	publish(value any, version uint64)
}

// TVar is a transactional variable holding a value of type T.
type TVar[T any] struct {
	id   uint64
	lock versionLock
	val  atomic.Pointer[T]
}

// NewVar creates a TVar holding v, registered against rt for lock ordering.
func NewVar[T any](rt *Runtime, v T) *TVar[T] {
	tv := &TVar[T]{id: rt.nextID()}
	tv.val.Store(&v)
	return tv
}

func (tv *TVar[T]) varID() uint64 { return tv.id }

func (tv *TVar[T]) snapshot() (bool, uint64) { return tv.lock.load() }

func (tv *TVar[T]) tryLock() bool { return tv.lock.tryAcquire() }

func (tv *TVar[T]) unlock() { tv.lock.release() }

func (tv *TVar[T]) publish(value any, version uint64) {
	v := value.(T)
	tv.val.Store(&v)
	tv.lock.commit(version)
}

// readEntry records the version a TVar was observed at, so commit can
// validate that no concurrent writer touched it since.
type readEntry struct {
	v   tvar
	ver uint64
}

type writeEntry struct {
	v     tvar
	value any
}

// Txn is a single attempt's read/write log. A Txn must not be shared across
// goroutines or reused after Atomically/TryAtomically returns.
type Txn struct {
	rt     *Runtime
	id     uuid.UUID
	rv     uint64
	reads  []readEntry
	writes map[uint64]writeEntry
}

// ID returns the transaction's id, stable for the lifetime of one attempt
// — useful for correlating retries in logs and metrics.
func (tx *Txn) ID() uuid.UUID { return tx.id }

func (tx *Txn) reset(rt *Runtime) {
	tx.rt = rt
	tx.id = uuid.New()
	tx.rv = rt.clock.Load()
	tx.reads = tx.reads[:0]
	clear(tx.writes)
}

// Read records tv in the transaction's read log and returns its value as
// observed at the transaction's snapshot version (or the transaction's own
// pending write, honoring read-your-writes). Read returns
// ErrTransactionConflict when the TVar was concurrently locked or modified;
// callers inside an Atomically closure should propagate the error unchanged
// so the driver can retry.
func Read[T any](tx *Txn, tv *TVar[T]) (T, error) {
	var zero T
	if w, ok := tx.writes[tv.id]; ok {
		return w.value.(T), nil
	}

	locked, v1 := tv.lock.load()
	if locked || v1 > tx.rv {
		return zero, ErrTransactionConflict
	}

	val := *tv.val.Load()

	locked2, v2 := tv.lock.load()
	if locked2 || v1 != v2 || v2 > tx.rv {
		return zero, ErrTransactionConflict
	}

	tx.reads = append(tx.reads, readEntry{v: tv, ver: v1})
	return val, nil
}

// Write records a pending write to tv in the transaction's write log. The
// value is not visible to other transactions until commit.
func Write[T any](tx *Txn, tv *TVar[T], value T) {
	if tx.writes == nil {
		tx.writes = make(map[uint64]writeEntry, 4)
	}
	tx.writes[tv.id] = writeEntry{v: tv, value: value}
}

// Peek reads a TVar's current value without participating in any
// transaction. It is the non-transactional escape hatch spec §4.4/§6.1
// reserve for best-effort queries (e.g. id enumeration, diagnostics) — the
// result may be torn relative to concurrent writers and must never be used
// to decide an action that mutates state.
func Peek[T any](tv *TVar[T]) T {
	return *tv.val.Load()
}

// Atomically runs f against a fresh Txn until it commits. A nil return from
// f is attempted for commit; ErrTransactionConflict observed during the
// closure (from Read) or during commit validation causes a full, silent
// retry — f is re-executed from scratch. Any other error returned by f
// aborts cleanly: no writes are installed, and the error is propagated to
// the caller unchanged.
func Atomically(rt *Runtime, f func(*Txn) error) error {
	var tx Txn
	for attempt := 0; ; attempt++ {
		tx.reset(rt)
		err := f(&tx)
		if errors.Is(err, ErrTransactionConflict) {
			rt.retries.Add(1)
			log.WithTxnID(rt.log, tx.ID().String()).Debug().Int("attempt", attempt).Msg("retrying after read-set conflict")
			backoff(attempt)
			continue
		}
		if err != nil {
			return err
		}

		if len(tx.writes) == 0 {
			rt.commits.Add(1)
			log.WithTxnID(rt.log, tx.ID().String()).Debug().Msg("committed read-only transaction")
			return nil
		}

		committed, conflict := tryCommit(rt, &tx)
		if committed {
			rt.commits.Add(1)
			log.WithTxnID(rt.log, tx.ID().String()).Debug().Int("writes", len(tx.writes)).Msg("committed transaction")
			return nil
		}
		if conflict {
			rt.retries.Add(1)
			log.WithTxnID(rt.log, tx.ID().String()).Debug().Int("attempt", attempt).Msg("retrying after commit conflict")
			backoff(attempt)
			continue
		}
		return nil
	}
}

// TryAtomically runs f exactly once. A commit conflict is surfaced as
// ErrTransactionConflict instead of being retried, so the caller can
// compose Atomically-style retry logic of its own (e.g. from within an
// enclosing transaction, or with caller-specific backoff).
func TryAtomically(rt *Runtime, f func(*Txn) error) error {
	var tx Txn
	tx.reset(rt)

	err := f(&tx)
	if err != nil {
		if errors.Is(err, ErrTransactionConflict) {
			rt.conflicts.Add(1)
			log.WithTxnID(rt.log, tx.ID().String()).Debug().Msg("conflict surfaced to caller")
		}
		return err
	}

	if len(tx.writes) == 0 {
		rt.commits.Add(1)
		log.WithTxnID(rt.log, tx.ID().String()).Debug().Msg("committed read-only transaction")
		return nil
	}

	committed, conflict := tryCommit(rt, &tx)
	if committed {
		rt.commits.Add(1)
		log.WithTxnID(rt.log, tx.ID().String()).Debug().Int("writes", len(tx.writes)).Msg("committed transaction")
		return nil
	}
	if conflict {
		rt.conflicts.Add(1)
		log.WithTxnID(rt.log, tx.ID().String()).Debug().Msg("conflict surfaced to caller")
		return ErrTransactionConflict
	}
	return nil
}

// tryCommit acquires the write-set in a total order by TVar identity,
// bumps the global clock, validates the read-set, publishes, and releases
// locks. It returns (true, false) on success and (false, true) on a
// detected conflict (all acquired locks are released either way).
func tryCommit(rt *Runtime, tx *Txn) (committed bool, conflict bool) {
	ids := make([]uint64, 0, len(tx.writes))
	for id := range tx.writes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make([]tvar, 0, len(ids))
	defer func() {
		for _, v := range locked {
			v.unlock()
		}
	}()

	for _, id := range ids {
		w := tx.writes[id]
		if !w.v.tryLock() {
			return false, true
		}
		locked = append(locked, w.v)
	}

	writeVersion := rt.clock.Add(1)

	if writeVersion != tx.rv+1 {
		for _, r := range tx.reads {
			stillLocked, version := r.v.snapshot()
			if _, ownedByUs := tx.writes[r.v.varID()]; ownedByUs {
				stillLocked = false // we hold this lock ourselves; the version still counts
			}
			if stillLocked || version > tx.rv {
				return false, true
			}
		}
	}

	for _, id := range ids {
		w := tx.writes[id]
		w.v.publish(w.value, writeVersion)
	}
	return true, false
}

// backoff adds jitter between retries so that threads thrashing on the same
// hot TVars don't immediately re-collide (§5: "Starvation is not addressed
// at this layer; callers may add jitter").
func backoff(attempt int) {
	if attempt == 0 {
		return
	}
	n := attempt
	if n > 6 {
		n = 6
	}
	max := time.Duration(1<<uint(n)) * time.Microsecond * 10
	time.Sleep(time.Duration(rand.Int64N(int64(max) + 1)))
}
