package cmap

import (
	"fmt"

	"github.com/cuemby/cmap/pkg/log"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// Link performs the topology-only β update of §4.5 at dimension i between
// darts a and b. It never touches attribute storage; see Sew for the
// attribute-merging counterpart.
func (m *Map) Link(tx *stm.Txn, i types.Dimension, a, b types.DartID) error {
	if err := m.checkDim(i); err != nil {
		return err
	}
	var err error
	switch i {
	case 1:
		err = m.link1(tx, a, b)
	case 2:
		err = m.link2(tx, a, b)
	case 3:
		err = m.link3(tx, a, b)
	default:
		return fmt.Errorf("%w: unsupported link dimension %d", ErrLink, i)
	}
	if err != nil {
		return err
	}
	m.log.Debug().Int("dim", int(i)).Uint32("a", uint32(a)).Uint32("b", uint32(b)).Msg("linked darts")
	return nil
}

// link1 requires a != 0, b != 0, a 1-free, b 0-free, then sets
// β[1](a) = b and β[0](b) = a.
func (m *Map) link1(tx *stm.Txn, a, b types.DartID) error {
	if a == types.NullDart || b == types.NullDart {
		return fmt.Errorf("%w: dim-1 link forbids the NULL dart", ErrLink)
	}
	free1, err := m.darts.IsFree(tx, 1, a)
	if err != nil {
		return err
	}
	if !free1 {
		return fmt.Errorf("%w: dart %d is not 1-free", ErrLink, a)
	}
	free0, err := m.darts.IsFree(tx, 0, b)
	if err != nil {
		return err
	}
	if !free0 {
		return fmt.Errorf("%w: dart %d is not 0-free", ErrLink, b)
	}
	if err := m.darts.SetBeta(tx, 1, a, b); err != nil {
		return err
	}
	return m.darts.SetBeta(tx, 0, b, a)
}

// link2 requires a != 0, b != 0, both 2-free, then sets the involution
// β[2](a) = b and β[2](b) = a.
func (m *Map) link2(tx *stm.Txn, a, b types.DartID) error {
	if a == types.NullDart || b == types.NullDart {
		return fmt.Errorf("%w: dim-2 link forbids the NULL dart", ErrLink)
	}
	freeA, err := m.darts.IsFree(tx, 2, a)
	if err != nil {
		return err
	}
	if !freeA {
		return fmt.Errorf("%w: dart %d is not 2-free", ErrLink, a)
	}
	freeB, err := m.darts.IsFree(tx, 2, b)
	if err != nil {
		return err
	}
	if !freeB {
		return fmt.Errorf("%w: dart %d is not 2-free", ErrLink, b)
	}
	if err := m.darts.SetBeta(tx, 2, a, b); err != nil {
		return err
	}
	return m.darts.SetBeta(tx, 2, b, a)
}

// link3 is the involution on β[3], with the additional per-orbit alignment
// check decided in SPEC_FULL.md's Open Question: the β[1]-orbits of a's and
// b's 2-cells must have equal length and be alignable by walking β[1] from
// a and from b in lockstep, one forward and one backward.
func (m *Map) link3(tx *stm.Txn, a, b types.DartID) error {
	if a == types.NullDart || b == types.NullDart {
		return fmt.Errorf("%w: dim-3 link forbids the NULL dart", ErrLink)
	}
	freeA, err := m.darts.IsFree(tx, 3, a)
	if err != nil {
		return err
	}
	if !freeA {
		return fmt.Errorf("%w: dart %d is not 3-free", ErrLink, a)
	}
	freeB, err := m.darts.IsFree(tx, 3, b)
	if err != nil {
		return err
	}
	if !freeB {
		return fmt.Errorf("%w: dart %d is not 3-free", ErrLink, b)
	}
	if err := m.check3SewAlignment(tx, a, b); err != nil {
		return err
	}
	if err := m.darts.SetBeta(tx, 3, a, b); err != nil {
		return err
	}
	return m.darts.SetBeta(tx, 3, b, a)
}

// check3SewAlignment walks β[1] forward from a and backward (β[0]) from b
// in lockstep. At each step the two walks must either both be NULL (both
// sides 1-free/0-free at the matching rim position) or both non-NULL; any
// mismatch violates I1/I2 once β[3] is installed, so the 3-link is rejected.
// The two face orbits must first have the same length; the walk is then
// bounded by that length so a malformed map can never loop forever.
func (m *Map) check3SewAlignment(tx *stm.Txn, a, b types.DartID) error {
	orbitA, err := m.Orbit(tx, types.CellFace, a)
	if err != nil {
		return err
	}
	bound := len(orbitA)
	orbitB, err := m.Orbit(tx, types.CellFace, b)
	if err != nil {
		return err
	}
	if len(orbitB) != bound {
		return fmt.Errorf("%w: dim-3 link between %d and %d joins faces of different lengths (%d vs %d)", ErrLink, a, b, bound, len(orbitB))
	}

	fwd, back := a, b
	for step := 0; step < bound; step++ {
		nextFwd, err := m.darts.Beta(tx, 1, fwd)
		if err != nil {
			return err
		}
		prevBack, err := m.darts.Beta(tx, 0, back)
		if err != nil {
			return err
		}
		if (nextFwd == types.NullDart) != (prevBack == types.NullDart) {
			return fmt.Errorf("%w: dim-3 link between %d and %d fails the β[1] alignment check at step %d", ErrLink, a, b, step)
		}
		if nextFwd == types.NullDart {
			break
		}
		fwd, back = nextFwd, prevBack
	}
	return nil
}

// Unlink reverses the β relation that dart d holds at dimension i, per
// §4.5 ("Unlink reverses the relevant β assignments and verifies the
// relation is currently present").
func (m *Map) Unlink(tx *stm.Txn, i types.Dimension, d types.DartID) error {
	if err := m.checkDim(i); err != nil {
		return err
	}
	var err error
	switch i {
	case 1:
		err = m.unlink1(tx, d)
	case 2:
		err = m.unlink2(tx, d)
	case 3:
		err = m.unlink3(tx, d)
	default:
		return fmt.Errorf("%w: unsupported unlink dimension %d", ErrLink, i)
	}
	if err != nil {
		return err
	}
	log.WithDart(m.log, uint32(d)).Debug().Int("dim", int(i)).Msg("unlinked dart")
	return nil
}

func (m *Map) unlink1(tx *stm.Txn, d types.DartID) error {
	b, err := m.darts.Beta(tx, 1, d)
	if err != nil {
		return err
	}
	if b == types.NullDart {
		return fmt.Errorf("%w: dart %d has no β[1] relation to unlink", ErrLink, d)
	}
	if err := m.darts.SetBeta(tx, 1, d, types.NullDart); err != nil {
		return err
	}
	return m.darts.SetBeta(tx, 0, b, types.NullDart)
}

func (m *Map) unlink2(tx *stm.Txn, d types.DartID) error {
	b, err := m.darts.Beta(tx, 2, d)
	if err != nil {
		return err
	}
	if b == types.NullDart {
		return fmt.Errorf("%w: dart %d has no β[2] relation to unlink", ErrLink, d)
	}
	if err := m.darts.SetBeta(tx, 2, d, types.NullDart); err != nil {
		return err
	}
	return m.darts.SetBeta(tx, 2, b, types.NullDart)
}

func (m *Map) unlink3(tx *stm.Txn, d types.DartID) error {
	b, err := m.darts.Beta(tx, 3, d)
	if err != nil {
		return err
	}
	if b == types.NullDart {
		return fmt.Errorf("%w: dart %d has no β[3] relation to unlink", ErrLink, d)
	}
	if err := m.darts.SetBeta(tx, 3, d, types.NullDart); err != nil {
		return err
	}
	return m.darts.SetBeta(tx, 3, b, types.NullDart)
}
