// Package types holds the shared vocabulary of the combinatorial-map core:
// dart identifiers, dimensions, orbit policies, and attribute bind policies.
// It has no behavior of its own so that stm, dartstore, orbit, attribute,
// and cmap can all depend on it without import cycles.
package types

import "fmt"

// DartID identifies a dart. Zero is the permanent NULL dart.
type DartID uint32

// NullDart is the reserved, permanently-allocated NULL dart.
const NullDart DartID = 0

// Dimension is a β relation index, 0 through N.
type Dimension int

// MaxDimension is the highest β dimension this core supports (3-maps).
const MaxDimension Dimension = 3

// CellKind names the orbit classes used to bind attribute storages.
type CellKind int

const (
	// CellVertex is the 0-cell: orbit under {β[j]∘β[k] : 1<=j<k<=N}.
	CellVertex CellKind = iota
	// CellEdge is the 1-cell: orbit under {β[2],...,β[N]}.
	CellEdge
	// CellFace is the 2-cell: orbit under {β[1],β[3],...,β[N]}.
	CellFace
	// CellVolume is the 3-cell: orbit under {β[1],β[2],β[4],...,β[N]}.
	CellVolume
	// CellCustom lets an attribute bind to a caller-supplied OrbitPolicy
	// instead of one of the named i-cells above.
	CellCustom
)

func (k CellKind) String() string {
	switch k {
	case CellVertex:
		return "vertex"
	case CellEdge:
		return "edge"
	case CellFace:
		return "face"
	case CellVolume:
		return "volume"
	case CellCustom:
		return "custom"
	default:
		return fmt.Sprintf("CellKind(%d)", int(k))
	}
}

// OrbitPolicy names the closure an orbit walk computes. Steps lists, in
// declared order, the function-application sequences to try at each
// visited dart: a single-dimension step [m] applies β[m] directly (used by
// i-cells, i>=1); a two-dimension step [k, j] applies β[k] then β[j],
// i.e. computes β[j]∘β[k] (used by the 0-cell/vertex orbit, whose
// generators are compositions per §3). orbit.Walk visits neighbors in
// the declared step order, which is part of the deterministic traversal
// order required by §4.4.
type OrbitPolicy struct {
	Name  string
	Steps [][]Dimension
}

// cellOrbitPolicy builds the i-cell (i>=1) OrbitPolicy for an
// N-dimensional map: a single-step closure over every β dimension except i,
// from 1..N.
func cellOrbitPolicy(name string, n Dimension, exclude Dimension) OrbitPolicy {
	steps := make([][]Dimension, 0, int(n))
	for d := Dimension(1); d <= n; d++ {
		if d != exclude {
			steps = append(steps, []Dimension{d})
		}
	}
	return OrbitPolicy{Name: name, Steps: steps}
}

// VertexOrbit returns the 0-cell orbit policy for an N-dimensional map:
// the closure under every composition β[j]∘β[k] for 1<=j<k<=N (§3).
func VertexOrbit(n Dimension) OrbitPolicy {
	var steps [][]Dimension
	for j := Dimension(1); j <= n; j++ {
		for k := j + 1; k <= n; k++ {
			steps = append(steps, []Dimension{k, j})
		}
	}
	return OrbitPolicy{Name: "vertex", Steps: steps}
}

// EdgeOrbit returns the 1-cell orbit policy for an N-dimensional map.
func EdgeOrbit(n Dimension) OrbitPolicy { return cellOrbitPolicy("edge", n, 1) }

// FaceOrbit returns the 2-cell orbit policy for an N-dimensional map.
func FaceOrbit(n Dimension) OrbitPolicy { return cellOrbitPolicy("face", n, 2) }

// VolumeOrbit returns the 3-cell orbit policy for an N-dimensional map.
func VolumeOrbit(n Dimension) OrbitPolicy { return cellOrbitPolicy("volume", n, 3) }

// CellOrbit returns the orbit policy for cells of the given kind, in an
// N-dimensional map.
func CellOrbit(kind CellKind, n Dimension) OrbitPolicy {
	switch kind {
	case CellVertex:
		return VertexOrbit(n)
	case CellEdge:
		return EdgeOrbit(n)
	case CellFace:
		return FaceOrbit(n)
	case CellVolume:
		return VolumeOrbit(n)
	default:
		return OrbitPolicy{Name: kind.String()}
	}
}

// AffectedByDim reports whether a sew/unsew at dimension `sewDim` merges or
// splits the j-cell identified by `kind`, per the §4.5 affect table.
func AffectedByDim(kind CellKind, sewDim Dimension) bool {
	switch kind {
	case CellVertex:
		return sewDim >= 1
	case CellEdge:
		return sewDim >= 2
	case CellFace:
		return sewDim >= 3
	case CellVolume:
		return false
	default:
		return false
	}
}
