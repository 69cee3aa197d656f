package vtkio

import (
	"fmt"
	"sort"

	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/cmap"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

func positionSpec() attribute.Spec[[]float64] {
	return attribute.Spec[[]float64]{
		Bind: types.CellVertex,
		Merge: func(a, b []float64) ([]float64, error) {
			out := make([]float64, len(a))
			for i := range a {
				out[i] = (a[i] + b[i]) / 2
			}
			return out, nil
		},
		Split: func(v []float64) ([]float64, []float64, error) {
			return append([]float64(nil), v...), append([]float64(nil), v...), nil
		},
	}
}

// buildMap constructs a map of the given dimension from the parsed grid,
// dispatching to the per-cell-type topology builder.
func buildMap(dim types.Dimension, cellType vtkCellType, g *grid) (*cmap.Map, *attribute.Storage[[]float64], error) {
	m, err := cmap.New(dim)
	if err != nil {
		return nil, nil, err
	}
	positions := attribute.Register(m.Attrs(), m.Runtime(), PositionName, positionSpec())

	var buildErr error
	switch cellType {
	case cellLine:
		buildErr = buildLines(m, positions, g)
	case cellTriangle:
		buildErr = buildTriangles(m, positions, g)
	case cellTetra:
		buildErr = buildTetrahedra(m, positions, g)
	}
	if buildErr != nil {
		return nil, nil, buildErr
	}
	return m, positions, nil
}

// pointDart remembers, for each VTK point index, one representative dart
// whose origin is that point — enough to recover the point's canonical
// vertex cell id after gluing, since every dart on the same vertex orbit
// resolves to the same cell id.
type pointDart map[int]types.DartID

func writeAllPositions(m *cmap.Map, positions *attribute.Storage[[]float64], g *grid, pd pointDart) error {
	return stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		for p, d := range pd {
			id, err := m.CellID(tx, types.CellVertex, d)
			if err != nil {
				return err
			}
			if err := positions.Write(tx, id, g.points[p]); err != nil {
				return err
			}
		}
		return nil
	})
}

// buildLines builds a 1-map: each line cell becomes two darts joined by a
// dim-1 sew, and consecutive line cells sharing an endpoint are sewn into a
// single chain.
func buildLines(m *cmap.Map, positions *attribute.Storage[[]float64], g *grid) error {
	pd := pointDart{}
	var lastEnd types.DartID
	var lastEndPoint = -1

	for _, c := range g.cellCorns {
		if len(c) != 2 {
			return fmt.Errorf("%w: LINE cell must have exactly 2 points, got %d", ErrSerialization, len(c))
		}
		var a, b types.DartID
		if err := stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
			var err error
			a, err = m.AddDart(tx)
			if err != nil {
				return err
			}
			b, err = m.AddDart(tx)
			return err
		}); err != nil {
			return err
		}
		if err := m.ForceSew(1, a, b); err != nil {
			return err
		}
		if _, ok := pd[c[0]]; !ok {
			pd[c[0]] = a
		}
		if _, ok := pd[c[1]]; !ok {
			pd[c[1]] = b
		}
		if lastEndPoint == c[0] {
			if err := m.ForceSew(1, lastEnd, a); err != nil {
				return err
			}
		}
		lastEnd, lastEndPoint = b, c[1]
	}
	return writeAllPositions(m, positions, g, pd)
}

// edgeKey canonicalizes an undirected edge (p, q).
type edgeKey struct{ lo, hi int }

func makeEdgeKey(p, q int) edgeKey {
	if p < q {
		return edgeKey{p, q}
	}
	return edgeKey{q, p}
}

// buildTriangles builds a 2-map: each triangle becomes a 3-dart β[1] face
// cycle, and shared edges between triangles (opposite winding) are glued
// with a dim-2 sew.
func buildTriangles(m *cmap.Map, positions *attribute.Storage[[]float64], g *grid) error {
	pd := pointDart{}
	// edgeDarts[key] holds the dart(s) created for that undirected edge,
	// in the direction each owning triangle walked it.
	edgeDarts := map[edgeKey][]types.DartID{}
	edgeDir := map[edgeKey][][2]int{} // matching directed (from,to) per dart, same index as edgeDarts

	for _, c := range g.cellCorns {
		if len(c) != 3 {
			return fmt.Errorf("%w: TRIANGLE cell must have exactly 3 points, got %d", ErrSerialization, len(c))
		}
		var darts [3]types.DartID
		if err := stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
			all, err := m.AddDarts(tx, 3)
			if err != nil {
				return err
			}
			copy(darts[:], all)
			return nil
		}); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if err := m.ForceSew(1, darts[i], darts[(i+1)%3]); err != nil {
				return err
			}
		}
		for i, p := range c {
			if _, ok := pd[p]; !ok {
				pd[p] = darts[i]
			}
			from, to := c[i], c[(i+1)%3]
			key := makeEdgeKey(from, to)
			edgeDarts[key] = append(edgeDarts[key], darts[i])
			edgeDir[key] = append(edgeDir[key], [2]int{from, to})
		}
	}

	for key, darts := range edgeDarts {
		if len(darts) != 2 {
			continue // boundary edge, or a non-manifold edge we leave unglued
		}
		dirs := edgeDir[key]
		if dirs[0][0] == dirs[1][1] && dirs[0][1] == dirs[1][0] {
			if err := m.ForceSew(2, darts[0], darts[1]); err != nil {
				return err
			}
		}
	}

	return writeAllPositions(m, positions, g, pd)
}

// faceKey canonicalizes an undirected triangular face (3 point ids).
type faceKey [3]int

func makeFaceKey(a, b, c int) faceKey {
	s := []int{a, b, c}
	sort.Ints(s)
	return faceKey{s[0], s[1], s[2]}
}

// tetFaces lists the four local faces of a tetrahedron, by corner index,
// in the standard VTK_TETRA local numbering.
var tetFaces = [4][3]int{
	{0, 1, 2},
	{0, 1, 3},
	{0, 2, 3},
	{1, 2, 3},
}

// buildTetrahedra builds a 3-map: every tet is decomposed into its four
// triangular faces (each a 3-dart β[1] cycle), and shared faces between
// two tets are glued with a dim-3 sew.
func buildTetrahedra(m *cmap.Map, positions *attribute.Storage[[]float64], g *grid) error {
	pd := pointDart{}
	// faceDarts[key] holds, for each owning face instance, its
	// representative dart (the dart at the face's first corner).
	faceDarts := map[faceKey][]types.DartID{}

	for _, c := range g.cellCorns {
		if len(c) != 4 {
			return fmt.Errorf("%w: TETRA cell must have exactly 4 points, got %d", ErrSerialization, len(c))
		}
		for _, f := range tetFaces {
			p0, p1, p2 := c[f[0]], c[f[1]], c[f[2]]
			var darts [3]types.DartID
			if err := stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
				all, err := m.AddDarts(tx, 3)
				if err != nil {
					return err
				}
				copy(darts[:], all)
				return nil
			}); err != nil {
				return err
			}
			for i := 0; i < 3; i++ {
				if err := m.ForceSew(1, darts[i], darts[(i+1)%3]); err != nil {
					return err
				}
			}
			corners := [3]int{p0, p1, p2}
			for i, p := range corners {
				if _, ok := pd[p]; !ok {
					pd[p] = darts[i]
				}
			}
			key := makeFaceKey(p0, p1, p2)
			faceDarts[key] = append(faceDarts[key], darts[0])
		}
	}

	for _, darts := range faceDarts {
		if len(darts) != 2 {
			continue // boundary face
		}
		if err := m.ForceSew(3, darts[0], darts[1]); err != nil {
			return err
		}
	}

	return writeAllPositions(m, positions, g, pd)
}
