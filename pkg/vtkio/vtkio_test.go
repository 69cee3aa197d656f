package vtkio_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
	"github.com/cuemby/cmap/pkg/vtkio"
)

const twoTriangles = `# vtk DataFile Version 3.0
two fused triangles
ASCII
DATASET UNSTRUCTURED_GRID
POINTS 4 float
0 0 0
1 0 0
1 1 0
0 1 0
CELLS 2 8
3 0 1 2
3 0 2 3
CELL_TYPES 2
5
5
`

func TestDecodeTriangleMeshGluesSharedEdge(t *testing.T) {
	m, positions, err := vtkio.Decode(strings.NewReader(twoTriangles))
	require.NoError(t, err)
	assert.Equal(t, types.Dimension(2), m.Dim())

	stats := m.Stats()
	assert.Equal(t, 6, stats.NumDarts)

	// The shared edge (0,2) is 2-sewn: one dart of each triangle gains a β[2].
	glued := 0
	for d := types.DartID(1); d <= types.DartID(stats.NumDarts); d++ {
		if m.Beta(2, d) != types.NullDart {
			glued++
		}
	}
	assert.Equal(t, 2, glued)

	require.NoError(t, stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		found := false
		for d := types.DartID(1); d <= types.DartID(stats.NumDarts); d++ {
			v, ok, err := positions.Read(tx, d)
			if err != nil {
				return err
			}
			if ok && v[0] == 1 && v[1] == 1 {
				found = true
			}
		}
		assert.True(t, found, "shared corner (1,1,0) should have a position entry")
		return nil
	}))
}

func TestDecodeRejectsNonLegacyHeader(t *testing.T) {
	_, _, err := vtkio.Decode(strings.NewReader("not a vtk file\n"))
	assert.ErrorIs(t, err, vtkio.ErrSerialization)
}

func TestDecodeRejectsNonUnstructuredGrid(t *testing.T) {
	doc := `# vtk DataFile Version 3.0
title
ASCII
DATASET POLYDATA
`
	_, _, err := vtkio.Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, vtkio.ErrSerialization)
}

func TestDecodeRejectsCellsCellTypesMismatch(t *testing.T) {
	doc := `# vtk DataFile Version 3.0
title
ASCII
DATASET UNSTRUCTURED_GRID
POINTS 3 float
0 0 0
1 0 0
0 1 0
CELLS 1 4
3 0 1 2
CELL_TYPES 2
5
5
`
	_, _, err := vtkio.Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, vtkio.ErrSerialization)
}

func TestDecodeRejectsUnsupportedCellType(t *testing.T) {
	doc := `# vtk DataFile Version 3.0
title
ASCII
DATASET UNSTRUCTURED_GRID
POINTS 3 float
0 0 0
1 0 0
0 1 0
CELLS 1 4
3 0 1 2
CELL_TYPES 1
2
`
	_, _, err := vtkio.Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, vtkio.ErrSerialization)
}

func TestDecodeRejectsMixedCellTypes(t *testing.T) {
	doc := `# vtk DataFile Version 3.0
title
ASCII
DATASET UNSTRUCTURED_GRID
POINTS 5 float
0 0 0
1 0 0
0 1 0
1 1 0
2 2 0
CELLS 2 8
3 0 1 2
3 1 3 4
CELL_TYPES 2
5
3
`
	_, _, err := vtkio.Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, vtkio.ErrSerialization)
}
