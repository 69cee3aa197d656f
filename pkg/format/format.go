// Package format implements the §6.2 custom textual dump: a four-section
// encoding of a map's β table, unused set, and vertex positions, with full
// structural and invariant validation on decode.
package format

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/cmap"
	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

// ErrSerialization is returned for any shape or invariant violation found
// while decoding (§7's SerializationError).
var ErrSerialization = errors.New("format: serialization constraint violated")

// PositionName is the attribute name under which Decode registers the
// vertex-position storage it builds, and the name Encode expects it under
// when not given an explicit storage.
const PositionName = "position"

// PositionSpec returns the attribute laws used for vertex positions:
// merge averages the two coordinate vectors, split copies the merged
// value to both new cells (component-wise equal split, §9's documented
// tie-break: never synthesize, always total for the type).
func PositionSpec() attribute.Spec[[]float64] {
	return attribute.Spec[[]float64]{
		Bind: types.CellVertex,
		Merge: func(a, b []float64) ([]float64, error) {
			if len(a) != len(b) {
				return nil, fmt.Errorf("position merge: dimension mismatch %d vs %d", len(a), len(b))
			}
			out := make([]float64, len(a))
			for i := range a {
				out[i] = (a[i] + b[i]) / 2
			}
			return out, nil
		},
		Split: func(v []float64) ([]float64, []float64, error) {
			a := append([]float64(nil), v...)
			b := append([]float64(nil), v...)
			return a, b, nil
		},
	}
}

// document is the parsed, not-yet-validated shape of a dump.
type document struct {
	version int
	dim     types.Dimension
	n       int
	betas   [][]types.DartID
	unused  []types.DartID
	// vertices maps a claimed cell id to its coordinate vector, in the
	// order the section listed them.
	order    []types.DartID
	vertices map[types.DartID][]float64
}

// Encode writes m and its vertex positions in the §6.2 format. positions
// should be a CellVertex-bound storage; only canonical cell ids (the
// minimum dart of their orbit) with a value present are written.
func Encode(w io.Writer, m *cmap.Map, positions *attribute.Storage[[]float64]) error {
	bw := bufio.NewWriter(w)

	stats := m.Stats()
	n := stats.NumDarts
	dim := types.Dimension(stats.Dim)

	fmt.Fprintf(bw, "[META]\n1 %d %d\n\n", int(dim), n)

	fmt.Fprintln(bw, "[BETAS]")
	for i := types.Dimension(0); i <= dim; i++ {
		row := make([]string, n+1)
		row[0] = "0"
		for d := 1; d <= n; d++ {
			row[d] = strconv.Itoa(int(m.Beta(i, types.DartID(d))))
		}
		fmt.Fprintln(bw, strings.Join(row, " "))
	}
	fmt.Fprintln(bw)

	unused := m.UnusedPeek()
	if len(unused) > 0 {
		fmt.Fprintln(bw, "[UNUSED]")
		parts := make([]string, len(unused))
		for i, d := range unused {
			parts[i] = strconv.Itoa(int(d))
		}
		fmt.Fprintln(bw, strings.Join(parts, " "))
		fmt.Fprintln(bw)
	}

	fmt.Fprintln(bw, "[VERTICES]")
	for d := 1; d <= n; d++ {
		dart := types.DartID(d)
		if m.CellIDPeek(types.CellVertex, dart) != dart {
			continue
		}
		v, ok := positions.Peek(dart)
		if !ok {
			continue
		}
		parts := make([]string, len(v)+1)
		parts[0] = strconv.Itoa(int(dart))
		for i, c := range v {
			parts[i+1] = strconv.FormatFloat(c, 'g', -1, 64)
		}
		fmt.Fprintln(bw, strings.Join(parts, " "))
	}

	return bw.Flush()
}

// Decode parses r, validates its shape and β invariants, and builds a
// fresh map with a "position" vertex attribute storage registered.
func Decode(r io.Reader) (*cmap.Map, *attribute.Storage[[]float64], error) {
	doc, err := parse(r)
	if err != nil {
		return nil, nil, err
	}
	if err := validate(doc); err != nil {
		return nil, nil, err
	}

	m, err := cmap.LoadRaw(doc.dim, doc.betas, doc.unused)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	positions := attribute.Register(m.Attrs(), m.Runtime(), PositionName, PositionSpec())
	err = stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
		for _, id := range doc.order {
			if err := positions.Write(tx, id, doc.vertices[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return m, positions, nil
}
