// Package vtkio implements §6.3: deserialization of legacy-format VTK
// UnstructuredGrid datasets (ASCII or binary) into a fresh map, with the
// full rejected-input taxonomy the spec names. There is no VTK writer —
// deserialization is explicitly the only scope.
package vtkio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/cmap"
	"github.com/cuemby/cmap/pkg/types"
)

// ErrSerialization is returned for any shape violation in the input
// (§7's SerializationError).
var ErrSerialization = errors.New("vtkio: serialization constraint violated")

// PositionName is the attribute name the deserializer registers vertex
// positions under.
const PositionName = "position"

// vtkCellType is the legacy VTK cell type code.
type vtkCellType int

const (
	cellVertex   vtkCellType = 1
	cellPolyVert vtkCellType = 2
	cellLine     vtkCellType = 3
	cellPolyLine vtkCellType = 4
	cellTriangle vtkCellType = 5
	cellTetra    vtkCellType = 10
)

// grid is the parsed, not-yet-topologized dataset.
type grid struct {
	points    [][]float64
	cellCorns [][]int
	cellTypes []vtkCellType
}

// Decode parses a legacy VTK UnstructuredGrid and builds a map whose
// dimension and topology are derived from the grid's cell type, which
// must be uniform and compatible with one of the supported dimensions.
func Decode(r io.Reader) (*cmap.Map, *attribute.Storage[[]float64], error) {
	br := bufio.NewReader(r)

	if err := expectLegacyHeader(br); err != nil {
		return nil, nil, err
	}
	if _, err := readLine(br); err != nil { // title line, ignored
		return nil, nil, fmt.Errorf("%w: missing title line", ErrSerialization)
	}
	formatLine, err := readLine(br)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: missing format line", ErrSerialization)
	}
	binaryMode, err := parseFormat(formatLine)
	if err != nil {
		return nil, nil, err
	}
	datasetLine, err := readLine(br)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: missing DATASET line", ErrSerialization)
	}
	if err := expectUnstructuredGrid(datasetLine); err != nil {
		return nil, nil, err
	}

	g, err := parseGrid(br, binaryMode)
	if err != nil {
		return nil, nil, err
	}

	dim, cellType, err := resolveDimension(g.cellTypes)
	if err != nil {
		return nil, nil, err
	}

	return buildMap(dim, cellType, g)
}

func expectLegacyHeader(br *bufio.Reader) error {
	line, err := readLine(br)
	if err != nil {
		return fmt.Errorf("%w: missing legacy VTK header", ErrSerialization)
	}
	if !strings.HasPrefix(strings.TrimSpace(line), "# vtk DataFile") {
		return fmt.Errorf("%w: not a legacy VTK file (missing \"# vtk DataFile\" header)", ErrSerialization)
	}
	return nil
}

func parseFormat(line string) (binaryMode bool, err error) {
	switch strings.ToUpper(strings.TrimSpace(line)) {
	case "ASCII":
		return false, nil
	case "BINARY":
		return true, nil
	default:
		return false, fmt.Errorf("%w: expected ASCII or BINARY, got %q", ErrSerialization, line)
	}
}

func expectUnstructuredGrid(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "DATASET" || fields[1] != "UNSTRUCTURED_GRID" {
		return fmt.Errorf("%w: unsupported dataset kind %q (only UNSTRUCTURED_GRID is accepted)", ErrSerialization, line)
	}
	return nil
}

func readLine(br *bufio.Reader) (string, error) {
	for {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if err != nil {
				return "", err
			}
			continue
		}
		return trimmed, nil
	}
}

func parseGrid(br *bufio.Reader, binaryMode bool) (*grid, error) {
	g := &grid{}
	for {
		line, err := readLine(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "POINTS":
			n, kind, err := parsePointsHeader(fields)
			if err != nil {
				return nil, err
			}
			pts, err := readPoints(br, n, kind, binaryMode)
			if err != nil {
				return nil, err
			}
			g.points = pts
		case "CELLS":
			corns, err := readCells(br, fields, binaryMode)
			if err != nil {
				return nil, err
			}
			g.cellCorns = corns
		case "CELL_TYPES":
			types_, err := readCellTypes(br, fields, binaryMode)
			if err != nil {
				return nil, err
			}
			g.cellTypes = types_
		default:
			// Unrecognized line (POINT_DATA, CELL_DATA, their data, ...):
			// skip it; lines are skipped one at a time until the next
			// POINTS, CELLS or CELL_TYPES keyword, since only topology and
			// positions are read.
			continue
		}
	}
	if len(g.cellCorns) != len(g.cellTypes) {
		return nil, fmt.Errorf("%w: CELLS count (%d) does not match CELL_TYPES count (%d)", ErrSerialization, len(g.cellCorns), len(g.cellTypes))
	}
	return g, nil
}

func parsePointsHeader(fields []string) (n int, kind string, err error) {
	if len(fields) != 3 {
		return 0, "", fmt.Errorf("%w: malformed POINTS header %q", ErrSerialization, strings.Join(fields, " "))
	}
	n, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad POINTS count %q", ErrSerialization, fields[1])
	}
	kind = fields[2]
	if kind != "float" && kind != "double" {
		return 0, "", fmt.Errorf("%w: unsupported POINTS scalar type %q", ErrSerialization, kind)
	}
	return n, kind, nil
}

func readPoints(br *bufio.Reader, n int, kind string, binaryMode bool) ([][]float64, error) {
	total := n * 3
	flat := make([]float64, 0, total)
	if binaryMode {
		for i := 0; i < total; i++ {
			v, err := readBinaryScalar(br, kind)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated POINTS data", ErrSerialization)
			}
			flat = append(flat, v)
		}
	} else {
		for len(flat) < total {
			line, err := readLine(br)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated POINTS data", ErrSerialization)
			}
			for _, f := range strings.Fields(line) {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad coordinate %q", ErrSerialization, f)
				}
				flat = append(flat, v)
			}
		}
	}
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: POINTS coordinate count %d is not divisible by 3", ErrSerialization, len(flat))
	}
	pts := make([][]float64, n)
	for i := 0; i < n; i++ {
		pts[i] = flat[i*3 : i*3+3]
	}
	return pts, nil
}

func readBinaryScalar(br *bufio.Reader, kind string) (float64, error) {
	if kind == "double" {
		var buf [8]byte
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return 0, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
	}
	var buf [4]byte
	if _, err := io.ReadFull(br, buf[:]); err != nil {
		return 0, err
	}
	return float64(math.Float32frombits(binary.BigEndian.Uint32(buf[:]))), nil
}

func readCells(br *bufio.Reader, header []string, binaryMode bool) ([][]int, error) {
	if len(header) != 3 {
		return nil, fmt.Errorf("%w: malformed CELLS header %q", ErrSerialization, strings.Join(header, " "))
	}
	numCells, err := strconv.Atoi(header[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad CELLS count %q", ErrSerialization, header[1])
	}
	size, err := strconv.Atoi(header[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad CELLS size %q", ErrSerialization, header[2])
	}

	ints, err := readInts(br, size, binaryMode)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated CELLS data", ErrSerialization)
	}

	cells := make([][]int, 0, numCells)
	i := 0
	for len(cells) < numCells {
		if i >= len(ints) {
			return nil, fmt.Errorf("%w: CELLS data shorter than declared size", ErrSerialization)
		}
		count := ints[i]
		i++
		if i+count > len(ints) {
			return nil, fmt.Errorf("%w: malformed CELLS entry", ErrSerialization)
		}
		cells = append(cells, ints[i:i+count])
		i += count
	}
	return cells, nil
}

func readCellTypes(br *bufio.Reader, header []string, binaryMode bool) ([]vtkCellType, error) {
	if len(header) != 2 {
		return nil, fmt.Errorf("%w: malformed CELL_TYPES header %q", ErrSerialization, strings.Join(header, " "))
	}
	n, err := strconv.Atoi(header[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad CELL_TYPES count %q", ErrSerialization, header[1])
	}
	ints, err := readInts(br, n, binaryMode)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated CELL_TYPES data", ErrSerialization)
	}
	out := make([]vtkCellType, len(ints))
	for i, v := range ints {
		out[i] = vtkCellType(v)
	}
	return out, nil
}

func readInts(br *bufio.Reader, n int, binaryMode bool) ([]int, error) {
	out := make([]int, 0, n)
	if binaryMode {
		for len(out) < n {
			var buf [4]byte
			if _, err := io.ReadFull(br, buf[:]); err != nil {
				return nil, err
			}
			out = append(out, int(int32(binary.BigEndian.Uint32(buf[:]))))
		}
		return out, nil
	}
	for len(out) < n {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		for _, f := range strings.Fields(line) {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("bad integer %q", f)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// resolveDimension maps a uniform cell type to a supported map dimension,
// rejecting mixed cell types and every explicitly unsupported type named
// by §6.3 (PolyVertex, PolyLine, and anything dimensionally incompatible).
func resolveDimension(cellTypes []vtkCellType) (types.Dimension, vtkCellType, error) {
	if len(cellTypes) == 0 {
		return 0, 0, fmt.Errorf("%w: grid has no cells", ErrSerialization)
	}
	want := cellTypes[0]
	for _, ct := range cellTypes {
		if ct != want {
			return 0, 0, fmt.Errorf("%w: mixed cell types are not supported", ErrSerialization)
		}
	}
	switch want {
	case cellLine:
		return 1, want, nil
	case cellTriangle:
		return 2, want, nil
	case cellTetra:
		return 3, want, nil
	case cellPolyVert, cellPolyLine:
		return 0, 0, fmt.Errorf("%w: cell type %d is explicitly unsupported", ErrSerialization, want)
	default:
		return 0, 0, fmt.Errorf("%w: unsupported or dimensionally incompatible cell type %d", ErrSerialization, want)
	}
}
