package format

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cuemby/cmap/pkg/types"
)

// parse reads the four §6.2 sections into a document, performing only the
// parsing-time structural checks (column counts, column 0 == 0); the row
// count and the semantic invariant checks happen in validate.
func parse(r io.Reader) (*document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var section string
	doc := &document{vertices: map[types.DartID][]float64{}}
	var metaSeen, betasSeen bool

	for sc.Scan() {
		line := stripComment(sc.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			continue
		}

		switch section {
		case "META":
			if metaSeen {
				return nil, fmt.Errorf("%w: [META] must contain exactly one line", ErrSerialization)
			}
			fields := strings.Fields(line)
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: [META] line must have 3 fields, got %d", ErrSerialization, len(fields))
			}
			version, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("%w: bad version %q", ErrSerialization, fields[0])
			}
			dim, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: bad dimension %q", ErrSerialization, fields[1])
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("%w: bad dart count %q", ErrSerialization, fields[2])
			}
			doc.version, doc.dim, doc.n = version, types.Dimension(dim), n
			metaSeen = true

		case "BETAS":
			if !metaSeen {
				return nil, fmt.Errorf("%w: [BETAS] appeared before [META]", ErrSerialization)
			}
			row, err := parseIDRow(line, doc.n+1)
			if err != nil {
				return nil, err
			}
			if row[0] != types.NullDart {
				return nil, fmt.Errorf("%w: β row %d column 0 must be the NULL dart, got %d", ErrSerialization, len(doc.betas), row[0])
			}
			doc.betas = append(doc.betas, row)
			betasSeen = true

		case "UNUSED":
			fields := strings.Fields(line)
			for _, f := range fields {
				id, err := strconv.Atoi(f)
				if err != nil {
					return nil, fmt.Errorf("%w: bad unused dart id %q", ErrSerialization, f)
				}
				doc.unused = append(doc.unused, types.DartID(id))
			}

		case "VERTICES":
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: [VERTICES] line needs a cell id and at least one coordinate", ErrSerialization)
			}
			id, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("%w: bad vertex cell id %q", ErrSerialization, fields[0])
			}
			coords := make([]float64, len(fields)-1)
			for i, f := range fields[1:] {
				c, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad coordinate %q", ErrSerialization, f)
				}
				coords[i] = c
			}
			cid := types.DartID(id)
			if _, dup := doc.vertices[cid]; dup {
				return nil, fmt.Errorf("%w: duplicate vertex entry for cell id %d", ErrSerialization, id)
			}
			doc.vertices[cid] = coords
			doc.order = append(doc.order, cid)

		default:
			return nil, fmt.Errorf("%w: content before any section header", ErrSerialization)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if !metaSeen {
		return nil, fmt.Errorf("%w: missing [META] section", ErrSerialization)
	}
	if !betasSeen {
		return nil, fmt.Errorf("%w: missing [BETAS] section", ErrSerialization)
	}
	return doc, nil
}

func parseIDRow(line string, width int) ([]types.DartID, error) {
	fields := strings.Fields(line)
	if len(fields) != width {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrSerialization, width, len(fields))
	}
	row := make([]types.DartID, width)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: bad dart id %q", ErrSerialization, f)
		}
		row[i] = types.DartID(v)
	}
	return row, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// validate checks §6.2's semantic constraints against a parsed document:
// row count, I1/I2, unused-dart freedom (by forward checking the parsed
// table, so LoadRaw's own RemoveDart call is redundant-but-safe), and
// vertex coordinate arity.
func validate(doc *document) error {
	if len(doc.betas) != int(doc.dim)+1 {
		return fmt.Errorf("%w: expected %d β rows for a %d-map, got %d", ErrSerialization, doc.dim+1, doc.dim, len(doc.betas))
	}

	// I2: β[i] is an involution for i >= 2.
	for i := types.Dimension(2); i <= doc.dim; i++ {
		row := doc.betas[i]
		for d := 1; d <= doc.n; d++ {
			img := row[d]
			if img == types.NullDart {
				continue
			}
			if int(img) > doc.n {
				return fmt.Errorf("%w: β[%d](%d) = %d is out of range", ErrSerialization, i, d, img)
			}
			if row[img] != types.DartID(d) {
				return fmt.Errorf("%w: β[%d] is not an involution at dart %d", ErrSerialization, i, d)
			}
		}
	}

	// I1: β[0] and β[1] are mutual inverses.
	if doc.dim >= 1 {
		b0, b1 := doc.betas[0], doc.betas[1]
		for d := 1; d <= doc.n; d++ {
			if b1[d] != types.NullDart {
				if int(b1[d]) > doc.n {
					return fmt.Errorf("%w: β[1](%d) = %d is out of range", ErrSerialization, d, b1[d])
				}
				if b0[b1[d]] != types.DartID(d) {
					return fmt.Errorf("%w: β[0]/β[1] are not mutual inverses at dart %d", ErrSerialization, d)
				}
			}
			if b0[d] != types.NullDart {
				if int(b0[d]) > doc.n {
					return fmt.Errorf("%w: β[0](%d) = %d is out of range", ErrSerialization, d, b0[d])
				}
				if b1[b0[d]] != types.DartID(d) {
					return fmt.Errorf("%w: β[0]/β[1] are not mutual inverses at dart %d", ErrSerialization, d)
				}
			}
		}
	}

	for _, d := range doc.unused {
		if int(d) < 1 || int(d) > doc.n {
			return fmt.Errorf("%w: unused dart %d out of range", ErrSerialization, d)
		}
		for i := types.Dimension(0); i <= doc.dim; i++ {
			if doc.betas[i][d] != types.NullDart {
				return fmt.Errorf("%w: unused dart %d is not free at dimension %d", ErrSerialization, d, i)
			}
		}
	}

	for _, id := range doc.order {
		if int(id) < 1 || int(id) > doc.n {
			return fmt.Errorf("%w: vertex cell id %d out of range", ErrSerialization, id)
		}
		if len(doc.vertices[id]) != int(doc.dim) {
			return fmt.Errorf("%w: vertex %d has %d coordinates, want %d", ErrSerialization, id, len(doc.vertices[id]), doc.dim)
		}
	}
	return nil
}
