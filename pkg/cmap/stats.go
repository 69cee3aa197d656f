package cmap

// Stats is a non-transactional best-effort snapshot of a map's size (§5:
// "non-transactional reads are permitted for best-effort queries").
type Stats struct {
	Dim       int
	NumDarts  int
	NumUnused int
}

// Stats returns a snapshot of the map's current size.
func (m *Map) Stats() Stats {
	return Stats{
		Dim:       int(m.dim),
		NumDarts:  m.darts.NumDarts(),
		NumUnused: len(m.darts.UnusedPeek()),
	}
}
