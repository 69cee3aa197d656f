package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/cmap/pkg/attribute"
	"github.com/cuemby/cmap/pkg/cmap"
	"github.com/cuemby/cmap/pkg/format"
	"github.com/cuemby/cmap/pkg/vtkio"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Decode a map file and report whether it satisfies every structural invariant",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var validateVTK bool

func init() {
	validateCmd.Flags().BoolVar(&validateVTK, "vtk", false, "force legacy VTK parsing instead of detecting from the file extension")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("validate: failed to open %q: %v", path, err)
	}
	defer f.Close()

	m, _, err := decodeFile(f, path)
	if err != nil {
		return fmt.Errorf("validate: %q failed validation: %v", path, err)
	}

	stats := m.Stats()
	fmt.Printf("✓ %s is a valid %d-map (%d darts, %d unused)\n", path, stats.Dim, stats.NumDarts, stats.NumUnused)
	return nil
}

// decodeFile dispatches on the --vtk flag, falling back to the ".vtk"
// extension, and otherwise assumes the §6.2 textual dump format.
func decodeFile(f *os.File, path string) (*cmap.Map, *attribute.Storage[[]float64], error) {
	if validateVTK || strings.HasSuffix(strings.ToLower(path), ".vtk") {
		return vtkio.Decode(f)
	}
	return format.Decode(f)
}
