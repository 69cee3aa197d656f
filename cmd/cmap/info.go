package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/cmap/pkg/stm"
	"github.com/cuemby/cmap/pkg/types"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Decode a map file and print its dimension, dart counts, and attribute names",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&validateVTK, "vtk", false, "force legacy VTK parsing instead of detecting from the file extension")
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("info: failed to open %q: %v", path, err)
	}
	defer f.Close()

	m, positions, err := decodeFile(f, path)
	if err != nil {
		return fmt.Errorf("info: failed to decode %q: %v", path, err)
	}

	stats := m.Stats()
	fmt.Printf("file:       %s\n", path)
	fmt.Printf("dimension:  %d\n", stats.Dim)
	fmt.Printf("darts:      %d\n", stats.NumDarts)
	fmt.Printf("unused:     %d\n", stats.NumUnused)
	fmt.Printf("attributes: %v\n", m.Attrs().Names())

	if positions != nil {
		var vertexCount int
		err := stm.Atomically(m.Runtime(), func(tx *stm.Txn) error {
			for d := types.DartID(1); int(d) < stats.NumDarts+1; d++ {
				if _, ok, err := positions.Read(tx, d); err != nil {
					return err
				} else if ok {
					vertexCount++
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("info: failed to count vertex positions: %v", err)
		}
		fmt.Printf("vertices:   %d\n", vertexCount)
	}
	return nil
}
