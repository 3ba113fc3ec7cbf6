package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvbtdb/mvbt/container/blockfile"
	"github.com/mvbtdb/mvbt/container/memstore"
)

// statter is implemented by the container realizations that can
// report block allocation bookkeeping (SPEC_FULL.md §4: "a small
// Stats() accessor ... used by mvbtctl stats").
type statter interface {
	Stats() blockfile.Stats
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report block allocation bookkeeping for the configured backend.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, tree, err := openTree()
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "block_size=%d\n", store.BlockSize())
		fmt.Fprintf(out, "current_version=%d\n", tree.CurrentVersion())
		fmt.Fprintf(out, "roots_root_id=%d\n", tree.RootsRootID())

		switch s := store.(type) {
		case statter:
			st := s.Stats()
			fmt.Fprintf(out, "num_blocks=%d\n", st.NumBlocks)
			fmt.Fprintf(out, "allocated_in_use=%d\n", st.AllocatedInUse)
		case *memstore.Store:
			fmt.Fprintf(out, "num_blocks=%d\n", s.Len())
		default:
			fmt.Fprintln(out, "allocation stats not available for this backend")
		}
		return nil
	},
}
