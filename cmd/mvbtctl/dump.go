package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the tree's metadata descriptor and current engine state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, tree, err := openTree()
		if err != nil {
			return err
		}
		defer store.Close()

		d := descriptorTemplate()
		d.RootsRootID = uint64(tree.RootsRootID())
		d.CurrentVersion = int64(tree.CurrentVersion())

		raw, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	},
}
