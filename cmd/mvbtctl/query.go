package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mvbtdb/mvbt/node"
)

var pointQueryCmd = &cobra.Command{
	Use:   "point-query <version> <key>",
	Short: "Look up one key at one version.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		k, err := parseKey(args[1])
		if err != nil {
			return err
		}

		store, tree, err := openTree()
		if err != nil {
			return err
		}
		defer store.Close()

		value, ok, err := tree.PointQuery(v, k)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintln(out, "not found")
			return nil
		}
		fmt.Fprintf(out, "%d\t%q\n", k, value)
		return nil
	},
}

var rangeQueryCmd = &cobra.Command{
	Use:   "range-query <version> <key-lo> <key-hi>",
	Short: "List live entries within a key window at one version.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		lo, err := parseKey(args[1])
		if err != nil {
			return err
		}
		hi, err := parseKey(args[2])
		if err != nil {
			return err
		}

		store, tree, err := openTree()
		if err != nil {
			return err
		}
		defer store.Close()

		cur, err := tree.RangeQuery(v, lo, hi)
		if err != nil {
			return err
		}
		defer cur.Close()

		out := cmd.OutOrStdout()
		for cur.HasNext() {
			p := cur.Next()
			fmt.Fprintf(out, "%d\t%q\n", p.Key, p.Value)
		}
		return nil
	},
}

var timeRangeQueryCmd = &cobra.Command{
	Use:   "time-range-query <key-lo> <key-hi> <version-lo> <version-hi>",
	Short: "List every historical entry within a key window and version window.",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		lo, err := parseKey(args[0])
		if err != nil {
			return err
		}
		hi, err := parseKey(args[1])
		if err != nil {
			return err
		}
		vlo, err := parseVersion(args[2])
		if err != nil {
			return err
		}
		vhi, err := parseVersion(args[3])
		if err != nil {
			return err
		}

		store, tree, err := openTree()
		if err != nil {
			return err
		}
		defer store.Close()

		cur, err := tree.TimeRangeQuery(lo, hi, vlo, vhi)
		if err != nil {
			return err
		}
		defer cur.Close()

		out := cmd.OutOrStdout()
		for cur.HasNext() {
			p := cur.Next()
			fmt.Fprintf(out, "%d\t%q\tbegin=%d end=%d\n", p.Key, p.Value, p.Lifespan.Begin, p.Lifespan.End)
		}
		return nil
	},
}

func parseVersion(s string) (node.Version, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("mvbtctl: invalid version %q: %w", s, err)
	}
	return node.Version(n), nil
}

func parseKey(s string) (node.Key, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("mvbtctl: invalid key %q: %w", s, err)
	}
	return node.Key(n), nil
}
