package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mvbtdb/mvbt/bulkload"
	"github.com/mvbtdb/mvbt/node"
)

const (
	cfgFanout         = "bulk.fanout"
	cfgMemoryBudget   = "bulk.memory_budget"
	cfgQueueBlockSize = "bulk.queue_block_size"
)

// wireElement is the newline-delimited JSON record mvbtctl reads a
// bulk-load stream from: {"op":"insert","key":1,"version":1,"value":"aGk="}.
// bulkload.Element itself carries no JSON tags since the library has
// no CLI surface of its own (spec.md §6); this is the CLI-only
// encoding of the same fields.
type wireElement struct {
	Op      string       `json:"op"`
	Key     node.Key     `json:"key"`
	Version node.Version `json:"version"`
	Value   []byte       `json:"value,omitempty"`
}

func (w wireElement) toElement() (bulkload.Element, error) {
	var op bulkload.OpKind
	switch w.Op {
	case "insert":
		op = bulkload.OpInsert
	case "delete":
		op = bulkload.OpDelete
	case "update":
		op = bulkload.OpUpdate
	default:
		return bulkload.Element{}, fmt.Errorf("mvbtctl: unknown op %q", w.Op)
	}
	return bulkload.Element{Key: w.Key, Value: w.Value, Version: w.Version, Op: op}, nil
}

var bulkLoadCmd = &cobra.Command{
	Use:   "bulk-load <stream.ndjson>",
	Short: "Stream a newline-delimited JSON operation log through the buffer-tree loader.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		store, tree, err := openTree()
		if err != nil {
			return err
		}
		defer store.Close()

		loader := bulkload.New(tree, bulkload.Config{
			Fanout:         viper.GetInt(cfgFanout),
			MemoryBudget:   viper.GetInt(cfgMemoryBudget),
			QueueBlockSize: viper.GetInt(cfgQueueBlockSize),
		})

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		n := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var w wireElement
			if err := json.Unmarshal(line, &w); err != nil {
				return fmt.Errorf("mvbtctl: line %d: %w", n+1, err)
			}
			e, err := w.toElement()
			if err != nil {
				return fmt.Errorf("mvbtctl: line %d: %w", n+1, err)
			}
			if err := loader.Load([]bulkload.Element{e}); err != nil {
				return err
			}
			n++
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if err := loader.Finish(); err != nil {
			return err
		}
		if err := closeTree(store, tree); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d operations\n", n)
		return nil
	},
}

func init() {
	pf := bulkLoadCmd.Flags()
	pf.Int("fanout", 4, "fanout parameter a used to size queue flush capacity")
	pf.Int("memory-budget", 256, "memory budget M in buffered entries")
	pf.Int("queue-block-size", 65536, "scratch block size for buffer-tree queue batches")
	_ = viper.BindPFlag(cfgFanout, pf.Lookup("fanout"))
	_ = viper.BindPFlag(cfgMemoryBudget, pf.Lookup("memory-budget"))
	_ = viper.BindPFlag(cfgQueueBlockSize, pf.Lookup("queue-block-size"))
}
