package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/badgerstore"
	"github.com/mvbtdb/mvbt/container/blockfile"
	"github.com/mvbtdb/mvbt/container/memstore"
	"github.com/mvbtdb/mvbt/internal/logging"
	"github.com/mvbtdb/mvbt/merrors"
	"github.com/mvbtdb/mvbt/metadata"
	"github.com/mvbtdb/mvbt/mvbt"
	"github.com/mvbtdb/mvbt/node"
)

// Persistent flag names, following the teacher's cfgXxx convention
// (oasis-node/cmd/genesis/genesis.go) of a flat dotted namespace bound
// to viper rather than scattered global variables.
const (
	cfgDataDir     = "data.dir"
	cfgBackend     = "backend"
	cfgBlockSize   = "block.size"
	cfgPayloadSize = "payload.size"
	cfgD           = "occupancy.d"
	cfgE           = "occupancy.e"
	cfgTable       = "table.name"
	cfgContentType = "table.content_type"
	cfgKeyIndices  = "table.key_indices"
	cfgColumns     = "table.columns"
)

var log = logging.GetLogger("cmd/mvbtctl")

var rootCmd = &cobra.Command{
	Use:   "mvbtctl",
	Short: "Operate an MVBT tree: load, query, inspect.",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("data-dir", "./mvbt-data", "directory holding the block file/metadata for this tree")
	pf.String("backend", "file", "container backend: memory|file|badger")
	pf.Int("block-size", 4096, "physical block size in bytes (B_bytes)")
	pf.Int("payload-size", 256, "fixed record payload width")
	pf.Float64("d", 0.25, "minimum occupancy ratio D")
	pf.Float64("e", 0.5, "weak-version-condition occupancy ratio E")
	pf.String("table", "default", "table name recorded in the metadata descriptor")
	pf.String("content-type", "primitive", "metadata Content Type: primitive|complex/tuple")
	pf.IntSlice("key-indices", []int{0}, "metadata Key indices")
	pf.StringSlice("columns", []string{"key", "value"}, "metadata Table columns")

	for _, name := range []string{
		"data-dir", "backend", "block-size", "payload-size", "d", "e",
		"table", "content-type", "key-indices", "columns",
	} {
		_ = viper.BindPFlag(dottedFlag(name), pf.Lookup(name))
	}

	rootCmd.AddCommand(dumpCmd, statsCmd, pointQueryCmd, rangeQueryCmd, timeRangeQueryCmd, bulkLoadCmd)
}

// dottedFlag maps a hyphenated flag name to its dotted viper key, so
// --block-size binds to block.size etc.
func dottedFlag(name string) string {
	switch name {
	case "data-dir":
		return cfgDataDir
	case "block-size":
		return cfgBlockSize
	case "payload-size":
		return cfgPayloadSize
	case "table":
		return cfgTable
	case "content-type":
		return cfgContentType
	case "key-indices":
		return cfgKeyIndices
	case "columns":
		return cfgColumns
	case "d":
		return cfgD
	case "e":
		return cfgE
	default:
		return name
	}
}

func metadataPath(dataDir string) string {
	return filepath.Join(dataDir, "descriptor.json")
}

// openStore builds the configured container.BlockStore realization.
func openStore() (container.BlockStore, error) {
	blockSize := viper.GetInt(cfgBlockSize)
	dataDir := viper.GetString(cfgDataDir)

	switch viper.GetString(cfgBackend) {
	case "memory":
		return memstore.New(blockSize), nil
	case "badger":
		return badgerstore.Open(badgerstore.Options{BlockSize: blockSize, Dir: filepath.Join(dataDir, "badger")})
	case "file":
		return blockfile.Open(filepath.Join(dataDir, "blocks"), blockfile.Options{BlockSize: blockSize, Compress: true})
	default:
		return nil, fmt.Errorf("mvbtctl: unknown backend %q", viper.GetString(cfgBackend))
	}
}

// treeConfig returns the Tree Config implied by the bound flags.
func treeConfig() mvbt.Config {
	return mvbt.Config{
		BlockSize:   viper.GetInt(cfgBlockSize),
		PayloadSize: viper.GetInt(cfgPayloadSize),
		D:           viper.GetFloat64(cfgD),
		E:           viper.GetFloat64(cfgE),
		NilVersion:  node.NilVersion,
	}
}

// descriptorTemplate returns the metadata Descriptor fields sourced
// from flags; SaveTree fills in the reopen-state fields on top of it.
func descriptorTemplate() metadata.Descriptor {
	return metadata.Descriptor{
		IndexType:    metadata.IndexTypeMVBT,
		TableName:    viper.GetString(cfgTable),
		ContentType:  metadata.ContentType(viper.GetString(cfgContentType)),
		BlockSize:    viper.GetInt(cfgBlockSize),
		KeyIndices:   viper.GetIntSlice(cfgKeyIndices),
		TableColumns: viper.GetStringSlice(cfgColumns),
	}
}

// openTree opens the configured store and tree, bootstrapping from an
// existing metadata descriptor if one is present in data.dir.
func openTree() (container.BlockStore, *mvbt.Tree, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	tree, err := mvbt.New(store, treeConfig(), nil)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	path := metadataPath(viper.GetString(cfgDataDir))
	if _, err := metadata.OpenTree(path, tree); err != nil {
		if !merrors.IsNotFound(err) {
			_ = store.Close()
			return nil, nil, err
		}
		log.Info("no existing metadata descriptor, starting a fresh tree", "path", path)
	}
	return store, tree, nil
}

// closeTree flushes tree, writes the metadata descriptor, and closes
// store, in that order, so a crash between steps never leaves a
// descriptor pointing at an unflushed root.
func closeTree(store container.BlockStore, tree *mvbt.Tree) error {
	if err := tree.Flush(); err != nil {
		return err
	}
	dataDir := viper.GetString(cfgDataDir)
	if err := ensureDir(dataDir); err != nil {
		return err
	}
	if err := metadata.SaveTree(metadataPath(dataDir), descriptorTemplate(), tree); err != nil {
		return err
	}
	return store.Close()
}
