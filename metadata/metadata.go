// Package metadata implements the Metadata I/O component (C8): the
// text descriptor file named in §6 that identifies a tree on disk
// (index type, table/column shape) plus the small amount of engine
// state (roots-tree root pointer, current version) a tree needs to
// resume exactly where it left off after a close/reopen (§8 S5).
//
// The wire format is spec-mandated text, not one of the domain
// dependencies' binary encodings, so it is hand-rolled with
// encoding/json rather than pulled from the ecosystem: §6 only
// requires the file be "JSON/Plist-like, text" and enumerates its
// recognized properties by name, it does not name a serialization
// library.
package metadata

import (
	"encoding/json"
	"os"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/merrors"
	"github.com/mvbtdb/mvbt/mvbt"
	"github.com/mvbtdb/mvbt/node"
)

// IndexType names the on-disk structure, per §6's "Index Type"
// property.
type IndexType string

const (
	IndexTypeBPlusTree IndexType = "BPlusTree"
	IndexTypeMVBT      IndexType = "MVBT"
)

// ContentType names the record shape, per §6's "Content Type"
// property.
type ContentType string

const (
	ContentPrimitive ContentType = "primitive"
	ContentTuple      ContentType = "complex/tuple"
)

// ColumnProperty is one column's Property List, for "complex/tuple"
// content: the attributes the source's PROPERTY_TABLE_COLUMN_*
// constants enumerate per column.
type ColumnProperty struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
}

// Descriptor is the text metadata file's full content: §6's
// enumerated top-level properties, plus the reopen state a Tree
// needs to resume (not itself one of §6's named properties, but
// required for S5's round-trip guarantee).
type Descriptor struct {
	IndexType    IndexType        `json:"Index Type"`
	TableName    string           `json:"Table name"`
	ContentType  ContentType      `json:"Content Type"`
	BlockSize    int              `json:"Block size"`
	KeyIndices   []int            `json:"Key indices"`
	TableColumns []string         `json:"Table columns"`
	Columns      []ColumnProperty `json:"Column properties,omitempty"`

	RootsRootID    uint64       `json:"roots_root_id"`
	CurrentVersion int64        `json:"current_version"`
	NilVersion     int64        `json:"nil_version"`
	PayloadSize    int          `json:"payload_size"`
	D              float64      `json:"d"`
	E              float64      `json:"e"`
}

// requiredProperties are the top-level properties §6 says loading
// "requires all enumerated properties" of; any one missing is
// CorruptMetadata, independent of whether the value decodes cleanly.
var requiredProperties = []string{
	"Index Type",
	"Table name",
	"Content Type",
	"Block size",
	"Key indices",
	"Table columns",
}

// Save writes d to path as the tree's metadata file.
func Save(path string, d Descriptor) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return merrors.Invariant("metadata.Save", err.Error())
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return merrors.IO("metadata.Save", err)
	}
	return nil
}

// Load reads and validates the metadata file at path. Any of the
// §6-enumerated top-level properties missing from the file, or a
// "complex/tuple" Content Type with no Column properties, yields
// CorruptMetadata.
func Load(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, merrors.NotFound("metadata.Load", path)
		}
		return Descriptor{}, merrors.IO("metadata.Load", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Descriptor{}, merrors.CorruptMetadata("metadata.Load", "malformed JSON")
	}
	for _, key := range requiredProperties {
		if _, ok := fields[key]; !ok {
			return Descriptor{}, merrors.CorruptMetadata("metadata.Load", key)
		}
	}

	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, merrors.CorruptMetadata("metadata.Load", "property type mismatch")
	}
	if d.ContentType == ContentTuple && len(d.Columns) == 0 {
		return Descriptor{}, merrors.CorruptMetadata("metadata.Load", "Column properties")
	}
	return d, nil
}

// SaveTree captures tree's current roots-tree pointer and version
// into d and writes the combined descriptor to path, implementing
// the "save" half of S5's close/reopen round trip.
func SaveTree(path string, d Descriptor, tree *mvbt.Tree) error {
	d.RootsRootID = uint64(tree.RootsRootID())
	d.CurrentVersion = int64(tree.CurrentVersion())
	return Save(path, d)
}

// OpenTree loads the descriptor at path and bootstraps tree, which
// must already be constructed over the same backing store, to resume
// at the saved roots-tree root and version. This is the "reopen" half
// of S5: the returned Descriptor's table/column properties are
// informational, tree is left ready for the next operation.
func OpenTree(path string, tree *mvbt.Tree) (Descriptor, error) {
	d, err := Load(path)
	if err != nil {
		return Descriptor{}, err
	}
	tree.Bootstrap(container.BlockId(d.RootsRootID), node.Version(d.CurrentVersion))
	return d, nil
}
