// Package bulkload implements the Bulk Loader (C7): a buffer-tree
// loader that streams a large, time-ordered operation batch into a
// tree without per-tuple descent, pushing operations through
// persistent FIFO queues attached to internal nodes and flushing each
// queue once it reaches capacity (§4.6).
//
// Individual operations are still interpreted by the MVBT core's own
// split/merge rules at flush time: once a queue's entries reach a
// leaf, this package hands them to the ordinary Insert/Delete/Update
// path rather than re-implementing §4.5 itself, so the agreement
// between a bulk-loaded tree and a trivially-loaded one (test property
// S4/S8) follows directly from that shared code path.
package bulkload

import (
	"github.com/mvbtdb/mvbt/node"
)

// OpKind is the kind of operation one Element requests.
type OpKind uint8

const (
	OpInsert OpKind = iota
	OpDelete
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Element is one pending operation queued against an internal node's
// input queue, per §4.6.1's (record, version, op_kind) triple.
type Element struct {
	Key     node.Key
	Value   []byte
	Version node.Version
	Op      OpKind
}

// Batch is the unit stored in a single queue block: every element
// currently pending against one internal node.
type Batch []Element
