package bulkload

import (
	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/buffered"
	"github.com/mvbtdb/mvbt/container/converter"
	"github.com/mvbtdb/mvbt/container/memstore"
	"github.com/mvbtdb/mvbt/internal/logging"
	"github.com/mvbtdb/mvbt/internal/metrics"
	"github.com/mvbtdb/mvbt/mvbt"
	"github.com/mvbtdb/mvbt/node"
)

var log = logging.GetLogger("bulkload")

// Config bundles the buffer-tree loader's construction-time
// parameters.
type Config struct {
	// Fanout is the fanout parameter a, supplied by the caller; nothing
	// here derives it from the block size. It sizes a queue's
	// flush-trigger capacity M/fanout and the queue buffer (4*Fanout
	// pages).
	Fanout int
	// MemoryBudget is M, the memory budget in entries (§4.6). A
	// queue flushes once it reaches MemoryBudget/Fanout entries.
	MemoryBudget int
	// QueueBlockSize sizes the loader's own scratch block container
	// for queue batches; it must be large enough to hold a
	// CBOR-encoded batch of MemoryBudget/Fanout elements.
	QueueBlockSize int
}

func (c Config) capacity() int {
	n := c.MemoryBudget / c.Fanout
	if n < 1 {
		n = 1
	}
	return n
}

// Loader is the Bulk Loader (C7): it accumulates a stream of buffered
// operations into per-node input queues and flushes them down into
// tree t using t's own Insert/Delete/Update rules (§4.5), following
// the protocol in §4.6.2.
type Loader struct {
	tree     *mvbt.Tree
	queues   *buffered.Container[Batch]
	queueOf  map[container.BlockId]container.BlockId
	capacity int
	pending  int // total entries across every resident queue, for metrics
}

// New builds a Loader targeting t. t should be empty; Load and Finish
// take the root from t.RootID(), which bootstraps one if none exists
// yet.
func New(t *mvbt.Tree, cfg Config) *Loader {
	store := memstore.New(cfg.QueueBlockSize)
	conv := converter.New[Batch](store, batchCodec{})
	queues := buffered.New[Batch](conv, 4*cfg.Fanout)
	metrics.Register()
	return &Loader{
		tree:     t,
		queues:   queues,
		queueOf:  make(map[container.BlockId]container.BlockId),
		capacity: cfg.capacity(),
	}
}

// Load enqueues every element of stream onto the tree's root input
// queue, flushing queues as they fill along the way (§4.6.2 steps
// 1-2). Elements must already be in non-decreasing version order,
// same as the online mutation path.
func (l *Loader) Load(stream []Element) error {
	rootID, err := l.tree.RootID()
	if err != nil {
		return err
	}
	for _, e := range stream {
		if err := l.enqueue(rootID, e); err != nil {
			return err
		}
	}
	return nil
}

// Finish recursively flushes every remaining non-empty queue in
// top-down order (§4.6.2 step 4) and releases the loader's scratch
// queue container. Call this once after the input stream is
// exhausted; the tree is only complete once Finish returns.
func (l *Loader) Finish() error {
	rootID, err := l.tree.RootID()
	if err != nil {
		return err
	}
	if err := l.flushTopDown(rootID); err != nil {
		return err
	}
	if err := l.tree.RecomputeWeights(); err != nil {
		return err
	}
	return l.queues.Close()
}

// enqueue appends e to nodeID's input queue, allocating the queue's
// backing block on first use, and flushes it immediately once it
// reaches capacity.
func (l *Loader) enqueue(nodeID container.BlockId, e Element) error {
	qid, ok := l.queueOf[nodeID]
	var h *buffered.Handle[Batch]
	var batch Batch
	var err error
	if ok {
		h, err = l.queues.Get(qid)
		if err != nil {
			return err
		}
		batch = h.Value()
	} else {
		qid, h, err = l.queues.Allocate(nil)
		if err != nil {
			return err
		}
		l.queueOf[nodeID] = qid
	}
	batch = append(batch, e)
	h.Set(batch)
	h.Release()
	l.pending++
	metrics.BulkLoadQueueDepth.Set(float64(l.pending))

	if len(batch) >= l.capacity {
		return l.flush(nodeID)
	}
	return nil
}

// flush pops nodeID's entire queue in FIFO order and either applies
// each operation directly (nodeID is a leaf) or partitions the batch
// by child subtree (nodeID is an index node), per §4.6.2 step 2: a
// group whose child is a leaf is applied directly, any other group is
// re-enqueued on its child.
func (l *Loader) flush(nodeID container.BlockId) error {
	qid, ok := l.queueOf[nodeID]
	if !ok {
		return nil
	}
	h, err := l.queues.Get(qid)
	if err != nil {
		return err
	}
	batch := h.Value()
	h.Release()
	delete(l.queueOf, nodeID)
	l.pending -= len(batch)
	metrics.BulkLoadQueueDepth.Set(float64(l.pending))
	if err := l.queues.Remove(qid); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	metrics.BulkLoadFlushes.Inc()

	snap, err := l.tree.Snapshot(nodeID)
	if err != nil {
		return err
	}
	if snap.IsLeaf {
		for _, e := range batch {
			if err := l.apply(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, g := range partition(batch, snap.Children) {
		childSnap, err := l.tree.Snapshot(g.child)
		if err != nil {
			return err
		}
		if childSnap.IsLeaf {
			for _, e := range g.elements {
				if err := l.apply(e); err != nil {
					return err
				}
			}
			continue
		}
		for _, e := range g.elements {
			if err := l.enqueue(g.child, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushTopDown flushes nodeID's queue (if any) and then recurses into
// its current children, so a parent's flush — which may populate
// fresh queues on its children — is always followed by visiting those
// children in the same pass.
func (l *Loader) flushTopDown(nodeID container.BlockId) error {
	if _, ok := l.queueOf[nodeID]; ok {
		if err := l.flush(nodeID); err != nil {
			return err
		}
	}
	snap, err := l.tree.Snapshot(nodeID)
	if err != nil {
		return err
	}
	if snap.IsLeaf {
		return nil
	}
	for _, c := range snap.Children {
		if err := l.flushTopDown(c.ID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) apply(e Element) error {
	switch e.Op {
	case OpInsert:
		return l.tree.BulkInsert(e.Version, e.Key, e.Value)
	case OpDelete:
		return l.tree.BulkDelete(e.Version, e.Key)
	case OpUpdate:
		return l.tree.BulkUpdate(e.Version, e.Key, e.Value)
	default:
		log.Warn("dropping element with unknown op kind", "op", e.Op, "key", e.Key)
		return nil
	}
}

type group struct {
	child    container.BlockId
	elements []Element
}

// partition assigns each element of batch to the child subtree whose
// key range contains it, preserving each child's FIFO order and the
// left-bias tie-break rule used by the tree's own descent (§4.5.5):
// among children whose LowKey <= key, the rightmost; if none, the
// leftmost child.
func partition(batch Batch, children []mvbt.ChildRef) []group {
	if len(children) == 0 {
		return nil
	}
	order := make([]container.BlockId, 0, len(children))
	byChild := make(map[container.BlockId]*group, len(children))
	for _, e := range batch {
		c := childFor(children, e.Key)
		g, ok := byChild[c]
		if !ok {
			g = &group{child: c}
			byChild[c] = g
			order = append(order, c)
		}
		g.elements = append(g.elements, e)
	}
	out := make([]group, 0, len(order))
	for _, id := range order {
		out = append(out, *byChild[id])
	}
	return out
}

func childFor(children []mvbt.ChildRef, key node.Key) container.BlockId {
	chosen := -1
	for i, c := range children {
		if c.LowKey <= key {
			chosen = i
		}
	}
	if chosen == -1 {
		chosen = 0
	}
	return children[chosen].ID
}
