// Package btree holds the pieces shared between the two B+-tree
// engines in this repository — the multiversion core (package mvbt,
// C6) and the ordinary Roots Tree (package roots, C5) — so that the
// source hierarchy's BPlusTree -> MVBTree -> MVBT -> MVBTPlus
// inheritance chain (§9) collapses into two small, independent
// engines sharing their numeric split/merge policy, the median-split
// allocation helpers (SplitLeaves/SplitIndexes) and an observability
// hook set, instead of a runtime dispatch hierarchy.
package btree

// Strategy is the capability set a tree variant plugs in, per §9's
// design note. Both mvbt.Tree and roots.Tree call these hooks purely
// for observability (metrics/logging); they never change control
// flow, so a nil Strategy (NopStrategy) is always safe.
type Strategy interface {
	// OnInsertLeaf fires after a leaf-level insert, before any split
	// evaluation.
	OnInsertLeaf(level int)
	// OnSplit fires after a key split at the given level.
	OnSplit(level int)
	// OnVersionSplit fires after a version split at the given level.
	// The ordinary Roots Tree strategy never calls this (it has no
	// version axis).
	OnVersionSplit(level int)
	// OnMerge fires after a sibling merge at the given level.
	OnMerge(level int)
	// OnRootChange fires whenever a new root is installed.
	OnRootChange()
}

// NopStrategy implements Strategy with no-ops; embed it to satisfy
// the interface without overriding every hook.
type NopStrategy struct{}

func (NopStrategy) OnInsertLeaf(int)   {}
func (NopStrategy) OnSplit(int)        {}
func (NopStrategy) OnVersionSplit(int) {}
func (NopStrategy) OnMerge(int)        {}
func (NopStrategy) OnRootChange()      {}
