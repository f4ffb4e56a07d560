// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"errors"
	"fmt"

	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
)

// frontierNode wraps a block in the transition frontier. Parent and child
// relations are stored as hashes and resolved through the frontier's node
// table, never as owning pointers.
type frontierNode struct {
	block    *blocks.Block
	parent   types.ID
	children map[types.ID]struct{}
	snapshot ledger.Snapshot
}

// InsertOutcome describes what an Insert call did to the frontier.
type InsertOutcome int

const (
	// OutcomeInserted means the block was added but the best tip did not
	// change.
	OutcomeInserted InsertOutcome = iota

	// OutcomeBestTipExtended means the block was added and extended the
	// existing best tip.
	OutcomeBestTipExtended

	// OutcomeReorg means the block was added and the best tip moved to a
	// different branch.
	OutcomeReorg

	// OutcomeDuplicate means the block was already present. The frontier
	// is left untouched.
	OutcomeDuplicate
)

func (o InsertOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeBestTipExtended:
		return "extended best tip"
	case OutcomeReorg:
		return "reorg"
	case OutcomeDuplicate:
		return "duplicate"
	}
	return fmt.Sprintf("unknown outcome (%d)", int(o))
}

// Frontier is the bounded mutable tree of blocks between the most recently
// finalized block (the root) and all known tips. It is not safe for
// concurrent use; Chain serializes access behind its state lock.
type Frontier struct {
	k       uint32
	nodes   map[types.ID]*frontierNode
	root    types.ID
	bestTip types.ID
}

// NewFrontier returns a frontier containing only the root block. The root
// snapshot's digest must match the root block's declared ledger hash.
func NewFrontier(root *blocks.Block, rootSnapshot ledger.Snapshot, k uint32) (*Frontier, error) {
	if root == nil {
		return nil, AssertError("NewFrontier: root cannot be nil")
	}
	if k == 0 {
		return nil, AssertError("NewFrontier: k must be positive")
	}
	if digest := rootSnapshot.Hash(); digest != root.LedgerHash {
		return nil, ruleError(ErrLedgerMismatch, fmt.Sprintf(
			"root snapshot digest %s does not match ledger hash %s", digest, root.LedgerHash))
	}
	f := &Frontier{
		k:       k,
		nodes:   make(map[types.ID]*frontierNode),
		root:    root.StateHash,
		bestTip: root.StateHash,
	}
	f.nodes[root.StateHash] = &frontierNode{
		block:    root,
		children: make(map[types.ID]struct{}),
		snapshot: rootSnapshot,
	}
	return f, nil
}

// K returns the configured finality depth.
func (f *Frontier) K() uint32 {
	return f.k
}

// Len returns the number of nodes in the frontier, root included.
func (f *Frontier) Len() int {
	return len(f.nodes)
}

// Root returns the root block.
func (f *Frontier) Root() *blocks.Block {
	return f.nodes[f.root].block
}

// RootSnapshot returns the ledger snapshot at the root.
func (f *Frontier) RootSnapshot() ledger.Snapshot {
	return f.nodes[f.root].snapshot
}

// BestTip returns the current best tip block.
func (f *Frontier) BestTip() *blocks.Block {
	return f.nodes[f.bestTip].block
}

// BestTipSnapshot returns the ledger snapshot at the best tip.
func (f *Frontier) BestTipSnapshot() ledger.Snapshot {
	return f.nodes[f.bestTip].snapshot
}

// Depth returns the height distance between the best tip and the root.
func (f *Frontier) Depth() uint32 {
	return f.BestTip().Height - f.Root().Height
}

// Has returns whether the block is present in the frontier.
func (f *Frontier) Has(id types.ID) bool {
	_, ok := f.nodes[id]
	return ok
}

// Block returns the block for the given state hash if present.
func (f *Frontier) Block(id types.ID) (*blocks.Block, bool) {
	node, ok := f.nodes[id]
	if !ok {
		return nil, false
	}
	return node.block, true
}

// Snapshot returns the ledger snapshot for the given state hash if present.
func (f *Frontier) Snapshot(id types.ID) (ledger.Snapshot, bool) {
	node, ok := f.nodes[id]
	if !ok {
		return ledger.Snapshot{}, false
	}
	return node.snapshot, true
}

// Tips returns the state hashes of all leaf nodes.
func (f *Frontier) Tips() []types.ID {
	var tips []types.ID
	for id, node := range f.nodes {
		if len(node.children) == 0 {
			tips = append(tips, id)
		}
	}
	return tips
}

// Insert adds a block to the frontier.
//
// A block already present is reported as OutcomeDuplicate and leaves the
// frontier untouched. A block whose parent is unknown fails with
// ErrOrphanBlock; one at or below the root height with ErrStaleBlock; one
// whose ledger diff does not reproduce its declared ledger hash with
// ErrLedgerMismatch. On success the best tip is re-evaluated across all
// tips.
func (f *Frontier) Insert(blk *blocks.Block) (InsertOutcome, error) {
	if _, ok := f.nodes[blk.StateHash]; ok {
		return OutcomeDuplicate, nil
	}
	rootHeight := f.Root().Height
	if blk.Height <= rootHeight {
		return 0, ruleError(ErrStaleBlock, fmt.Sprintf(
			"block %s height %d is at or below root height %d", blk.StateHash, blk.Height, rootHeight))
	}
	parent, ok := f.nodes[blk.ParentHash]
	if !ok {
		return 0, ruleError(ErrOrphanBlock, fmt.Sprintf(
			"block %s parent %s not in frontier", blk.StateHash, blk.ParentHash))
	}
	if blk.Height != parent.block.Height+1 {
		return 0, ruleError(ErrInvalidHeight, fmt.Sprintf(
			"block %s height %d does not follow parent height %d", blk.StateHash, blk.Height, parent.block.Height))
	}

	snapshot, err := parent.snapshot.Apply(blk.LedgerDiff)
	if err != nil {
		code := ErrLedgerMismatch
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			code = ErrInsufficientBalance
		} else if errors.Is(err, ledger.ErrNonceMismatch) {
			code = ErrNonceMismatch
		}
		return 0, ruleError(code, fmt.Sprintf("block %s: %s", blk.StateHash, err))
	}
	if digest := snapshot.Hash(); digest != blk.LedgerHash {
		return 0, ruleError(ErrLedgerMismatch, fmt.Sprintf(
			"block %s ledger digest %s does not match declared ledger hash %s", blk.StateHash, digest, blk.LedgerHash))
	}

	f.nodes[blk.StateHash] = &frontierNode{
		block:    blk,
		parent:   blk.ParentHash,
		children: make(map[types.ID]struct{}),
		snapshot: snapshot,
	}
	parent.children[blk.StateHash] = struct{}{}

	prevBest := f.bestTip
	f.bestTip = f.selectBestTip()
	switch {
	case f.bestTip == prevBest:
		return OutcomeInserted, nil
	case f.bestTip == blk.StateHash && blk.ParentHash == prevBest:
		return OutcomeBestTipExtended, nil
	default:
		return OutcomeReorg, nil
	}
}

// selectBestTip runs fork choice over the current tips: greatest height
// wins, ties broken by the smaller state hash. The result is a pure
// function of the tree's contents, never of arrival order.
func (f *Frontier) selectBestTip() types.ID {
	best := f.root
	bestNode := f.nodes[f.root]
	for id, node := range f.nodes {
		if len(node.children) != 0 {
			continue
		}
		if node.block.Height > bestNode.block.Height ||
			(node.block.Height == bestNode.block.Height && id.Compare(best) < 0) {
			best = id
			bestNode = node
		}
	}
	return best
}

// PathFromRoot returns the blocks on the path from the root to the best
// tip, root first, best tip last.
func (f *Frontier) PathFromRoot() []*blocks.Block {
	depth := int(f.Depth()) + 1
	path := make([]*blocks.Block, depth)
	id := f.bestTip
	for i := depth - 1; i >= 0; i-- {
		node := f.nodes[id]
		path[i] = node.block
		id = node.parent
	}
	return path
}

// NextRootChild returns the child of the root that lies on the path to the
// best tip. The second return is false when the best tip is the root.
func (f *Frontier) NextRootChild() (types.ID, bool) {
	if f.bestTip == f.root {
		return types.ID{}, false
	}
	id := f.bestTip
	for {
		node := f.nodes[id]
		if node.parent == f.root {
			return id, true
		}
		id = node.parent
	}
}

// AdvanceRoot moves the root to the given child, discarding every sibling
// subtree of the new root. The caller must have durably committed the new
// root before calling; pruning is irreversible. The removed state hashes
// are returned.
func (f *Frontier) AdvanceRoot(child types.ID) ([]types.ID, error) {
	rootNode := f.nodes[f.root]
	if _, ok := rootNode.children[child]; !ok {
		return nil, AssertError(fmt.Sprintf("AdvanceRoot: %s is not a child of the root", child))
	}
	var pruned []types.ID
	for sibling := range rootNode.children {
		if sibling != child {
			pruned = f.removeSubtree(sibling, pruned)
		}
	}
	delete(f.nodes, f.root)
	f.root = child

	// The best tip lives in the new root's subtree by construction, but a
	// frontier advanced toward a non-best branch would leave it dangling.
	if _, ok := f.nodes[f.bestTip]; !ok {
		f.bestTip = f.selectBestTip()
	}
	return pruned, nil
}

func (f *Frontier) removeSubtree(id types.ID, removed []types.ID) []types.ID {
	node := f.nodes[id]
	for child := range node.children {
		removed = f.removeSubtree(child, removed)
	}
	delete(f.nodes, id)
	return append(removed, id)
}
