// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"sync"
	"time"

	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/repo"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
)

// Config holds the options for initializing a Chain.
type Config struct {
	// Datastore backs the persistent chain store.
	Datastore repo.Datastore

	// GenesisLedger is the initial account set. Required when the
	// datastore has not been initialized yet.
	GenesisLedger *ledger.Snapshot

	// IsGenesisLedger marks GenesisLedger as the chain's genesis. On an
	// already-initialized store its digest must match the stored genesis.
	IsGenesisLedger bool

	// ExpectedRootHash, if set, is checked against the genesis state hash.
	ExpectedRootHash types.ID

	// K is the finality depth. Zero selects repo.DefaultFrontierDepth.
	K uint32
}

// GenesisBlock builds the synthetic block record anchoring the chain: its
// state hash and ledger hash are both the genesis snapshot's digest, its
// parent hash is zero and its height is zero.
func GenesisBlock(snapshot ledger.Snapshot) *blocks.Block {
	digest := snapshot.Hash()
	return &blocks.Block{
		StateHash:  digest,
		ParentHash: types.ID{},
		Height:     0,
		GlobalSlot: 0,
		LedgerHash: digest,
	}
}

// Chain wraps the transition frontier and the persistent chain store behind
// a single lock. All mutation flows through ProcessBlock; queries take a
// read lock and see one consistent view.
type Chain struct {
	store    *ChainStore
	frontier *Frontier

	stateLock       sync.RWMutex
	blocksProcessed uint64
	initTime        time.Time
}

// NewChain initializes a chain from the config. A fresh datastore requires
// a genesis ledger and writes the genesis record; an initialized datastore
// is resumed from its stored root.
func NewChain(cfg *Config) (*Chain, error) {
	if cfg.Datastore == nil {
		return nil, AssertError("NewChain: datastore is required")
	}
	k := cfg.K
	if k == 0 {
		k = repo.DefaultFrontierDepth
	}
	store, err := NewChainStore(cfg.Datastore)
	if err != nil {
		return nil, err
	}
	initialized, err := store.Initialized()
	if err != nil {
		return nil, err
	}

	var (
		root     *blocks.Block
		snapshot ledger.Snapshot
	)
	if !initialized {
		if cfg.GenesisLedger == nil {
			return nil, ruleError(ErrRootMismatch,
				"datastore is empty and no genesis ledger was provided")
		}
		snapshot = *cfg.GenesisLedger
		root = GenesisBlock(snapshot)
		if !cfg.ExpectedRootHash.IsZero() && cfg.ExpectedRootHash != root.StateHash {
			return nil, ruleError(ErrRootMismatch, fmt.Sprintf(
				"computed genesis hash %s does not match expected root hash %s",
				root.StateHash, cfg.ExpectedRootHash))
		}
		if err := store.InitGenesis(root, snapshot); err != nil {
			return nil, err
		}
		log.Infof("Initialized new chain with genesis %s (%d accounts)", root.StateHash, snapshot.Len())
	} else {
		genesisHash, err := store.GenesisHash()
		if err != nil {
			return nil, err
		}
		if cfg.IsGenesisLedger && cfg.GenesisLedger != nil {
			if digest := cfg.GenesisLedger.Hash(); digest != genesisHash {
				return nil, ruleError(ErrRootMismatch, fmt.Sprintf(
					"provided genesis ledger digest %s does not match stored genesis %s",
					digest, genesisHash))
			}
		}
		if !cfg.ExpectedRootHash.IsZero() && cfg.ExpectedRootHash != genesisHash {
			return nil, ruleError(ErrRootMismatch, fmt.Sprintf(
				"stored genesis hash %s does not match expected root hash %s",
				genesisHash, cfg.ExpectedRootHash))
		}
		root, snapshot, err = store.LoadRoot()
		if err != nil {
			return nil, err
		}
		log.Infof("Resumed chain at root %s height %d (%d accounts)", root.StateHash, root.Height, snapshot.Len())
	}

	frontier, err := NewFrontier(root, snapshot, k)
	if err != nil {
		return nil, err
	}
	return &Chain{
		store:    store,
		frontier: frontier,
		initTime: time.Now(),
	}, nil
}

// ProcessBlock inserts a block into the frontier and runs finalization.
//
// Rule violations (orphan, stale, ledger mismatch) are returned as
// RuleErrors and leave chain state untouched; the caller decides whether to
// buffer, drop or log. Any other error is a storage failure during
// finalization and the caller must stop feeding blocks.
func (c *Chain) ProcessBlock(blk *blocks.Block) (InsertOutcome, error) {
	c.stateLock.Lock()
	outcome, err := c.frontier.Insert(blk)
	if err != nil {
		c.stateLock.Unlock()
		return 0, err
	}
	if outcome != OutcomeDuplicate {
		c.blocksProcessed++
	}
	c.stateLock.Unlock()

	if outcome == OutcomeDuplicate {
		return outcome, nil
	}
	log.Debugf("Block %s height %d: %s", blk.StateHash, blk.Height, outcome)
	if err := c.finalize(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// finalize advances the root along the best-tip path until the frontier
// depth is within K, one step per lock acquisition so readers interleave.
// Each step durably commits the new root before pruning.
func (c *Chain) finalize() error {
	for {
		c.stateLock.Lock()
		if c.frontier.Depth() <= c.frontier.K() {
			c.stateLock.Unlock()
			return nil
		}
		child, ok := c.frontier.NextRootChild()
		if !ok {
			c.stateLock.Unlock()
			return AssertError("finalize: frontier over depth with no root child")
		}
		blk, _ := c.frontier.Block(child)
		snapshot, _ := c.frontier.Snapshot(child)
		if err := c.store.Commit(blk, snapshot); err != nil {
			c.stateLock.Unlock()
			return fmt.Errorf("finalize block %s height %d: %w", blk.StateHash, blk.Height, err)
		}
		pruned, err := c.frontier.AdvanceRoot(child)
		c.stateLock.Unlock()
		if err != nil {
			return err
		}
		log.Debugf("Finalized block %s height %d, pruned %d frontier nodes", blk.StateHash, blk.Height, len(pruned))
	}
}

// BestTip returns the current best tip block.
func (c *Chain) BestTip() *blocks.Block {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.frontier.BestTip()
}

// Root returns the most recently finalized block.
func (c *Chain) Root() *blocks.Block {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.frontier.Root()
}

// GetBlock returns the block with the given state hash, checking the
// frontier first and falling back to the chain store.
func (c *Chain) GetBlock(blockID types.ID) (*blocks.Block, error) {
	c.stateLock.RLock()
	blk, ok := c.frontier.Block(blockID)
	c.stateLock.RUnlock()
	if ok {
		return blk, nil
	}
	return c.store.GetBlock(blockID)
}

// GetAccount returns the account state as seen from the best tip, along
// with the tip height it was read at. Both are captured under a single lock
// acquisition so the pair is always from one consistent view.
func (c *Chain) GetAccount(publicKey string) (ledger.Account, uint32, error) {
	c.stateLock.RLock()
	acct, ok := c.frontier.BestTipSnapshot().Get(publicKey)
	height := c.frontier.BestTip().Height
	c.stateLock.RUnlock()
	if !ok {
		return ledger.Account{}, height, ErrAccountNotFound
	}
	return acct, height, nil
}

// BestChain returns up to limit blocks of the best chain ending at the best
// tip, ascending by height. A non-positive limit returns the whole chain
// back to genesis.
func (c *Chain) BestChain(limit int) ([]*blocks.Block, error) {
	c.stateLock.RLock()
	path := c.frontier.PathFromRoot()
	c.stateLock.RUnlock()

	if limit > 0 && len(path) >= limit {
		return path[len(path)-limit:], nil
	}
	rootHeight := path[0].Height
	if rootHeight == 0 {
		return path, nil
	}
	to := rootHeight - 1
	from := uint32(0)
	if limit > 0 {
		need := uint32(limit - len(path))
		if need <= to {
			from = to - need + 1
		}
	}
	below, err := c.store.GetCanonicalRange(from, to)
	if err != nil {
		return nil, err
	}
	return append(below, path...), nil
}

// SummaryInfo is a point-in-time view of the chain's state.
type SummaryInfo struct {
	Uptime          time.Duration `json:"uptime"`
	BlocksProcessed uint64        `json:"blocks_processed"`
	RootHash        types.ID      `json:"root_hash"`
	RootHeight      uint32        `json:"root_height"`
	BestTipHash     types.ID      `json:"best_tip_hash"`
	BestTipHeight   uint32        `json:"best_tip_height"`
	FrontierLen     int           `json:"frontier_len"`
}

// Summary returns a consistent snapshot of chain statistics.
func (c *Chain) Summary() SummaryInfo {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	root := c.frontier.Root()
	tip := c.frontier.BestTip()
	return SummaryInfo{
		Uptime:          time.Since(c.initTime),
		BlocksProcessed: c.blocksProcessed,
		RootHash:        root.StateHash,
		RootHeight:      root.Height,
		BestTipHash:     tip.StateHash,
		BestTipHeight:   tip.Height,
		FrontierLen:     c.frontier.Len(),
	}
}

// Store exposes the persistent chain store for read-only use.
func (c *Chain) Store() *ChainStore {
	return c.store
}
