// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/repo"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
	lru "github.com/hashicorp/golang-lru/v2"
	datastore "github.com/ipfs/go-datastore"
)

const blockCacheSize = 1000

// ChainStore is the persistent, append-only record of finalized blocks and
// the account states they produced. Everything below the frontier root lives
// here; nothing in the store is ever rewritten by a reorg.
type ChainStore struct {
	ds         repo.Datastore
	blockCache *lru.Cache[types.ID, *blocks.Block]
}

// NewChainStore returns a ChainStore backed by the given datastore.
func NewChainStore(ds repo.Datastore) (*ChainStore, error) {
	cache, err := lru.New[types.ID, *blocks.Block](blockCacheSize)
	if err != nil {
		return nil, err
	}
	return &ChainStore{
		ds:         ds,
		blockCache: cache,
	}, nil
}

// Initialized returns whether the store holds a genesis record.
func (s *ChainStore) Initialized() (bool, error) {
	return s.ds.Has(context.Background(), datastore.NewKey(repo.GenesisHashKey))
}

// GenesisHash returns the state hash of the genesis block the store was
// initialized with.
func (s *ChainStore) GenesisHash() (types.ID, error) {
	return dsFetchGenesisHash(s.ds)
}

// InitGenesis writes the genesis block, its full account set, and the
// initial root metadata in a single transaction. It must be called exactly
// once, on a store that is not yet initialized.
func (s *ChainStore) InitGenesis(root *blocks.Block, snapshot ledger.Snapshot) error {
	initialized, err := s.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		return AssertError("InitGenesis called on initialized store")
	}

	dbtx, err := s.ds.NewTransaction(context.Background(), false)
	if err != nil {
		return err
	}
	defer dbtx.Discard(context.Background())

	if err := dsPutBlock(dbtx, root); err != nil {
		return err
	}
	if err := dsPutBlockIDFromHeight(dbtx, root.ID(), root.Height); err != nil {
		return err
	}
	for _, acct := range snapshot.Accounts() {
		if err := dsPutAccount(dbtx, acct, root.Height); err != nil {
			return err
		}
	}
	if err := dsPutRootState(dbtx, root.ID(), root.Height); err != nil {
		return err
	}
	if err := dsPutGenesisHash(dbtx, root.ID()); err != nil {
		return err
	}
	return dbtx.Commit(context.Background())
}

// Commit finalizes a block: it writes the block record, the canonical
// height index entry, the post-block state of every account the block's
// diff touched, and the advanced root metadata, all in one transaction.
//
// The store is append-only. Committing a block at a height that already
// holds the same hash is a no-op; a different hash at an occupied height is
// an internal consistency failure.
func (s *ChainStore) Commit(blk *blocks.Block, snapshot ledger.Snapshot) error {
	existing, err := dsFetchBlockIDFromHeight(s.ds, blk.Height)
	if err == nil {
		if existing == blk.ID() {
			return nil
		}
		return AssertError(fmt.Sprintf("height %d already finalized as %s, cannot commit %s",
			blk.Height, existing, blk.ID()))
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return err
	}

	dbtx, err := s.ds.NewTransaction(context.Background(), false)
	if err != nil {
		return err
	}
	defer dbtx.Discard(context.Background())

	if err := dsPutBlock(dbtx, blk); err != nil {
		return err
	}
	if err := dsPutBlockIDFromHeight(dbtx, blk.ID(), blk.Height); err != nil {
		return err
	}
	touched := make(map[string]struct{})
	for _, entry := range blk.LedgerDiff {
		if _, ok := touched[entry.PublicKey]; ok {
			continue
		}
		touched[entry.PublicKey] = struct{}{}
		acct, ok := snapshot.Get(entry.PublicKey)
		if !ok {
			return AssertError(fmt.Sprintf("account %s in diff of block %s missing from snapshot",
				entry.PublicKey, blk.ID()))
		}
		if err := dsPutAccount(dbtx, acct, blk.Height); err != nil {
			return err
		}
	}
	if err := dsPutRootState(dbtx, blk.ID(), blk.Height); err != nil {
		return err
	}
	if err := dbtx.Commit(context.Background()); err != nil {
		return err
	}
	s.blockCache.Add(blk.ID(), blk)
	return nil
}

// GetBlock returns the finalized block with the given state hash.
func (s *ChainStore) GetBlock(blockID types.ID) (*blocks.Block, error) {
	if blk, ok := s.blockCache.Get(blockID); ok {
		return blk, nil
	}
	blk, err := dsFetchBlock(s.ds, blockID)
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, ruleError(ErrUnknownBlock, fmt.Sprintf("block %s not found", blockID))
	}
	if err != nil {
		return nil, err
	}
	s.blockCache.Add(blockID, blk)
	return blk, nil
}

// GetBlockByHeight returns the finalized block at the given canonical
// height.
func (s *ChainStore) GetBlockByHeight(height uint32) (*blocks.Block, error) {
	blockID, err := dsFetchBlockIDFromHeight(s.ds, height)
	if errors.Is(err, datastore.ErrNotFound) {
		return nil, ruleError(ErrUnknownBlock, fmt.Sprintf("no finalized block at height %d", height))
	}
	if err != nil {
		return nil, err
	}
	return s.GetBlock(blockID)
}

// GetCanonicalRange returns the finalized blocks with heights in
// [from, to], ascending. Heights above the finalized tip are skipped.
func (s *ChainStore) GetCanonicalRange(from, to uint32) ([]*blocks.Block, error) {
	var out []*blocks.Block
	for height := from; height <= to; height++ {
		blk, err := s.GetBlockByHeight(height)
		if ErrorIs(err, ErrUnknownBlock) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, blk)
	}
	return out, nil
}

// GetAccount returns the account's finalized state as of the given height.
func (s *ChainStore) GetAccount(publicKey string, atHeight uint32) (ledger.Account, error) {
	acct, err := dsFetchAccountAt(s.ds, publicKey, atHeight)
	if errors.Is(err, datastore.ErrNotFound) {
		return ledger.Account{}, ErrAccountNotFound
	}
	return acct, err
}

// LoadRoot reads the root metadata and reconstructs the root block and its
// full ledger snapshot from the per-account records. The reconstructed
// snapshot's digest is checked against the root block's declared ledger
// hash before it is trusted.
func (s *ChainStore) LoadRoot() (*blocks.Block, ledger.Snapshot, error) {
	rootID, rootHeight, err := dsFetchRootState(s.ds)
	if err != nil {
		return nil, ledger.Snapshot{}, err
	}
	root, err := s.GetBlock(rootID)
	if err != nil {
		return nil, ledger.Snapshot{}, err
	}
	accounts, err := dsFetchAllAccountsAt(s.ds, rootHeight)
	if err != nil {
		return nil, ledger.Snapshot{}, err
	}
	snapshot := ledger.NewSnapshot(accounts)
	if digest := snapshot.Hash(); digest != root.LedgerHash {
		return nil, ledger.Snapshot{}, AssertError(fmt.Sprintf(
			"reconstructed root snapshot digest %s does not match ledger hash %s of root %s",
			digest, root.LedgerHash, rootID))
	}
	return root, snapshot, nil
}
