// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package ingest

import (
	"testing"
	"time"

	"github.com/frontierlabs/indexer/blockchain"
	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/repo/mock"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tAlice = "2xGBvCnXqBgELRsdREsQLr"
	tBob   = "Qmbo5VKFDLRQLrZ"
)

func newTestChain(t *testing.T, ds *mock.MapDatastore, k uint32) (*blockchain.Chain, *blocks.Block, ledger.Snapshot) {
	t.Helper()
	snap := ledger.Genesis([]ledger.Account{
		{PublicKey: tAlice, Balance: 100},
		{PublicKey: tBob, Balance: 50},
	})
	chain, err := blockchain.NewChain(&blockchain.Config{
		Datastore:       ds,
		GenesisLedger:   &snap,
		IsGenesisLedger: true,
		K:               k,
	})
	require.NoError(t, err)
	return chain, blockchain.GenesisBlock(snap), snap
}

func deriveBlock(t *testing.T, parent *blocks.Block, parentSnap ledger.Snapshot, salt byte, diff []blocks.AccountDiff) (*blocks.Block, ledger.Snapshot) {
	t.Helper()
	childSnap, err := parentSnap.Apply(diff)
	require.NoError(t, err)
	seed := append([]byte{salt}, parent.StateHash.Bytes()...)
	return &blocks.Block{
		StateHash:  types.NewIDFromData(seed),
		ParentHash: parent.StateHash,
		Height:     parent.Height + 1,
		GlobalSlot: parent.GlobalSlot + 1,
		LedgerHash: childSnap.Hash(),
		LedgerDiff: diff,
	}, childSnap
}

func deriveChain(t *testing.T, parent *blocks.Block, parentSnap ledger.Snapshot, salt byte, n int) []*blocks.Block {
	t.Helper()
	chain := make([]*blocks.Block, 0, n)
	blk, snap := parent, parentSnap
	for i := 0; i < n; i++ {
		blk, snap = deriveBlock(t, blk, snap, salt, []blocks.AccountDiff{
			{PublicKey: tAlice, BalanceChange: -1},
		})
		chain = append(chain, blk)
	}
	return chain
}

func TestPipelineOrphanRecovery(t *testing.T) {
	chain, root, snap := newTestChain(t, mock.NewMapDatastore(), 10)
	p := NewPipeline(chain)

	run := deriveChain(t, root, snap, 0x01, 3)

	// Children first: everything parks in the orphan buffer.
	require.NoError(t, p.process(run[2]))
	require.NoError(t, p.process(run[1]))
	assert.Equal(t, root.StateHash, chain.BestTip().StateHash)
	assert.Len(t, p.orphans, 2)

	// The missing ancestor unblocks the whole buffered subtree.
	require.NoError(t, p.process(run[0]))
	assert.Equal(t, run[2].StateHash, chain.BestTip().StateHash)
	assert.Empty(t, p.orphans)
}

func TestPipelineAbsorbsRuleViolations(t *testing.T) {
	chain, root, snap := newTestChain(t, mock.NewMapDatastore(), 10)
	p := NewPipeline(chain)

	run := deriveChain(t, root, snap, 0x01, 2)
	require.NoError(t, p.process(run[0]))
	require.NoError(t, p.process(run[0])) // duplicate
	assert.Equal(t, run[0].StateHash, chain.BestTip().StateHash)

	// Stale blocks are dropped silently.
	stale := &blocks.Block{
		StateHash:  types.NewIDFromData([]byte("stale")),
		ParentHash: root.ParentHash,
		Height:     0,
		LedgerHash: root.LedgerHash,
	}
	require.NoError(t, p.process(stale))

	// A corrupt ledger hash is rejected but does not stop ingestion.
	bad := *run[1]
	bad.LedgerHash = types.NewIDFromData([]byte("corrupt"))
	require.NoError(t, p.process(&bad))
	assert.Equal(t, run[0].StateHash, chain.BestTip().StateHash)

	require.NoError(t, p.process(run[1]))
	assert.Equal(t, run[1].StateHash, chain.BestTip().StateHash)
}

func TestPipelineHaltsOnStorageFailure(t *testing.T) {
	ds := &mock.FailingTxnDatastore{
		MapDatastore:         mock.NewMapDatastore(),
		CommitsBeforeFailure: 1, // genesis only
	}
	snap := ledger.Genesis([]ledger.Account{
		{PublicKey: tAlice, Balance: 100},
	})
	chain, err := blockchain.NewChain(&blockchain.Config{
		Datastore:       ds,
		GenesisLedger:   &snap,
		IsGenesisLedger: true,
		K:               1,
	})
	require.NoError(t, err)

	p := NewPipeline(chain)
	p.Start()
	defer p.Close()

	run := deriveChain(t, blockchain.GenesisBlock(snap), snap, 0x01, 2)
	for _, blk := range run {
		p.SubmitBlock(blk)
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not halt on storage failure")
	}
	assert.ErrorIs(t, p.Err(), mock.ErrCommitFailed)
}

func TestPipelineConsumer(t *testing.T) {
	chain, root, snap := newTestChain(t, mock.NewMapDatastore(), 10)
	p := NewPipeline(chain)
	p.Start()
	defer p.Close()

	run := deriveChain(t, root, snap, 0x01, 5)
	// Deliberately out of order.
	for _, i := range []int{3, 1, 0, 4, 2} {
		p.SubmitBlock(run[i])
	}
	assert.Eventually(t, func() bool {
		return chain.BestTip().StateHash == run[4].StateHash
	}, 5*time.Second, 10*time.Millisecond)
}
