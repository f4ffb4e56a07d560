// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierInsertOutcomes(t *testing.T) {
	root, snap := testGenesis()
	f, err := NewFrontier(root, snap, 10)
	require.NoError(t, err)

	b1, s1 := deriveBlock(t, root, snap, 0x01, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -10},
	})
	outcome, err := f.Insert(b1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBestTipExtended, outcome)
	assert.Equal(t, b1.StateHash, f.BestTip().StateHash)
	assert.Equal(t, 2, f.Len())

	// Re-inserting must be a no-op.
	outcome, err = f.Insert(b1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 2, f.Len())

	b2, _ := deriveBlock(t, b1, s1, 0x02, []blocks.AccountDiff{
		{PublicKey: tBob, BalanceChange: 5},
	})
	outcome, err = f.Insert(b2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBestTipExtended, outcome)
	assert.Equal(t, uint32(2), f.Depth())
}

func TestFrontierInsertErrors(t *testing.T) {
	root, snap := testGenesis()
	f, err := NewFrontier(root, snap, 10)
	require.NoError(t, err)

	b1, s1 := deriveBlock(t, root, snap, 0x01, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -10},
	})

	// Orphan: parent not in the frontier.
	orphan, _ := deriveBlock(t, b1, s1, 0x02, nil)
	_, err = f.Insert(orphan)
	assert.True(t, ErrorIs(err, ErrOrphanBlock))

	// Stale: height at or below the root.
	stale := &blocks.Block{
		StateHash:  types.NewIDFromData([]byte("stale")),
		ParentHash: root.ParentHash,
		Height:     root.Height,
		LedgerHash: root.LedgerHash,
	}
	_, err = f.Insert(stale)
	assert.True(t, ErrorIs(err, ErrStaleBlock))

	// Height must be parent height + 1.
	skipped := &blocks.Block{
		StateHash:  types.NewIDFromData([]byte("skipped")),
		ParentHash: root.StateHash,
		Height:     root.Height + 5,
		LedgerHash: root.LedgerHash,
	}
	_, err = f.Insert(skipped)
	assert.True(t, ErrorIs(err, ErrInvalidHeight))

	// Declared ledger hash must match the replayed digest.
	bad, _ := deriveBlock(t, root, snap, 0x03, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -1},
	})
	bad.LedgerHash = types.NewIDFromData([]byte("wrong"))
	_, err = f.Insert(bad)
	assert.True(t, ErrorIs(err, ErrLedgerMismatch))

	// A diff that overdraws an account is rejected.
	overdraw, _ := deriveBlock(t, root, snap, 0x04, nil)
	overdraw.LedgerDiff = []blocks.AccountDiff{{PublicKey: tAlice, BalanceChange: -1000}}
	_, err = f.Insert(overdraw)
	assert.True(t, ErrorIs(err, ErrInsufficientBalance))

	// None of the failures should have grown the tree.
	require.NoError(t, func() error { _, err := f.Insert(b1); return err }())
	assert.Equal(t, 2, f.Len())
}

func TestFrontierForkChoiceOrderIndependence(t *testing.T) {
	root, snap := testGenesis()

	b1, s1 := deriveBlock(t, root, snap, 0x01, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -10},
	})
	b2, _ := deriveBlock(t, b1, s1, 0x02, []blocks.AccountDiff{
		{PublicKey: tBob, BalanceChange: 1},
	})
	c1, _ := deriveBlock(t, root, snap, 0x03, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -5},
	})

	orders := [][]*blocks.Block{
		{b1, b2, c1},
		{b1, c1, b2},
		{c1, b1, b2},
	}
	for _, order := range orders {
		f, err := NewFrontier(root, snap, 10)
		require.NoError(t, err)
		for _, blk := range order {
			_, err := f.Insert(blk)
			require.NoError(t, err)
		}
		// b2 is the only tip at height 2 so it must win regardless of
		// the order the tree was assembled in.
		assert.Equal(t, b2.StateHash, f.BestTip().StateHash)
		assert.Len(t, f.Tips(), 2)
	}
}

func TestFrontierCompetingTipsTieBreak(t *testing.T) {
	root, snap := testGenesis()
	f, err := NewFrontier(root, snap, 10)
	require.NoError(t, err)

	b1, _ := deriveBlock(t, root, snap, 0x01, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -10},
	})
	b1p, _ := deriveBlock(t, root, snap, 0x02, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -5},
	})
	require.NotEqual(t, b1.StateHash, b1p.StateHash)

	_, err = f.Insert(b1)
	require.NoError(t, err)
	_, err = f.Insert(b1p)
	require.NoError(t, err)

	winner, winnerBalance := b1, types.Amount(90)
	if b1p.StateHash.Compare(b1.StateHash) < 0 {
		winner, winnerBalance = b1p, 95
	}
	assert.Equal(t, winner.StateHash, f.BestTip().StateHash)

	acct, ok := f.BestTipSnapshot().Get(tAlice)
	require.True(t, ok)
	assert.Equal(t, winnerBalance, acct.Balance)

	// Same blocks in the opposite order select the same tip.
	f2, err := NewFrontier(root, snap, 10)
	require.NoError(t, err)
	_, err = f2.Insert(b1p)
	require.NoError(t, err)
	_, err = f2.Insert(b1)
	require.NoError(t, err)
	assert.Equal(t, winner.StateHash, f2.BestTip().StateHash)
}

func TestFrontierReorg(t *testing.T) {
	root, snap := testGenesis()
	f, err := NewFrontier(root, snap, 10)
	require.NoError(t, err)

	b1, _ := deriveBlock(t, root, snap, 0x01, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -10},
	})
	c1, cs1 := deriveBlock(t, root, snap, 0x02, []blocks.AccountDiff{
		{PublicKey: tAlice, BalanceChange: -5},
	})
	c2, _ := deriveBlock(t, c1, cs1, 0x03, []blocks.AccountDiff{
		{PublicKey: tBob, BalanceChange: 1},
	})

	_, err = f.Insert(b1)
	require.NoError(t, err)
	_, err = f.Insert(c1)
	require.NoError(t, err)

	prevBest := f.BestTip().StateHash
	outcome, err := f.Insert(c2)
	require.NoError(t, err)
	assert.Equal(t, c2.StateHash, f.BestTip().StateHash)
	if prevBest == c1.StateHash {
		assert.Equal(t, OutcomeBestTipExtended, outcome)
	} else {
		assert.Equal(t, OutcomeReorg, outcome)
	}
}

func TestFrontierAdvanceRoot(t *testing.T) {
	root, snap := testGenesis()
	f, err := NewFrontier(root, snap, 10)
	require.NoError(t, err)

	chain, _ := deriveChain(t, root, snap, 0x01, 3)
	sibling, _ := deriveBlock(t, root, snap, 0xff, []blocks.AccountDiff{
		{PublicKey: tBob, BalanceChange: -1},
	})
	for _, blk := range chain {
		_, err := f.Insert(blk)
		require.NoError(t, err)
	}
	_, err = f.Insert(sibling)
	require.NoError(t, err)
	require.Equal(t, 5, f.Len())

	child, ok := f.NextRootChild()
	require.True(t, ok)
	assert.Equal(t, chain[0].StateHash, child)

	pruned, err := f.AdvanceRoot(child)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{sibling.StateHash}, pruned)
	assert.Equal(t, chain[0].StateHash, f.Root().StateHash)
	assert.False(t, f.Has(sibling.StateHash))
	assert.False(t, f.Has(root.StateHash))
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, chain[2].StateHash, f.BestTip().StateHash)

	// Advancing to a non-child is an internal error.
	_, err = f.AdvanceRoot(chain[2].StateHash)
	var assertErr AssertError
	assert.ErrorAs(t, err, &assertErr)
}

func TestFrontierPathFromRoot(t *testing.T) {
	root, snap := testGenesis()
	f, err := NewFrontier(root, snap, 10)
	require.NoError(t, err)

	chain, _ := deriveChain(t, root, snap, 0x01, 4)
	for _, blk := range chain {
		_, err := f.Insert(blk)
		require.NoError(t, err)
	}
	path := f.PathFromRoot()
	require.Len(t, path, 5)
	assert.Equal(t, root.StateHash, path[0].StateHash)
	for i, blk := range chain {
		assert.Equal(t, blk.StateHash, path[i+1].StateHash)
	}
}

func TestNewFrontierLedgerMismatch(t *testing.T) {
	root, snap := testGenesis()
	root.LedgerHash = types.NewIDFromData([]byte("corrupt"))
	_, err := NewFrontier(root, snap, 10)
	assert.True(t, ErrorIs(err, ErrLedgerMismatch))
}
