// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
	"github.com/stretchr/testify/require"
)

const (
	tAlice = "2xGBvCnXqBgELRsdREsQLr"
	tBob   = "Qmbo5VKFDLRQLrZ"
	tCarol = "3QJmV3qfvL9SuYo34YihAf"
)

func testGenesis() (*blocks.Block, ledger.Snapshot) {
	snapshot := ledger.Genesis([]ledger.Account{
		{PublicKey: tAlice, Balance: 100},
		{PublicKey: tBob, Balance: 50},
	})
	return GenesisBlock(snapshot), snapshot
}

// deriveBlock builds a child block whose ledger hash is the true digest of
// applying the diff to the parent snapshot. The salt byte makes sibling
// blocks with identical diffs distinguishable.
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

// deriveChain extends parent with a linear run of n blocks, each debiting
// one unit from alice.
func deriveChain(t *testing.T, parent *blocks.Block, parentSnap ledger.Snapshot, salt byte, n int) ([]*blocks.Block, ledger.Snapshot) {
	t.Helper()
	chain := make([]*blocks.Block, 0, n)
	blk, snap := parent, parentSnap
	for i := 0; i < n; i++ {
		blk, snap = deriveBlock(t, blk, snap, salt, []blocks.AccountDiff{
			{PublicKey: tAlice, BalanceChange: -1},
		})
		chain = append(chain, blk)
	}
	return chain, snap
}
