// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blocks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/frontierlabs/indexer/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock() *Block {
	nonce := uint64(1)
	return &Block{
		StateHash:  types.NewIDFromData([]byte("b1")),
		ParentHash: types.NewIDFromData([]byte("genesis")),
		Height:     1,
		GlobalSlot: 7,
		LedgerHash: types.NewIDFromData([]byte("ledger1")),
		LedgerDiff: []AccountDiff{
			{PublicKey: "alice", BalanceChange: -10, Nonce: &nonce},
			{PublicKey: "bob", BalanceChange: 10},
		},
	}
}

func TestBlockSerializeRoundTrip(t *testing.T) {
	blk := testBlock()
	ser, err := blk.Serialize()
	require.NoError(t, err)

	blk2 := &Block{}
	require.NoError(t, blk2.Deserialize(ser))
	assert.Equal(t, blk, blk2)
	assert.Equal(t, blk.StateHash, blk2.ID())
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	blk := testBlock()
	ser, err := blk.Serialize()
	require.NoError(t, err)

	path := filepath.Join(dir, "block.json")
	require.NoError(t, os.WriteFile(path, ser, 0644))

	blk2, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, blk, blk2)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"height": 1`), 0644))
	_, err = DecodeFile(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0644))
	_, err = DecodeFile(empty)
	assert.Error(t, err)
}

func TestSniffFile(t *testing.T) {
	dir := t.TempDir()
	blk := testBlock()
	ser, err := blk.Serialize()
	require.NoError(t, err)

	path := filepath.Join(dir, "block.json")
	require.NoError(t, os.WriteFile(path, ser, 0644))

	info, err := SniffFile(path)
	require.NoError(t, err)
	assert.Equal(t, blk.StateHash.String(), info.StateHash)
	assert.Equal(t, uint32(1), info.Height)

	// A half written file has no usable height yet.
	partial := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(partial, ser[:20], 0644))
	_, err = SniffFile(partial)
	assert.Error(t, err)
}
