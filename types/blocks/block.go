// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blocks

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/frontierlabs/indexer/types"
	"github.com/tidwall/gjson"
)

// AccountDiff is a single account-state delta inside a block's ledger diff.
// BalanceChange may be negative. Nonce, if present, is the account's new
// nonce and must not be lower than its current one. Delegate, if present,
// replaces the account's delegate.
type AccountDiff struct {
	PublicKey     string  `json:"public_key"`
	BalanceChange int64   `json:"balance_change"`
	Nonce         *uint64 `json:"nonce,omitempty"`
	Delegate      *string `json:"delegate,omitempty"`
}

// Block is a precomputed block record. Blocks arrive as one JSON file per
// block and are trusted to be internally consistent with their declared
// parent, height and hash; no protocol validation is performed here.
type Block struct {
	StateHash  types.ID      `json:"state_hash"`
	ParentHash types.ID      `json:"parent_hash"`
	Height     uint32        `json:"height"`
	GlobalSlot uint64        `json:"global_slot"`
	LedgerHash types.ID      `json:"ledger_hash"`
	LedgerDiff []AccountDiff `json:"ledger_diff"`
}

// ID returns the block's state hash.
func (b *Block) ID() types.ID {
	return b.StateHash
}

// Serialize returns the canonical JSON encoding of the block.
func (b *Block) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

// Deserialize parses a block from its JSON encoding.
func (b *Block) Deserialize(data []byte) error {
	return json.Unmarshal(data, b)
}

// DecodeFile reads and parses a precomputed block file.
func DecodeFile(path string) (*Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	blk := &Block{}
	if err := blk.Deserialize(data); err != nil {
		return nil, fmt.Errorf("malformed block file %s: %w", path, err)
	}
	if blk.StateHash.IsZero() {
		return nil, fmt.Errorf("block file %s missing state_hash", path)
	}
	return blk, nil
}

// FileInfo is the subset of a block file the watcher needs before deciding
// whether a full parse is worthwhile.
type FileInfo struct {
	StateHash string
	Height    uint32
}

// SniffFile extracts the height and state hash from a block file without
// decoding the whole record. Returns an error if either field is absent,
// which is also how a partially written file presents.
func SniffFile(path string) (*FileInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	results := gjson.GetManyBytes(data, "state_hash", "height")
	if !results[0].Exists() || !results[1].Exists() {
		return nil, fmt.Errorf("block file %s missing state_hash or height", path)
	}
	return &FileInfo{
		StateHash: results[0].String(),
		Height:    uint32(results[1].Uint()),
	}, nil
}
