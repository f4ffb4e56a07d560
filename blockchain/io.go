// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/repo"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
	datastore "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
)

func dsPutBlock(dbtx datastore.Txn, blk *blocks.Block) error {
	ser, err := blk.Serialize()
	if err != nil {
		return err
	}
	return dbtx.Put(context.Background(), datastore.NewKey(repo.BlockKeyPrefix+blk.ID().String()), ser)
}

func dsFetchBlock(ds repo.Datastore, blockID types.ID) (*blocks.Block, error) {
	serialized, err := ds.Get(context.Background(), datastore.NewKey(repo.BlockKeyPrefix+blockID.String()))
	if err != nil {
		return nil, err
	}
	blk := &blocks.Block{}
	if err := blk.Deserialize(serialized); err != nil {
		return nil, err
	}
	return blk, nil
}

func dsPutBlockIDFromHeight(dbtx datastore.Txn, blockID types.ID, height uint32) error {
	return dbtx.Put(context.Background(), datastore.NewKey(repo.BlockByHeightKeyPrefix+fmt.Sprintf("%010d", int(height))), blockID[:])
}

func dsFetchBlockIDFromHeight(ds repo.Datastore, height uint32) (types.ID, error) {
	blockIDBytes, err := ds.Get(context.Background(), datastore.NewKey(repo.BlockByHeightKeyPrefix+fmt.Sprintf("%010d", int(height))))
	if err != nil {
		return types.ID{}, err
	}
	return types.NewID(blockIDBytes), nil
}

func accountKey(publicKey string, height uint32) datastore.Key {
	return datastore.NewKey(repo.AccountKeyPrefix + publicKey + "/" + fmt.Sprintf("%010d", int(height)))
}

func dsPutAccount(dbtx datastore.Txn, acct ledger.Account, height uint32) error {
	ser, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	return dbtx.Put(context.Background(), accountKey(acct.PublicKey, height), ser)
}

// dsFetchAccountAt returns the account's state as of the given height: the
// newest stored record whose height does not exceed atHeight.
func dsFetchAccountAt(ds repo.Datastore, publicKey string, atHeight uint32) (ledger.Account, error) {
	results, err := ds.Query(context.Background(), query.Query{
		Prefix: repo.AccountKeyPrefix + publicKey + "/",
		Orders: []query.Order{query.OrderByKeyDescending{}},
	})
	if err != nil {
		return ledger.Account{}, err
	}
	defer results.Close()

	for r := range results.Next() {
		if r.Error != nil {
			return ledger.Account{}, r.Error
		}
		height, err := heightFromAccountKey(r.Key)
		if err != nil {
			return ledger.Account{}, err
		}
		if height > atHeight {
			continue
		}
		var acct ledger.Account
		if err := json.Unmarshal(r.Value, &acct); err != nil {
			return ledger.Account{}, err
		}
		return acct, nil
	}
	return ledger.Account{}, datastore.ErrNotFound
}

// dsFetchAllAccountsAt scans the full account prefix and returns, for each
// public key, the newest record at or below the given height. This is how
// the root ledger snapshot is reconstructed on startup.
func dsFetchAllAccountsAt(ds repo.Datastore, atHeight uint32) ([]ledger.Account, error) {
	results, err := ds.Query(context.Background(), query.Query{
		Prefix: repo.AccountKeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	defer results.Close()

	type versioned struct {
		acct   ledger.Account
		height uint32
	}
	newest := make(map[string]versioned)
	for r := range results.Next() {
		if r.Error != nil {
			return nil, r.Error
		}
		height, err := heightFromAccountKey(r.Key)
		if err != nil {
			return nil, err
		}
		if height > atHeight {
			continue
		}
		var acct ledger.Account
		if err := json.Unmarshal(r.Value, &acct); err != nil {
			return nil, err
		}
		if prev, ok := newest[acct.PublicKey]; !ok || height > prev.height {
			newest[acct.PublicKey] = versioned{acct: acct, height: height}
		}
	}
	accounts := make([]ledger.Account, 0, len(newest))
	for _, v := range newest {
		accounts = append(accounts, v.acct)
	}
	return accounts, nil
}

func heightFromAccountKey(key string) (uint32, error) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 || idx == len(key)-1 {
		return 0, fmt.Errorf("malformed account key %s", key)
	}
	height, err := strconv.ParseUint(key[idx+1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed account key %s: %w", key, err)
	}
	return uint32(height), nil
}

type dbRootState struct {
	StateHash types.ID `json:"state_hash"`
	Height    uint32   `json:"height"`
}

func dsPutRootState(dbtx datastore.Txn, stateHash types.ID, height uint32) error {
	ser, err := json.Marshal(&dbRootState{StateHash: stateHash, Height: height})
	if err != nil {
		return err
	}
	return dbtx.Put(context.Background(), datastore.NewKey(repo.RootStateKey), ser)
}

func dsFetchRootState(ds repo.Datastore) (types.ID, uint32, error) {
	ser, err := ds.Get(context.Background(), datastore.NewKey(repo.RootStateKey))
	if err != nil {
		return types.ID{}, 0, err
	}
	var state dbRootState
	if err := json.Unmarshal(ser, &state); err != nil {
		return types.ID{}, 0, err
	}
	return state.StateHash, state.Height, nil
}

func dsPutGenesisHash(dbtx datastore.Txn, genesisHash types.ID) error {
	return dbtx.Put(context.Background(), datastore.NewKey(repo.GenesisHashKey), genesisHash[:])
}

func dsFetchGenesisHash(ds repo.Datastore) (types.ID, error) {
	hashBytes, err := ds.Get(context.Background(), datastore.NewKey(repo.GenesisHashKey))
	if err != nil {
		return types.ID{}, err
	}
	return types.NewID(hashBytes), nil
}
