// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package repo

const (
	// BlockKeyPrefix is the datastore key prefix for finalized block records by state hash.
	BlockKeyPrefix = "/indexer/block/"
	// BlockByHeightKeyPrefix is the datastore key prefix for mapping canonical heights to state hashes.
	BlockByHeightKeyPrefix = "/indexer/blockbyheight/"
	// AccountKeyPrefix is the datastore key prefix for account states keyed by (public key, height).
	AccountKeyPrefix = "/indexer/account/"
	// RootStateKey is the datastore key for the singleton root metadata record.
	RootStateKey = "/indexer/root/"
	// GenesisHashKey is the datastore key for the genesis state hash the store was initialized with.
	GenesisHashKey = "/indexer/genesishash/"
)
