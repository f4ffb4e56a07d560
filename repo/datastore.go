// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package repo

import (
	"github.com/ipfs/go-datastore"
	badger "github.com/ipfs/go-ds-badger"
)

// Datastore is the interface the persistent chain store is built on. It is
// a transactional byte-oriented store with range scans; badger in
// production, a map datastore in tests.
type Datastore interface {
	datastore.Datastore
	datastore.Batching
	datastore.PersistentDatastore
	datastore.TxnDatastore
}

// NewBadgerDatastore opens (creating if necessary) the badger-backed
// datastore at dataDir.
func NewBadgerDatastore(dataDir string) (Datastore, error) {
	opts := badger.DefaultOptions
	return badger.NewDatastore(dataDir, &opts)
}
