// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/frontierlabs/indexer/repo"
	datastore "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
)

var _ repo.Datastore = (*MapDatastore)(nil)

// MapDatastore is an in-memory repo.Datastore for tests.
type MapDatastore struct {
	datastore.MapDatastore
	mtx sync.Mutex
}

func NewMapDatastore() *MapDatastore {
	ds := datastore.NewMapDatastore()
	return &MapDatastore{MapDatastore: *ds}
}

func (ds *MapDatastore) DiskUsage(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (ds *MapDatastore) NewTransaction(ctx context.Context, readOnly bool) (datastore.Txn, error) {
	return &txn{
		readOnly: readOnly,
		ds:       ds,
		puts:     make(map[datastore.Key][]byte),
		deletes:  make(map[datastore.Key]struct{}),
	}, nil
}

type txn struct {
	readOnly bool
	ds       *MapDatastore
	puts     map[datastore.Key][]byte
	deletes  map[datastore.Key]struct{}
}

func (t *txn) Get(ctx context.Context, key datastore.Key) (value []byte, err error) {
	if v, ok := t.puts[key]; ok {
		return v, nil
	}
	return t.ds.Get(ctx, key)
}

func (t *txn) Has(ctx context.Context, key datastore.Key) (exists bool, err error) {
	if _, ok := t.puts[key]; ok {
		return true, nil
	}
	return t.ds.Has(ctx, key)
}

func (t *txn) GetSize(ctx context.Context, key datastore.Key) (size int, err error) {
	return t.ds.GetSize(ctx, key)
}

func (t *txn) Query(ctx context.Context, q query.Query) (query.Results, error) {
	return t.ds.Query(ctx, q)
}

func (t *txn) Put(ctx context.Context, key datastore.Key, value []byte) error {
	if t.readOnly {
		return errors.New("transaction is read only")
	}
	t.puts[key] = value
	return nil
}

func (t *txn) Delete(ctx context.Context, key datastore.Key) error {
	if t.readOnly {
		return errors.New("transaction is read only")
	}
	t.deletes[key] = struct{}{}
	return nil
}

func (t *txn) Commit(ctx context.Context) error {
	t.ds.mtx.Lock()
	defer t.ds.mtx.Unlock()
	for k, v := range t.puts {
		if err := t.ds.Put(ctx, k, v); err != nil {
			return err
		}
	}
	for k := range t.deletes {
		if err := t.ds.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) Discard(ctx context.Context) {
	t.puts = make(map[datastore.Key][]byte)
	t.deletes = make(map[datastore.Key]struct{})
}

// FailingTxnDatastore wraps a MapDatastore and fails transaction commits
// after the first CommitsBeforeFailure succeed. It is used to exercise the
// commit-then-prune invariant.
type FailingTxnDatastore struct {
	*MapDatastore
	CommitsBeforeFailure int
}

var ErrCommitFailed = errors.New("commit failed")

func (ds *FailingTxnDatastore) NewTransaction(ctx context.Context, readOnly bool) (datastore.Txn, error) {
	inner, err := ds.MapDatastore.NewTransaction(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	return &failingTxn{Txn: inner, ds: ds}, nil
}

type failingTxn struct {
	datastore.Txn
	ds *FailingTxnDatastore
}

func (t *failingTxn) Commit(ctx context.Context) error {
	if t.ds.CommitsBeforeFailure <= 0 {
		return ErrCommitFailed
	}
	t.ds.CommitsBeforeFailure--
	return t.Txn.Commit(ctx)
}
