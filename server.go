// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/frontierlabs/indexer/blockchain"
	"github.com/frontierlabs/indexer/ingest"
	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/repo"
	"github.com/frontierlabs/indexer/rpc"
	"github.com/frontierlabs/indexer/types"
)

// Server wires the constituent parts together into a full indexer: the
// embedded datastore, the chain, the ingestion pipeline with its directory
// sources, and the query API.
type Server struct {
	cancelFunc context.CancelFunc
	config     *repo.Config
	ds         repo.Datastore
	chain      *blockchain.Chain
	pipeline   *ingest.Pipeline
	watcher    *ingest.Watcher
	apiServer  *rpc.Server
}

// BuildServer is the constructor for the server. We pass in the config here
// and use it to configure all the various parts of the Server.
func BuildServer(cfg *repo.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	ds, err := repo.NewBadgerDatastore(cfg.DatabaseDir)
	if err != nil {
		cancel()
		return nil, err
	}

	var genesisLedger *ledger.Snapshot
	if cfg.InitialLedger != "" {
		snapshot, err := ledger.LoadGenesis(cfg.InitialLedger)
		if err != nil {
			cancel()
			return nil, err
		}
		genesisLedger = &snapshot
	}
	var expectedRootHash types.ID
	if cfg.RootHash != "" {
		expectedRootHash, err = types.NewIDFromString(cfg.RootHash)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	chain, err := blockchain.NewChain(&blockchain.Config{
		Datastore:        ds,
		GenesisLedger:    genesisLedger,
		IsGenesisLedger:  cfg.IsGenesisLedger,
		ExpectedRootHash: expectedRootHash,
		K:                cfg.FrontierDepth,
	})
	if err != nil {
		cancel()
		ds.Close()
		return nil, err
	}

	pipeline := ingest.NewPipeline(chain)
	pipeline.Start()

	if cfg.StartupDir != "" {
		if _, err := pipeline.BulkLoad(cfg.StartupDir); err != nil {
			cancel()
			pipeline.Close()
			ds.Close()
			return nil, err
		}
	}

	var watcher *ingest.Watcher
	if cfg.WatchDir != "" {
		watcher, err = ingest.NewWatcher(pipeline, cfg.WatchDir)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			cancel()
			pipeline.Close()
			ds.Close()
			return nil, err
		}
	}

	apiServer := rpc.NewServer(chain, cfg.Listen)
	go func() {
		if err := apiServer.Run(ctx); err != nil {
			log.Errorf("Query API error: %s", err)
		}
	}()

	summary := chain.Summary()
	log.Infof("Indexer ready: root %s height %d, best tip %s height %d",
		summary.RootHash, summary.RootHeight, summary.BestTipHash, summary.BestTipHeight)

	return &Server{
		cancelFunc: cancel,
		config:     cfg,
		ds:         ds,
		chain:      chain,
		pipeline:   pipeline,
		watcher:    watcher,
		apiServer:  apiServer,
	}, nil
}

// Done returns a channel closed when ingestion stops on its own, which only
// happens on a storage failure.
func (s *Server) Done() <-chan struct{} {
	return s.pipeline.Done()
}

// Err returns the error that stopped ingestion, if any.
func (s *Server) Err() error {
	return s.pipeline.Err()
}

// Close shuts down all the parts of the server and blocks until
// they have all stopped.
func (s *Server) Close() error {
	s.cancelFunc()
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			log.Errorf("Error closing watcher: %s", err)
		}
	}
	s.pipeline.Close()
	return s.ds.Close()
}
