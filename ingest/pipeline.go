// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package ingest

import (
	"errors"
	"sync"

	"github.com/frontierlabs/indexer/blockchain"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
)

const blockChanSize = 256

// Pipeline drives block records from the bulk loader and the directory
// watcher into the chain. A single consumer goroutine applies blocks in
// arrival order; out-of-order children are parked in an orphan buffer keyed
// by the missing parent hash and retried when that parent lands.
//
// A storage failure during finalization halts the pipeline: the consumer
// stops accepting blocks and Done is closed with the error recorded.
type Pipeline struct {
	chain   *blockchain.Chain
	blockCh chan *blocks.Block
	orphans map[types.ID][]*blocks.Block

	quit     chan struct{}
	done     chan struct{}
	haltErr  error
	haltOnce sync.Once
	wg       sync.WaitGroup
}

// NewPipeline returns a pipeline feeding the given chain. Start must be
// called before submitting blocks.
func NewPipeline(chain *blockchain.Chain) *Pipeline {
	return &Pipeline{
		chain:   chain,
		blockCh: make(chan *blocks.Block, blockChanSize),
		orphans: make(map[types.ID][]*blocks.Block),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.consumeBlocks()
}

// SubmitBlock queues a block for processing. Blocks submitted after the
// pipeline has halted or closed are dropped.
func (p *Pipeline) SubmitBlock(blk *blocks.Block) {
	select {
	case p.blockCh <- blk:
	case <-p.done:
	}
}

// Done returns a channel closed when the pipeline stops, either by Close or
// by a storage failure.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err returns the storage error that halted the pipeline, if any.
func (p *Pipeline) Err() error {
	return p.haltErr
}

// Close stops the consumer and waits for it to exit. Blocks still queued
// in the channel are dropped; they will be re-discovered from disk on the
// next startup.
func (p *Pipeline) Close() {
	close(p.quit)
	p.wg.Wait()
	p.halt(nil)
}

func (p *Pipeline) halt(err error) {
	p.haltOnce.Do(func() {
		p.haltErr = err
		close(p.done)
	})
}

func (p *Pipeline) consumeBlocks() {
	defer p.wg.Done()
	for {
		select {
		case blk := <-p.blockCh:
			if err := p.process(blk); err != nil {
				log.Errorf("Ingestion halted: %s", err)
				p.halt(err)
				return
			}
		case <-p.quit:
			return
		}
	}
}

// process inserts one block and retries any orphans that were waiting on
// it. Only storage failures are returned; rule violations are logged and
// absorbed here.
func (p *Pipeline) process(blk *blocks.Block) error {
	outcome, err := p.chain.ProcessBlock(blk)
	switch {
	case err == nil:
	case blockchain.ErrorIs(err, blockchain.ErrOrphanBlock):
		log.Debugf("Buffering orphan block %s height %d awaiting parent %s",
			blk.StateHash, blk.Height, blk.ParentHash)
		p.orphans[blk.ParentHash] = append(p.orphans[blk.ParentHash], blk)
		return nil
	case blockchain.ErrorIs(err, blockchain.ErrStaleBlock):
		log.Debugf("Discarding stale block %s height %d", blk.StateHash, blk.Height)
		return nil
	default:
		var re blockchain.RuleError
		if errors.As(err, &re) {
			log.Warnf("Rejected block %s height %d: %s", blk.StateHash, blk.Height, err)
			return nil
		}
		return err
	}
	if outcome == blockchain.OutcomeDuplicate {
		log.Debugf("Ignoring duplicate block %s", blk.StateHash)
		return nil
	}

	// The new block may unblock a buffered subtree.
	waiting := p.orphans[blk.StateHash]
	delete(p.orphans, blk.StateHash)
	for _, orphan := range waiting {
		if err := p.process(orphan); err != nil {
			return err
		}
	}
	p.pruneOrphans()
	return nil
}

// pruneOrphans drops buffered blocks the advancing root has made
// permanently unattachable.
func (p *Pipeline) pruneOrphans() {
	rootHeight := p.chain.Root().Height
	for parent, waiting := range p.orphans {
		kept := waiting[:0]
		for _, blk := range waiting {
			if blk.Height > rootHeight {
				kept = append(kept, blk)
			} else {
				log.Debugf("Dropping buffered orphan %s height %d below root", blk.StateHash, blk.Height)
			}
		}
		if len(kept) == 0 {
			delete(p.orphans, parent)
		} else {
			p.orphans[parent] = kept
		}
	}
}
