// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/frontierlabs/indexer/types/blocks"
	"github.com/fsnotify/fsnotify"
)

const (
	fileRetryInterval = 250 * time.Millisecond
	fileRetryMax      = 8
)

// Watcher monitors a directory for new block files and submits them to the
// pipeline. Files are often discovered while the producer is still writing
// them, so each file is read under a bounded constant backoff until it
// parses or the retries run out.
type Watcher struct {
	pipeline *Pipeline
	notifier *fsnotify.Watcher
	dir      string

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher returns a watcher for the given directory. Files already
// present are submitted on Start, then fsnotify events take over.
func NewWatcher(pipeline *Pipeline, dir string) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := notifier.Add(dir); err != nil {
		notifier.Close()
		return nil, err
	}
	return &Watcher{
		pipeline: pipeline,
		notifier: notifier,
		dir:      dir,
		quit:     make(chan struct{}),
	}, nil
}

// Start submits files already in the directory and begins watching for new
// ones.
func (w *Watcher) Start() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && isBlockFile(entry.Name()) {
			w.handleFile(filepath.Join(w.dir, entry.Name()))
		}
	}
	w.wg.Add(1)
	go w.watchEvents()
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.quit)
	err := w.notifier.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			// A file moved into the directory arrives as Create; a
			// Rename event names the old path of a file moved away,
			// which there is no point reading.
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isBlockFile(event.Name) {
				continue
			}
			w.handleFile(event.Name)
		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			log.Errorf("Directory watcher error: %s", err)
		case <-w.quit:
			return
		}
	}
}

// handleFile sniffs the file, skips it if it is already below the root, and
// otherwise decodes and submits it. A sniff or decode failure is retried;
// a half-written file presents exactly like a malformed one.
func (w *Watcher) handleFile(path string) {
	var blk *blocks.Block
	op := func() error {
		info, err := blocks.SniffFile(path)
		if err != nil {
			return err
		}
		if info.Height <= w.pipeline.chain.Root().Height {
			log.Debugf("Skipping block file %s at finalized height %d", path, info.Height)
			return nil
		}
		blk, err = blocks.DecodeFile(path)
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(fileRetryInterval), fileRetryMax)
	if err := backoff.Retry(op, policy); err != nil {
		log.Warnf("Giving up on block file %s: %s", path, err)
		return
	}
	if blk != nil {
		w.pipeline.SubmitBlock(blk)
	}
}

func isBlockFile(name string) bool {
	return strings.HasSuffix(name, ".json")
}
