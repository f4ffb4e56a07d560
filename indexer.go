// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frontierlabs/indexer/repo"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

var log = zap.S()

func main() {
	parser := flags.NewNamedParser("indexer", flags.Default)

	serverCmd, err := parser.AddCommand("server",
		"Run or inspect the indexer server",
		"Commands for running the indexer server and inspecting its configuration",
		&struct{}{})
	if err != nil {
		log.Fatal(err)
	}
	serverCmd.AddCommand("cli",
		"Run the indexer server",
		"Ingest precomputed block files, maintain the transition frontier and serve queries",
		&serverCliCmd{})
	serverCmd.AddCommand("config",
		"Print the effective configuration",
		"Print the configuration the server would run with, after applying the config file and defaults",
		&serverConfigCmd{})

	clientCmd, err := parser.AddCommand("client",
		"Query a running indexer server",
		"Commands for querying accounts and chain state from a running indexer server",
		&struct{}{})
	if err != nil {
		log.Fatal(err)
	}
	clientCmd.AddCommand("balance",
		"Look up an account's balance at the best tip",
		"Look up an account's balance, nonce and delegate as of the current best tip",
		&balanceCmd{})
	clientCmd.AddCommand("best-chain",
		"Print the best chain",
		"Print the blocks on the path from the root (or earlier) to the best tip",
		&bestChainCmd{})
	clientCmd.AddCommand("summary",
		"Print a summary of the server's state",
		"Print uptime, blocks processed, root and best tip of the running server",
		&summaryCmd{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			switch flagsErr.Type {
			case flags.ErrHelp:
				os.Exit(0)
			case flags.ErrCommandRequired:
				// Bare `indexer`, `indexer server` or `indexer client`:
				// show the usage banner for the active level.
				parser.WriteHelp(os.Stderr)
				os.Exit(1)
			}
		}
		os.Exit(1)
	}
}

type serverCliCmd struct {
	repo.Config
}

func (x *serverCliCmd) Execute(args []string) error {
	cfg, err := repo.LoadConfig(&x.Config)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogDir, cfg.LogLevel); err != nil {
		return err
	}

	server, err := BuildServer(cfg)
	if err != nil {
		log.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("indexer gracefully shutting down")
		if err := server.Close(); err != nil {
			log.Errorf("Shutdown error: %s", err)
		}
	case <-server.Done():
		err := server.Err()
		if closeErr := server.Close(); closeErr != nil {
			log.Errorf("Shutdown error: %s", closeErr)
		}
		if err != nil {
			log.Fatalf("Indexer halted: %s", err)
		}
	}
	return nil
}

type serverConfigCmd struct {
	repo.Config
}

func (x *serverConfigCmd) Execute(args []string) error {
	cfg, err := repo.LoadConfig(&x.Config)
	if err != nil {
		return err
	}
	fmt.Printf("datadir:           %s\n", cfg.DataDir)
	fmt.Printf("database-dir:      %s\n", cfg.DatabaseDir)
	fmt.Printf("log-dir:           %s\n", cfg.LogDir)
	fmt.Printf("log-level:         %s\n", cfg.LogLevel)
	fmt.Printf("initial-ledger:    %s\n", cfg.InitialLedger)
	fmt.Printf("is-genesis-ledger: %t\n", cfg.IsGenesisLedger)
	fmt.Printf("root-hash:         %s\n", cfg.RootHash)
	fmt.Printf("startup-dir:       %s\n", cfg.StartupDir)
	fmt.Printf("watch-dir:         %s\n", cfg.WatchDir)
	fmt.Printf("listen:            %s\n", cfg.Listen)
	fmt.Printf("frontier-depth:    %d\n", cfg.FrontierDepth)
	return nil
}
