// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/repo"
	"github.com/frontierlabs/indexer/rpc"
)

type clientOpts struct {
	Server string `long:"server" short:"s" description:"The address of the indexer server's query API"`
}

func (o *clientOpts) client() *rpc.Client {
	addr := o.Server
	if addr == "" {
		addr = repo.DefaultListenAddr
	}
	return rpc.NewClient(addr)
}

type balanceCmd struct {
	clientOpts
	PublicKey string `long:"public-key" short:"p" required:"true" description:"The account's public key"`
}

func (x *balanceCmd) Execute(args []string) error {
	if err := ledger.ValidatePublicKey(x.PublicKey); err != nil {
		return err
	}
	resp, err := x.client().Account(x.PublicKey)
	if err != nil {
		return err
	}
	fmt.Printf("Account:  %s\n", resp.Account.PublicKey)
	fmt.Printf("Balance:  %d\n", resp.Account.Balance)
	fmt.Printf("Nonce:    %d\n", resp.Account.Nonce)
	if resp.Account.Delegate != "" {
		fmt.Printf("Delegate: %s\n", resp.Account.Delegate)
	}
	fmt.Printf("As of best tip height %d\n", resp.Height)
	return nil
}

type bestChainCmd struct {
	clientOpts
	Limit int `long:"limit" short:"n" description:"Maximum number of blocks to print, newest last (0 prints the whole chain)" default:"10"`
}

func (x *bestChainCmd) Execute(args []string) error {
	if x.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	resp, err := x.client().BestChain(x.Limit)
	if err != nil {
		return err
	}
	for _, blk := range resp.Blocks {
		fmt.Printf("%d  %s\n", blk.Height, blk.StateHash)
	}
	return nil
}

type summaryCmd struct {
	clientOpts
}

func (x *summaryCmd) Execute(args []string) error {
	resp, err := x.client().Summary()
	if err != nil {
		return err
	}
	fmt.Printf("Uptime:           %s\n", resp.Uptime)
	fmt.Printf("Blocks processed: %d\n", resp.BlocksProcessed)
	fmt.Printf("Root:             %s (height %d)\n", resp.RootHash, resp.RootHeight)
	fmt.Printf("Best tip:         %s (height %d)\n", resp.BestTipHash, resp.BestTipHeight)
	fmt.Printf("Frontier size:    %d\n", resp.FrontierLen)
	return nil
}
