// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/frontierlabs/indexer/types"
)

type genesisAccount struct {
	PublicKey string       `json:"public_key"`
	Balance   types.Amount `json:"balance"`
	Nonce     uint64       `json:"nonce,omitempty"`
	Delegate  string       `json:"delegate,omitempty"`
}

type genesisLedger struct {
	Accounts []genesisAccount `json:"accounts"`
}

// LoadGenesis reads the initial ledger file and returns the genesis
// snapshot. The file is JSON of the form:
//
//	{"accounts": [{"public_key": "...", "balance": 100, ...}, ...]}
func LoadGenesis(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var root genesisLedger
	if err := json.Unmarshal(data, &root); err != nil {
		return Snapshot{}, fmt.Errorf("malformed genesis ledger %s: %w", path, err)
	}
	if len(root.Accounts) == 0 {
		return Snapshot{}, fmt.Errorf("genesis ledger %s has no accounts", path)
	}

	seen := make(map[string]struct{}, len(root.Accounts))
	accounts := make([]Account, 0, len(root.Accounts))
	for _, ga := range root.Accounts {
		if err := ValidatePublicKey(ga.PublicKey); err != nil {
			return Snapshot{}, err
		}
		if _, ok := seen[ga.PublicKey]; ok {
			return Snapshot{}, fmt.Errorf("duplicate genesis account %s", ga.PublicKey)
		}
		seen[ga.PublicKey] = struct{}{}
		accounts = append(accounts, Account{
			PublicKey: ga.PublicKey,
			Balance:   ga.Balance,
			Nonce:     ga.Nonce,
			Delegate:  ga.Delegate,
		})
	}
	return Genesis(accounts), nil
}
