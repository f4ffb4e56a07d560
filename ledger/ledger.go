// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/benbjohnson/immutable"
	"github.com/frontierlabs/indexer/types"
	"github.com/frontierlabs/indexer/types/blocks"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrInsufficientBalance is returned when a diff entry would drive an
	// account balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNonceMismatch is returned when a diff entry would decrease an
	// account nonce.
	ErrNonceMismatch = errors.New("nonce mismatch")

	// ErrInvalidPublicKey is returned for account identifiers that are not
	// valid base58.
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Account is the state of a single account at some block.
type Account struct {
	PublicKey string       `json:"public_key"`
	Balance   types.Amount `json:"balance"`
	Nonce     uint64       `json:"nonce"`
	Delegate  string       `json:"delegate,omitempty"`
}

// Snapshot is the full account-state mapping as of one block. Snapshots are
// persistent: deriving a child snapshot never mutates the parent, and
// snapshots derived from a common ancestor share most of their underlying
// storage. The zero value is not usable; use Genesis or Apply.
type Snapshot struct {
	accounts *immutable.Map[string, Account]
}

// NewSnapshot builds a snapshot from a flat account list.
func NewSnapshot(accounts []Account) Snapshot {
	b := immutable.NewMapBuilder[string, Account](nil)
	for _, acct := range accounts {
		b.Set(acct.PublicKey, acct)
	}
	return Snapshot{accounts: b.Map()}
}

// Genesis builds the initial snapshot from the genesis account set.
func Genesis(accounts []Account) Snapshot {
	return NewSnapshot(accounts)
}

// Get returns the account state for the given public key.
func (s Snapshot) Get(publicKey string) (Account, bool) {
	if s.accounts == nil {
		return Account{}, false
	}
	return s.accounts.Get(publicKey)
}

// Len returns the number of accounts in the snapshot.
func (s Snapshot) Len() int {
	if s.accounts == nil {
		return 0
	}
	return s.accounts.Len()
}

// Accounts returns all accounts sorted by public key.
func (s Snapshot) Accounts() []Account {
	if s.accounts == nil {
		return nil
	}
	accounts := make([]Account, 0, s.accounts.Len())
	itr := s.accounts.Iterator()
	for !itr.Done() {
		_, acct, _ := itr.Next()
		accounts = append(accounts, acct)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].PublicKey < accounts[j].PublicKey
	})
	return accounts
}

// Hash returns the snapshot digest: blake2b-256 over the accounts in public
// key order. This is the value a block's ledger_hash must match.
func (s Snapshot) Hash() types.ID {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, acct := range s.Accounts() {
		h.Write([]byte(acct.PublicKey))
		h.Write([]byte{0})
		h.Write(acct.Balance.ToBytes())
		nonce := types.Amount(acct.Nonce)
		h.Write(nonce.ToBytes())
		h.Write([]byte(acct.Delegate))
		h.Write([]byte{0})
	}
	return types.NewID(h.Sum(nil))
}

// Apply derives a child snapshot by applying the diff entries in order. The
// receiver is left untouched. Diff entries referencing unknown accounts
// create them, which is how new accounts enter the ledger.
func (s Snapshot) Apply(diff []blocks.AccountDiff) (Snapshot, error) {
	if s.accounts == nil {
		return Snapshot{}, errors.New("apply on uninitialized snapshot")
	}
	m := s.accounts
	for _, entry := range diff {
		acct, ok := m.Get(entry.PublicKey)
		if !ok {
			acct = Account{PublicKey: entry.PublicKey}
		}
		if entry.BalanceChange < 0 {
			debit := types.Amount(-entry.BalanceChange)
			if debit > acct.Balance {
				return Snapshot{}, fmt.Errorf("%w: account %s balance %d debit %d",
					ErrInsufficientBalance, entry.PublicKey, acct.Balance, debit)
			}
			acct.Balance -= debit
		} else {
			acct.Balance += types.Amount(entry.BalanceChange)
		}
		if entry.Nonce != nil {
			if *entry.Nonce < acct.Nonce {
				return Snapshot{}, fmt.Errorf("%w: account %s nonce %d new nonce %d",
					ErrNonceMismatch, entry.PublicKey, acct.Nonce, *entry.Nonce)
			}
			acct.Nonce = *entry.Nonce
		}
		if entry.Delegate != nil {
			acct.Delegate = *entry.Delegate
		}
		m = m.Set(entry.PublicKey, acct)
	}
	return Snapshot{accounts: m}, nil
}

// ValidatePublicKey checks that the key is non-empty, valid base58.
func ValidatePublicKey(publicKey string) error {
	if publicKey == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	if _, err := base58.Decode(publicKey); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPublicKey, publicKey)
	}
	return nil
}
