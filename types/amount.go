// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package types

import "encoding/binary"

// Amount represents a quantity of coins in the chain's smallest
// denomination. Balances are not expected to overflow an uint64.
type Amount uint64

// ToBytes returns the big-endian byte representation of the amount.
func (a Amount) ToBytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(a))
	return b
}

// AmountFromBytes parses a big-endian byte representation of an amount.
func AmountFromBytes(b []byte) Amount {
	return Amount(binary.BigEndian.Uint64(b))
}
