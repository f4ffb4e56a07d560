// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package types

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the size, in bytes, of a state hash or ledger hash.
const HashSize = 32

var ErrIDStrSize = fmt.Errorf("max ID string length is %v bytes", HashSize*2)

// ID is a block state hash or ledger hash.
type ID [HashSize]byte

// Compare returns 1 if id > target, -1 if id < target and
// 0 if id == target.
func (id ID) Compare(target ID) int {
	for i := 0; i < len(id); i++ {
		a := id[i]
		b := target[i]
		if a > b {
			return 1
		}
		if a < b {
			return -1
		}
	}
	return 0
}

// IsZero returns true if the ID is all zeros.
func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) Bytes() []byte {
	return id[:]
}

func (id *ID) SetBytes(data []byte) {
	copy(id[:], data)
}

func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(id[:]) + `"`), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("ID must be a JSON string")
	}
	i, err := NewIDFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = i
	return nil
}

func NewID(digest []byte) ID {
	var sh ID
	sh.SetBytes(digest)
	return sh
}

func NewIDFromString(id string) (ID, error) {
	// Return error if hash string is too long.
	if len(id) > HashSize*2 {
		return ID{}, ErrIDStrSize
	}
	ret, err := hex.DecodeString(id)
	if err != nil {
		return ID{}, err
	}
	var newID ID
	newID.SetBytes(ret)
	return newID, nil
}

// NewIDFromData hashes the data and returns the digest as an ID.
func NewIDFromData(data []byte) ID {
	return ID(blake2b.Sum256(data))
}
