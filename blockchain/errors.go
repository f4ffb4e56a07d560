// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned by account queries when the public key has
// never appeared on the canonical chain or in the frontier.
var ErrAccountNotFound = errors.New("account not found")

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

type ErrorCode int

const (
	// ErrDuplicateBlock is unused as an error in the frontier itself
	// (duplicates are an InsertOutcome, not a failure) but is kept for
	// callers that treat re-commits of finalized blocks as violations.
	ErrDuplicateBlock ErrorCode = iota

	// ErrOrphanBlock means the block's parent is not in the frontier.
	// The caller should buffer the block and retry once the parent arrives.
	ErrOrphanBlock

	// ErrStaleBlock means the block's height is at or below the root and
	// can never be attached. It is safe to discard.
	ErrStaleBlock

	// ErrInvalidHeight means the block's height is not parent height + 1.
	ErrInvalidHeight

	// ErrLedgerMismatch means applying the block's ledger diff to its
	// parent snapshot did not reproduce the declared ledger hash.
	ErrLedgerMismatch

	// ErrInsufficientBalance means a diff entry would drive a balance
	// negative.
	ErrInsufficientBalance

	// ErrNonceMismatch means a diff entry would decrease an account nonce.
	ErrNonceMismatch

	// ErrRootMismatch means the configured root hash disagrees with the
	// computed genesis digest or the stored chain. Fatal at startup.
	ErrRootMismatch

	// ErrUnknownBlock means a block referenced by hash or height is not in
	// the store.
	ErrUnknownBlock
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:      "ErrDuplicateBlock",
	ErrOrphanBlock:         "ErrOrphanBlock",
	ErrStaleBlock:          "ErrStaleBlock",
	ErrInvalidHeight:       "ErrInvalidHeight",
	ErrLedgerMismatch:      "ErrLedgerMismatch",
	ErrInsufficientBalance: "ErrInsufficientBalance",
	ErrNonceMismatch:       "ErrNonceMismatch",
	ErrRootMismatch:        "ErrRootMismatch",
	ErrUnknownBlock:        "ErrUnknownBlock",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation. The caller can use type assertions
// to determine if a failure was specifically due to a rule violation and
// access the ErrorCode field to ascertain the specific reason.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human-readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// ErrorIs returns whether err is a RuleError with the given code.
func ErrorIs(err error, code ErrorCode) bool {
	var re RuleError
	if errors.As(err, &re) && re.ErrorCode == code {
		return true
	}
	return false
}
