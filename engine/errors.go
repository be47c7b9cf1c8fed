/*
errors.go - Infrastructure error types for the engine

PURPOSE:
  Domain outcomes are ResponseCode values, not errors (see response.go).
  The error channel is reserved for infrastructure failures: the store is
  unavailable, a referenced record is missing, a ledger append failed.

USAGE:
  Adapters check with errors.Is / errors.As:

    if errors.Is(err, engine.ErrNotFound) {
        // unknown internal id (CLI path)
    }
*/
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by store reads when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrLedgerAppend is returned when the action ledger rejects an insert.
	// This is an infrastructure failure: every request must log exactly
	// one action row.
	ErrLedgerAppend = errors.New("ledger append failed")
)

// UnknownIDError reports a missing record looked up by internal id. Only
// the CLI path, which bypasses token resolution, can produce it.
type UnknownIDError struct {
	Entity string // "user", "voucher", "emission"
	ID     int64
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown %s %d", e.Entity, e.ID)
}

func (e *UnknownIDError) Unwrap() error { return ErrNotFound }
