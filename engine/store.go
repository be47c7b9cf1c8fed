/*
store.go - Persistence boundary of the engine

PURPOSE:
  Defines the interface between the rule logic and the authoritative
  store. The engine never holds an ambient connection: every request is
  processed inside one transaction obtained from the Store handle passed
  at construction.

ATOMICITY CONTRACT:
  WithTx runs fn inside a single serializable transaction. All reads the
  rule table consumes, the voucher mutation, and the ledger append happen
  through the same Tx. Two concurrent scans of the same voucher therefore
  observe a total order and at most one wins the cash-in.

APPEND-ONLY CONTRACT:
  AppendAction is the only write on the actions ledger. No update or
  delete operation exists on it, here or in any implementation.

IMPLEMENTATIONS:
  - store/sqlite: production store (single-writer sqlite, goose schema)
*/
package engine

import (
	"context"
	"time"
)

// Store hands out per-request transactions.
type Store interface {
	// WithTx runs fn inside one serializable transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view the engine works against. Reads return
// ErrNotFound for missing records.
type Tx interface {
	// LookupToken resolves an opaque token to the entity it denotes with
	// a single indexed read. It returns (nil, nil, ErrNotFound) when the
	// token matches nothing; it never reports near-misses.
	LookupToken(token string) (*User, *Voucher, error)

	UserByID(id UserID) (*User, error)
	VoucherByID(id VoucherID) (*Voucher, error)
	EmissionByID(id EmissionID) (*Emission, error)

	// CashinVoucher sets the cashed-in triple on an uncashed voucher.
	CashinVoucher(id VoucherID, by UserID, at, undoExpiration time.Time) error

	// UndoCashin clears the cashed-in triple, restoring the voucher to
	// its pre-cash-in state.
	UndoCashin(id VoucherID) error

	// AppendAction inserts one ledger row and returns its monotonic id.
	AppendAction(a *Action) (ActionID, error)

	// VoucherHistory returns the voucher's most recent ledger rows,
	// newest first, redacted for presentation.
	VoucherHistory(id VoucherID, limit int) ([]HistoryEntry, error)
}
