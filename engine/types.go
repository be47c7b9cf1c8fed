/*
Package engine implements the voucher action-processing engine.

PURPOSE:
  Takes an opaque scan/undo request, resolves its tokens against current
  entity state, decides whether a transition is legal, atomically applies
  it, and classifies the outcome into a fixed taxonomy of response codes.
  Every request leaves exactly one immutable ledger entry, whatever the
  outcome.

KEY CONCEPTS IN THIS FILE (types.go):
  - User:     An agent identified by an opaque badge token, with
              capability flags controlling which transitions it may trigger
  - Voucher:  A value-bearing record belonging to an emission, moving
              between "distributed" and "cashed in"
  - Emission: A batch of vouchers sharing an expiration date
  - Action:   One immutable ledger row per processed request
  - Request:  The transport-independent request shape

DESIGN PRINCIPLES:
  1. Explicit outcomes: domain decisions are ResponseCode values, never
     Go errors. Only infrastructure failures travel the error channel.
  2. Auditability: the actions ledger is append-only and strictly ordered.
  3. Opaque tokens: internal ids never cross the engine boundary; public
     shapes carry tokens and labels only.

SEE ALSO:
  - rules.go:    the eligibility decision table
  - engine.go:   the atomic per-request processing unit
  - response.go: the response-code taxonomy and classifier
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Internal ids. They never appear in responses; the public identity of a
// user or voucher is its token.
type (
	UserID     int64
	VoucherID  int64
	EmissionID int64
	ActionID   int64
)

// =============================================================================
// REQUEST SHAPE
// =============================================================================

// RequestKind is a parsed, supported request verb.
type RequestKind string

const (
	KindScan RequestKind = "scan"
	KindUndo RequestKind = "undo"
)

// Origin records which adapter submitted a request.
type Origin string

const (
	OriginCLI   Origin = "cli"
	OriginHTTP  Origin = "httpapi"
	OriginDebug Origin = "debug"
)

// Request is the transport-independent request shape. Kind is the raw
// requestid as submitted; an unsupported verb is itself a classified
// outcome (error_bad_request), not a parse failure.
type Request struct {
	Origin       Origin
	Kind         string
	UserToken    string
	VoucherToken string
}

// =============================================================================
// ENTITIES
// =============================================================================

// User is an agent that presents a badge token. Capability flags decide
// which transitions the user may trigger:
//
//	CanCashin:            may cash in any voucher it scans
//	CanCashinByVoucherID: may cash in only when also presenting the
//	                      voucher's own token (scoped right)
type User struct {
	ID                   UserID
	Label                string
	Description          string
	CanCashin            bool
	CanCashinByVoucherID bool
	Token                string
}

// CanCash reports whether the user may trigger a cash-in when a voucher
// token was supplied alongside its own.
func (u *User) CanCash(voucherTokenSupplied bool) bool {
	if u.CanCashin {
		return true
	}
	return u.CanCashinByVoucherID && voucherTokenSupplied
}

// Voucher is a value-bearing record. CashedinBy, CashedinAt and
// UndoExpirationAt are set together on cash-in and cleared together on
// undo; the store schema enforces the pairing.
type Voucher struct {
	ID               VoucherID
	EmissionID       EmissionID
	Sortnumber       int
	Value            decimal.Decimal
	DistributedBy    *UserID
	CashedinBy       *UserID
	CashedinAt       *time.Time
	UndoExpirationAt *time.Time
	Token            string
}

// Cashedin reports whether the voucher is currently cashed in.
func (v *Voucher) Cashedin() bool { return v.CashedinAt != nil }

// CashedinByUser reports whether the voucher is currently cashed in by
// the given user.
func (v *Voucher) CashedinByUser(id UserID) bool {
	return v.CashedinBy != nil && *v.CashedinBy == id
}

// Emission groups vouchers issued together. Its expiration bounds the
// validity of every voucher in the batch.
type Emission struct {
	ID           EmissionID
	Label        string
	Description  string
	ExpirationAt time.Time
}

// Expired reports whether the emission expiration has passed at now.
func (e *Emission) Expired(now time.Time) bool {
	return now.After(e.ExpirationAt)
}

// =============================================================================
// ACTION - one immutable ledger row per request
// =============================================================================

// Action is the audit record of one processed request. Rows are created
// exactly once, in insertion order, and never mutated or deleted. The raw
// tokens are recorded as submitted, even when they resolved to nothing.
type Action struct {
	ID           ActionID
	Ref          string // uuid, for cross-log correlation
	At           time.Time
	Origin       Origin
	RequestKind  string // raw requestid as submitted
	UserToken    string
	VoucherToken string
	UserID       *UserID
	VoucherID    *VoucherID
	ResponseCode ResponseCode
}
