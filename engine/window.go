// window.go - Undo window arithmetic
//
// The undo deadline is a pure function of the cash-in timestamp and the
// configured window. It is computed once, at cash-in, and stored on the
// voucher; it is never recomputed elsewhere.
package engine

import "time"

// DefaultUndoWindow is the interval after a cash-in during which the same
// agent may reverse it.
const DefaultUndoWindow = 5 * time.Minute

// UndoExpiration returns the deadline until which a cash-in at cashedinAt
// may be undone.
func UndoExpiration(cashedinAt time.Time, window time.Duration) time.Time {
	return cashedinAt.Add(window)
}

// withinUndoWindow reports whether the voucher's undo deadline is still
// ahead of now. A voucher without a deadline has no open window.
func withinUndoWindow(v *Voucher, now time.Time) bool {
	return v.UndoExpirationAt != nil && now.Before(*v.UndoExpirationAt)
}
