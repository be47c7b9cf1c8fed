/*
rules.go - Eligibility and transition rules

PURPOSE:
  The pure decision table of the engine. Given the request kind, the
  resolved token positions, the acting user's capabilities, the voucher's
  current state and the current time, it yields exactly one Outcome: a
  response code, plus the transition to apply when the request is legal.

PRECEDENCE:
  Conditions are evaluated in a fixed order; the first match wins. When a
  voucher token is both unresolvable and the request is an undo, the undo
  checks run on *resolved* vouchers only, so "unknown token" outranks
  everything except the identity checks. The order below is load-bearing:
  reordering it is a behavior change.

   1. no identity, or identity token unresolved
   2. undo on a voucher that is not cashed in
   3. voucher token unresolvable
   4. emission expired
   5. identity cannot cash in, and no voucher token to grant scoped rights
   6. identity-only scan / non-cashing identity against a known voucher
   7. already cashed in by me, undo window open       (re-scan)
   8. already cashed in by me, undo window elapsed    (re-scan)
   9. cashed in by somebody else
  10. cash-in
  11. undo within the window
  12. undo after the window
  13. anything else is a defect, never a silent no-op

  Evaluate is a pure function: no store access, no clock access, no
  mutation. The engine feeds it a consistent snapshot read inside the
  request transaction.
*/
package engine

import "time"

// =============================================================================
// INPUT / OUTCOME
// =============================================================================

// RuleInput is the consistent snapshot the decision table runs on.
type RuleInput struct {
	Kind     string     // raw requestid as submitted
	User     Resolution // user position, normalized
	Voucher  Resolution // voucher position, normalized
	Emission *Emission  // emission of the resolved voucher, nil otherwise
	Now      time.Time
}

// Transition is the state change a legal request applies.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionCashin
	TransitionUndo
)

// Outcome is the decision: one response code, and the transition to apply
// inside the same transaction when the request is legal.
type Outcome struct {
	Code       ResponseCode
	Transition Transition
}

func rejected(code ResponseCode) Outcome { return Outcome{Code: code} }

// =============================================================================
// DECISION TABLE
// =============================================================================

// Evaluate runs the decision table. Every reachable combination of inputs
// maps to an explicit response code.
func Evaluate(in RuleInput) Outcome {
	kind := RequestKind(in.Kind)
	if kind != KindScan && kind != KindUndo {
		return rejected(ErrorBadRequest)
	}

	// Identity first. "No identity at all" and "identity present but
	// invalid" are distinct outcomes when a voucher was also supplied.
	if in.User.Kind != ResolvedUser {
		if in.User.Kind == ResolvedVoucher {
			// Two tokens, and the identity position holds a voucher:
			// a malformed combination, not a scan flow we know.
			return rejected(ErrorSystemUnexpectedRequest)
		}
		if in.Voucher.supplied() {
			return rejected(ErrorVoucherUnauthentified)
		}
		return rejected(ErrorUserInvalidToken)
	}
	user := in.User.User

	// Undo checks run on resolved vouchers only; an unknown voucher token
	// falls through to the next rule.
	if kind == KindUndo && in.Voucher.Kind == ResolvedVoucher && !in.Voucher.Voucher.Cashedin() {
		return rejected(ErrorVoucherCannotUndoNotCashedin)
	}

	if in.Voucher.Kind == UnknownToken {
		return rejected(ErrorVoucherInvalid)
	}

	if in.Voucher.Kind == ResolvedVoucher && in.Emission != nil && in.Emission.Expired(in.Now) {
		return rejected(ErrorVoucherExpired)
	}

	switch kind {
	case KindScan:
		return evaluateScan(user, in)
	case KindUndo:
		return evaluateUndo(user, in)
	}
	return rejected(ErrorSystemUnexpectedRequest)
}

// evaluateScan handles rules 5-10 for scan requests. The identity is
// resolved and the voucher position, when supplied, is resolved, valid
// and unexpired.
func evaluateScan(user *User, in RuleInput) Outcome {
	if in.Voucher.Kind == NoToken {
		// Identity-only scan. A user whose cash-in right is scoped to a
		// voucher token has to present one; everyone else is simply
		// authentified and prompted for the next scan.
		if !user.CanCashin && user.CanCashinByVoucherID {
			return rejected(ErrorVoucherUserNeedsVoucherToken)
		}
		return Outcome{Code: OkUserAuthentified}
	}

	voucher := in.Voucher.Voucher

	if !user.CanCash(true) {
		// A non-cashing identity (a distributor, say) gets the voucher's
		// status whatever its state. No transition.
		return Outcome{Code: OkVoucherInfo}
	}

	if voucher.Cashedin() {
		// Re-scanning an already-cashed voucher is a status check, not an
		// error: the same agent gets told whether undo is still open.
		if voucher.CashedinByUser(user.ID) {
			if withinUndoWindow(voucher, in.Now) {
				return Outcome{Code: WarningVoucherCanUndoCashedin}
			}
			return Outcome{Code: WarningVoucherCannotUndoCashedin}
		}
		return rejected(ErrorVoucherCashedinByAnotherUser)
	}

	return Outcome{Code: OkVoucherCashedin, Transition: TransitionCashin}
}

// evaluateUndo handles rules 11-12 for undo requests. The identity is
// resolved and the voucher, when supplied, is resolved, cashed in and
// unexpired.
func evaluateUndo(user *User, in RuleInput) Outcome {
	if in.Voucher.Kind == NoToken {
		// Undo needs a voucher; a bare identity is a missing parameter.
		return rejected(ErrorBadRequest)
	}

	voucher := in.Voucher.Voucher

	if !voucher.CashedinByUser(user.ID) {
		return rejected(ErrorVoucherCashedinByAnotherUser)
	}
	if withinUndoWindow(voucher, in.Now) {
		return Outcome{Code: OkVoucherUndo, Transition: TransitionUndo}
	}
	return rejected(ErrorVoucherCannotUndoCashedin)
}
