/*
resolver.go - Token resolution

PURPOSE:
  Maps an opaque token string to the entity it denotes. The result is a
  tagged Resolution: no token, unknown token, a user, or a voucher. The
  lookup is one indexed read, never mutates state, and has a constant
  shape on failure regardless of how close the token came to matching.

POSITIONS vs DOMAINS:
  A request carries up to two token positions (acting user, voucher).
  Each position resolves independently; the rule table then reasons about
  the resolved DOMAINS. A voucher badge scanned into the user position is
  still a voucher, and the rules treat it as "voucher supplied with no
  identity".
*/
package engine

import "errors"

// ResolutionKind tags what a token turned out to denote.
type ResolutionKind int

const (
	NoToken ResolutionKind = iota
	UnknownToken
	ResolvedUser
	ResolvedVoucher
)

// Resolution is the outcome of resolving one token position. Exactly one
// of User/Voucher is non-nil for the resolved kinds.
type Resolution struct {
	Kind    ResolutionKind
	User    *User
	Voucher *Voucher
}

func (r Resolution) supplied() bool { return r.Kind != NoToken }

// resolveToken resolves a single token position inside tx. An empty
// token is NoToken; a token matching nothing is UnknownToken. Store
// failures other than ErrNotFound propagate.
func resolveToken(tx Tx, token string) (Resolution, error) {
	if token == "" {
		return Resolution{Kind: NoToken}, nil
	}

	user, voucher, err := tx.LookupToken(token)
	switch {
	case errors.Is(err, ErrNotFound):
		return Resolution{Kind: UnknownToken}, nil
	case err != nil:
		return Resolution{}, err
	case user != nil:
		return Resolution{Kind: ResolvedUser, User: user}, nil
	case voucher != nil:
		return Resolution{Kind: ResolvedVoucher, Voucher: voucher}, nil
	}
	return Resolution{Kind: UnknownToken}, nil
}

// normalizeResolutions rearranges resolved domains across the two token
// positions so the rule table only sees (user-ish, voucher-ish):
//
//   - a voucher alone in the user position moves to the voucher slot,
//     leaving no identity (rule 1 then yields error_voucher_unauthentified)
//   - a user token in the voucher position is not a voucher; it degrades
//     to UnknownToken there (rule 3 then yields error_voucher_invalid)
//
// A voucher in the user position alongside a second token is left alone;
// the rule table bottoms out in error_system_unexpected_request.
func normalizeResolutions(userRes, voucherRes Resolution) (Resolution, Resolution) {
	if userRes.Kind == ResolvedVoucher && !voucherRes.supplied() {
		return Resolution{Kind: NoToken}, userRes
	}
	if voucherRes.Kind == ResolvedUser {
		voucherRes = Resolution{Kind: UnknownToken}
	}
	return userRes, voucherRes
}
