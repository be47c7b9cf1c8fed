/*
engine.go - Atomic request processing

PURPOSE:
  Orchestrates one request end to end: token resolution, rule evaluation,
  state mutation, ledger append and response classification, all inside a
  single serializable store transaction. Two concurrent scans of the same
  voucher therefore observe a total order; at most one wins the cash-in
  and the loser gets the cashed-in-by variants.

REQUEST FLOW:
  1. Resolve the two token positions (one indexed read each)
  2. Normalize positions into (identity, voucher) domains
  3. Load the voucher's emission
  4. Evaluate the decision table on the snapshot
  5. Apply the transition, if any
  6. Append exactly one ledger row, whatever the outcome
  7. Build the redacted outward-facing response

  The engine holds no ambient state beyond the store handle, the undo
  window and a clock. The clock is injectable for tests.

SEE ALSO:
  - rules.go:     step 4
  - store.go:     the transactional boundary
  - response.go:  step 7
*/
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// historyLimit bounds the recent-history slice attached to voucher
// snapshots.
const historyLimit = 10

// Config carries the engine's two knobs.
type Config struct {
	// UndoWindow is the interval after cash-in during which the same
	// agent may undo. Zero means DefaultUndoWindow.
	UndoWindow time.Duration

	// Now overrides the clock. Nil means time.Now in UTC.
	Now func() time.Time
}

// Engine processes scan/undo requests against a Store.
type Engine struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// New creates an engine on top of store.
func New(store Store, cfg Config) *Engine {
	window := cfg.UndoWindow
	if window <= 0 {
		window = DefaultUndoWindow
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{store: store, window: window, now: now}
}

// Process handles one token-based request. The returned error is nil for
// every classified outcome, including rejections; it is non-nil only for
// infrastructure failures, in which case nothing was committed.
func (e *Engine) Process(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := e.store.WithTx(ctx, func(tx Tx) error {
		userRes, err := resolveToken(tx, req.UserToken)
		if err != nil {
			return err
		}
		voucherRes, err := resolveToken(tx, req.VoucherToken)
		if err != nil {
			return err
		}
		resp, err = e.run(tx, req, userRes, voucherRes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ProcessByID handles one request addressed by internal ids, bypassing
// token resolution. This is the CLI operator path; unknown ids are
// infrastructure errors (UnknownIDError), not classified outcomes. A zero
// id means the position is absent.
func (e *Engine) ProcessByID(ctx context.Context, origin Origin, kind string, userID UserID, voucherID VoucherID) (*Response, error) {
	var resp *Response
	err := e.store.WithTx(ctx, func(tx Tx) error {
		req := Request{Origin: origin, Kind: kind}
		userRes := Resolution{Kind: NoToken}
		if userID != 0 {
			user, err := tx.UserByID(userID)
			if errors.Is(err, ErrNotFound) {
				return &UnknownIDError{Entity: "user", ID: int64(userID)}
			} else if err != nil {
				return err
			}
			userRes = Resolution{Kind: ResolvedUser, User: user}
			req.UserToken = user.Token
		}
		voucherRes := Resolution{Kind: NoToken}
		if voucherID != 0 {
			voucher, err := tx.VoucherByID(voucherID)
			if errors.Is(err, ErrNotFound) {
				return &UnknownIDError{Entity: "voucher", ID: int64(voucherID)}
			} else if err != nil {
				return err
			}
			voucherRes = Resolution{Kind: ResolvedVoucher, Voucher: voucher}
			req.VoucherToken = voucher.Token
		}
		var runErr error
		resp, runErr = e.run(tx, req, userRes, voucherRes)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// run is the shared per-request unit. It must be called inside a store
// transaction; everything it reads and writes commits or rolls back as
// one.
func (e *Engine) run(tx Tx, req Request, userRes, voucherRes Resolution) (*Response, error) {
	userRes, voucherRes = normalizeResolutions(userRes, voucherRes)

	var emission *Emission
	if voucherRes.Kind == ResolvedVoucher {
		// A voucher without its emission is a corrupted record; that is
		// an infrastructure failure, not a domain outcome.
		em, err := tx.EmissionByID(voucherRes.Voucher.EmissionID)
		if err != nil {
			return nil, err
		}
		emission = em
	}

	now := e.now()
	out := Evaluate(RuleInput{
		Kind:     req.Kind,
		User:     userRes,
		Voucher:  voucherRes,
		Emission: emission,
		Now:      now,
	})

	switch out.Transition {
	case TransitionCashin:
		deadline := UndoExpiration(now, e.window)
		if err := tx.CashinVoucher(voucherRes.Voucher.ID, userRes.User.ID, now, deadline); err != nil {
			return nil, err
		}
	case TransitionUndo:
		if err := tx.UndoCashin(voucherRes.Voucher.ID); err != nil {
			return nil, err
		}
	}

	action := &Action{
		Ref:          uuid.NewString(),
		At:           now,
		Origin:       req.Origin,
		RequestKind:  req.Kind,
		UserToken:    req.UserToken,
		VoucherToken: req.VoucherToken,
		ResponseCode: out.Code,
	}
	if userRes.Kind == ResolvedUser {
		id := userRes.User.ID
		action.UserID = &id
	}
	if voucherRes.Kind == ResolvedVoucher {
		id := voucherRes.Voucher.ID
		action.VoucherID = &id
	}
	if _, err := tx.AppendAction(action); err != nil {
		return nil, err
	}

	return e.classify(tx, out.Code, userRes, voucherRes, emission)
}

// classify builds the outward-facing response from current state plus the
// ledger entry just appended. The voucher is re-read so the snapshot
// reflects any transition this request applied.
func (e *Engine) classify(tx Tx, code ResponseCode, userRes, voucherRes Resolution, emission *Emission) (*Response, error) {
	resp := newResponse(code)

	if userRes.Kind == ResolvedUser {
		resp.User = snapshotUser(userRes.User)
	}

	if voucherRes.Kind == ResolvedVoucher {
		voucher, err := tx.VoucherByID(voucherRes.Voucher.ID)
		if err != nil {
			return nil, err
		}

		snap := &VoucherSnapshot{
			Token:            voucher.Token,
			Value:            voucher.Value,
			ExpirationAt:     emission.ExpirationAt,
			CashedinAt:       voucher.CashedinAt,
			UndoExpirationAt: voucher.UndoExpirationAt,
		}
		if voucher.CashedinBy != nil {
			casher, err := tx.UserByID(*voucher.CashedinBy)
			if err != nil {
				return nil, err
			}
			snap.CashedinBy = casher.Label
		}

		history, err := tx.VoucherHistory(voucher.ID, historyLimit)
		if err != nil {
			return nil, err
		}
		snap.History = history

		resp.Voucher = snap
	}

	return resp, nil
}
