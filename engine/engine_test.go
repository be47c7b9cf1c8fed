package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldt/voucher-engine/engine"
	"github.com/ldt/voucher-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const undoWindow = 5 * time.Minute

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *sqlite.Store
	eng   *engine.Engine
	clock *fakeClock

	cashier1    engine.User // can_cashin
	cashier2    engine.User // can_cashin
	scoped      engine.User // can_cashin_by_voucherid only
	distributor engine.User // no capabilities

	vouchers []engine.Voucher // three fresh vouchers, valid emission
	expired  engine.Voucher   // voucher from an expired emission
}

func newFixture(t *testing.T) *fixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{now: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		eng:   engine.New(store, engine.Config{UndoWindow: undoWindow, Now: clock.Now}),
		clock: clock,
	}

	f.cashier1 = f.createUser(sqlite.UserSpec{Label: "cashier1", Description: "Cashier #1", CanCashin: true})
	f.cashier2 = f.createUser(sqlite.UserSpec{Label: "cashier2", Description: "Cashier #2", CanCashin: true})
	f.scoped = f.createUser(sqlite.UserSpec{Label: "scoped", Description: "Scoped cashier", CanCashinByVoucherID: true})
	f.distributor = f.createUser(sqlite.UserSpec{Label: "distributor", Description: "Distributor"})

	emission, err := store.CreateEmission(f.ctx, sqlite.EmissionSpec{
		Label:        "emission1",
		ExpirationAt: clock.now.AddDate(0, 3, 0),
	})
	require.NoError(t, err)
	f.vouchers, err = store.ReplaceVouchers(f.ctx, emission.ID, voucherSpecs(3, f.distributor.ID))
	require.NoError(t, err)
	require.Len(t, f.vouchers, 3)

	old, err := store.CreateEmission(f.ctx, sqlite.EmissionSpec{
		Label:        "expired",
		ExpirationAt: clock.now.AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	expired, err := store.ReplaceVouchers(f.ctx, old.ID, voucherSpecs(1, f.distributor.ID))
	require.NoError(t, err)
	f.expired = expired[0]

	return f
}

func voucherSpecs(n int, distributor engine.UserID) []sqlite.VoucherSpec {
	specs := make([]sqlite.VoucherSpec, n)
	for i := range specs {
		specs[i] = sqlite.VoucherSpec{
			Value:         decimal.NewFromInt(10),
			DistributedBy: &distributor,
		}
	}
	return specs
}

func (f *fixture) createUser(spec sqlite.UserSpec) engine.User {
	user, err := f.store.CreateUser(f.ctx, spec)
	require.NoError(f.t, err)
	return *user
}

func (f *fixture) request(kind, userToken, voucherToken string) *engine.Response {
	f.t.Helper()
	resp, err := f.eng.Process(f.ctx, engine.Request{
		Origin:       engine.OriginHTTP,
		Kind:         kind,
		UserToken:    userToken,
		VoucherToken: voucherToken,
	})
	require.NoError(f.t, err)
	return resp
}

func (f *fixture) scan(userToken, voucherToken string) *engine.Response {
	f.t.Helper()
	return f.request("scan", userToken, voucherToken)
}

func (f *fixture) undo(userToken, voucherToken string) *engine.Response {
	f.t.Helper()
	return f.request("undo", userToken, voucherToken)
}

func (f *fixture) actionCount() int {
	actions, err := f.store.ListActions(f.ctx, 1000)
	require.NoError(f.t, err)
	return len(actions)
}

// =============================================================================
// CANONICAL REGRESSION SCRIPT
// =============================================================================

// TestRegressionScript runs the canonical 15-response script: every
// member of the taxonomy is produced at least once, and each request
// leaves exactly one ledger row.
func TestRegressionScript(t *testing.T) {
	f := newFixture(t)
	v1, v2, v3 := f.vouchers[0], f.vouchers[1], f.vouchers[2]

	steps := []struct {
		name string
		run  func() *engine.Response
		want engine.ResponseCode
	}{
		{"1 scan without identity", func() *engine.Response {
			return f.scan("", v1.Token)
		}, engine.ErrorVoucherUnauthentified},

		{"2 scoped user without voucher token", func() *engine.Response {
			return f.scan(f.scoped.Token, "")
		}, engine.ErrorVoucherUserNeedsVoucherToken},

		{"3 unresolvable voucher token", func() *engine.Response {
			return f.scan(f.cashier1.Token, "9999-XXXXX")
		}, engine.ErrorVoucherInvalid},

		{"4 voucher from expired emission", func() *engine.Response {
			return f.scan(f.cashier1.Token, f.expired.Token)
		}, engine.ErrorVoucherExpired},

		{"5 cash-in", func() *engine.Response {
			return f.scan(f.cashier1.Token, v1.Token)
		}, engine.OkVoucherCashedin},

		{"6 scan by another cashier", func() *engine.Response {
			return f.scan(f.cashier2.Token, v1.Token)
		}, engine.ErrorVoucherCashedinByAnotherUser},

		{"8 re-scan within window", func() *engine.Response {
			return f.scan(f.cashier1.Token, v1.Token)
		}, engine.WarningVoucherCanUndoCashedin},

		{"7 re-scan after window", func() *engine.Response {
			f.clock.Advance(undoWindow + time.Second)
			return f.scan(f.cashier1.Token, v1.Token)
		}, engine.WarningVoucherCannotUndoCashedin},

		{"9 unresolvable user token", func() *engine.Response {
			return f.scan("tokusr_bogus000", "")
		}, engine.ErrorUserInvalidToken},

		{"10 identity-only scan", func() *engine.Response {
			return f.scan(f.cashier1.Token, "")
		}, engine.OkUserAuthentified},

		{"11 non-cashing identity against known voucher", func() *engine.Response {
			return f.scan(f.distributor.Token, v2.Token)
		}, engine.OkVoucherInfo},

		{"12 undo after window", func() *engine.Response {
			return f.undo(f.cashier1.Token, v1.Token)
		}, engine.ErrorVoucherCannotUndoCashedin},

		{"13 malformed token combination", func() *engine.Response {
			return f.scan(v2.Token, v3.Token)
		}, engine.ErrorSystemUnexpectedRequest},

		{"14 undo within window", func() *engine.Response {
			require.Equal(t, engine.OkVoucherCashedin, f.scan(f.cashier1.Token, v3.Token).Code)
			return f.undo(f.cashier1.Token, v3.Token)
		}, engine.OkVoucherUndo},

		{"15 undo on never-cashed voucher", func() *engine.Response {
			return f.undo(f.cashier1.Token, v2.Token)
		}, engine.ErrorVoucherCannotUndoNotCashedin},
	}

	for _, step := range steps {
		before := f.actionCount()
		resp := step.run()
		assert.Equal(t, step.want, resp.Code, step.name)

		// Step 14 issues a preparatory cash-in, hence two rows there.
		gained := f.actionCount() - before
		assert.GreaterOrEqual(t, gained, 1, "%s: ledger must grow", step.name)
		assert.LessOrEqual(t, gained, 2, "%s: ledger grew too much", step.name)
	}
}

// =============================================================================
// LEDGER INVARIANTS
// =============================================================================

func TestLedger_OneRowPerRequest_EvenOnRejection(t *testing.T) {
	f := newFixture(t)

	f.scan("", "")                         // error_user_invalid_token
	f.scan("tokusr_bogus000", "")          // error_user_invalid_token
	f.scan(f.cashier1.Token, "")           // ok_user_authentified
	f.scan(f.cashier1.Token, "9999-XXXXX") // error_voucher_invalid

	actions, err := f.store.ListActions(f.ctx, 100)
	require.NoError(t, err)
	require.Len(t, actions, 4)

	// Newest first, strictly decreasing ids.
	for i := 1; i < len(actions); i++ {
		assert.Greater(t, actions[i-1].ID, actions[i].ID)
	}

	// The raw tokens are recorded as submitted, resolved or not.
	assert.Equal(t, "9999-XXXXX", actions[0].VoucherToken)
	assert.Nil(t, actions[0].VoucherID)
	assert.NotNil(t, actions[0].UserID)
	assert.Equal(t, engine.ErrorVoucherInvalid, actions[0].ResponseCode)
}

func TestCashinSetsTimestampTriple(t *testing.T) {
	f := newFixture(t)
	v := f.vouchers[0]

	resp := f.scan(f.cashier1.Token, v.Token)
	require.Equal(t, engine.OkVoucherCashedin, resp.Code)

	got, err := f.store.VoucherByID(f.ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CashedinBy)
	require.NotNil(t, got.CashedinAt)
	require.NotNil(t, got.UndoExpirationAt)
	assert.Equal(t, f.cashier1.ID, *got.CashedinBy)
	assert.True(t, got.CashedinAt.Equal(f.clock.Now()))
	assert.True(t, got.UndoExpirationAt.Equal(f.clock.Now().Add(undoWindow)))
	assert.True(t, !got.UndoExpirationAt.Before(*got.CashedinAt))
}

// Cash-in followed by undo restores the pre-cash-in state exactly, and a
// re-scan wins the cash-in again.
func TestUndoRoundTrip(t *testing.T) {
	f := newFixture(t)
	v := f.vouchers[0]

	original, err := f.store.VoucherByID(f.ctx, v.ID)
	require.NoError(t, err)

	require.Equal(t, engine.OkVoucherCashedin, f.scan(f.cashier1.Token, v.Token).Code)
	require.Equal(t, engine.OkVoucherUndo, f.undo(f.cashier1.Token, v.Token).Code)

	restored, err := f.store.VoucherByID(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, original, restored)

	resp := f.scan(f.cashier2.Token, v.Token)
	assert.Equal(t, engine.OkVoucherCashedin, resp.Code)
}

// Replaying the same request script against a fresh store yields the
// same response-code sequence.
func TestDeterministicReplay(t *testing.T) {
	script := func(f *fixture) []engine.ResponseCode {
		var codes []engine.ResponseCode
		record := func(resp *engine.Response) { codes = append(codes, resp.Code) }

		record(f.scan(f.cashier1.Token, ""))
		record(f.scan(f.cashier1.Token, f.vouchers[0].Token))
		record(f.scan(f.cashier2.Token, f.vouchers[0].Token))
		record(f.undo(f.cashier1.Token, f.vouchers[0].Token))
		f.clock.Advance(time.Minute)
		record(f.scan(f.cashier2.Token, f.vouchers[0].Token))
		f.clock.Advance(undoWindow)
		record(f.undo(f.cashier2.Token, f.vouchers[0].Token))
		record(f.scan(f.distributor.Token, f.vouchers[1].Token))
		return codes
	}

	first := script(newFixture(t))
	second := script(newFixture(t))
	assert.Equal(t, first, second)
}

// =============================================================================
// RESPONSE CLASSIFICATION
// =============================================================================

func TestResponseRedaction(t *testing.T) {
	f := newFixture(t)
	v := f.vouchers[0]

	resp := f.scan(f.cashier1.Token, v.Token)
	require.Equal(t, engine.OkVoucherCashedin, resp.Code)
	require.NotNil(t, resp.User)
	require.NotNil(t, resp.Voucher)

	assert.Equal(t, engine.LevelOK, resp.Level)
	assert.Equal(t, f.cashier1.Token, resp.User.Token)
	assert.Equal(t, "cashier1", resp.User.Label)

	assert.Equal(t, v.Token, resp.Voucher.Token)
	assert.Equal(t, "cashier1", resp.Voucher.CashedinBy)
	require.Len(t, resp.Voucher.History, 1)
	assert.Equal(t, engine.OkVoucherCashedin, resp.Voucher.History[0].ResponseCode)
	assert.Equal(t, "cashier1", resp.Voucher.History[0].UserLabel)
}

func TestVoucherHistoryAccumulates(t *testing.T) {
	f := newFixture(t)
	v := f.vouchers[0]

	f.scan(f.cashier1.Token, v.Token)
	f.scan(f.cashier2.Token, v.Token)
	resp := f.scan(f.cashier1.Token, v.Token)

	require.NotNil(t, resp.Voucher)
	require.Len(t, resp.Voucher.History, 3)
	// Newest first.
	assert.Equal(t, engine.WarningVoucherCanUndoCashedin, resp.Voucher.History[0].ResponseCode)
	assert.Equal(t, engine.ErrorVoucherCashedinByAnotherUser, resp.Voucher.History[1].ResponseCode)
	assert.Equal(t, engine.OkVoucherCashedin, resp.Voucher.History[2].ResponseCode)
}

// =============================================================================
// INTERNAL-ID PATH (CLI)
// =============================================================================

func TestProcessByID(t *testing.T) {
	f := newFixture(t)
	v := f.vouchers[0]

	resp, err := f.eng.ProcessByID(f.ctx, engine.OriginCLI, "scan", f.cashier1.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.OkVoucherCashedin, resp.Code)

	// The ledger row records the entities' tokens and the cli origin.
	actions, err := f.store.ListActions(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, engine.OriginCLI, actions[0].Origin)
	assert.Equal(t, f.cashier1.Token, actions[0].UserToken)
	assert.Equal(t, v.Token, actions[0].VoucherToken)
}

func TestProcessByID_UnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.ProcessByID(f.ctx, engine.OriginCLI, "scan", 9999, 0)
	require.Error(t, err)

	var unknown *engine.UnknownIDError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "user", unknown.Entity)

	// Infrastructure failures leave no ledger row.
	assert.Equal(t, 0, f.actionCount())
}
