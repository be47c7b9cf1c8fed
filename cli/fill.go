/*
fill.go - debug database seeding

PURPOSE:
  Populates a database with plausible data for demos and manual testing:
  a few distributors, a few cashiers, several emissions of vouchers, and
  a burst of randomized scan/undo requests run through the real engine
  (origin "debug"), so the actions ledger looks lived-in.

  Deterministic for a given --seed.
*/
package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldt/voucher-engine/engine"
	"github.com/ldt/voucher-engine/store/sqlite"
)

var fillValues = []int64{5, 10, 20, 50}

func runFill(e *env, args []string) error {
	var dbPath string
	var seed int64
	fs := newFlagSet("fill", &dbPath)
	fs.Int64Var(&seed, "seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rng := rand.New(rand.NewSource(seed))
	ctx := background()

	// Distributors hand vouchers out; they cannot cash in.
	var distributors []engine.User
	for i := 0; i < 3+rng.Intn(4); i++ {
		label := fmt.Sprintf("dist%02d", i)
		user, err := store.CreateUser(ctx, sqlite.UserSpec{
			Label:       label,
			Description: "Distributor " + label,
		})
		if err != nil {
			return err
		}
		distributors = append(distributors, *user)
	}

	var cashiers []engine.User
	for i := 0; i < 3+rng.Intn(4); i++ {
		byVoucher := rng.Intn(2) == 1
		label := fmt.Sprintf("cash%02d", i)
		if byVoucher {
			label += "-v"
		}
		user, err := store.CreateUser(ctx, sqlite.UserSpec{
			Label:                label,
			Description:          "Cashier " + label,
			CanCashin:            true,
			CanCashinByVoucherID: byVoucher,
		})
		if err != nil {
			return err
		}
		cashiers = append(cashiers, *user)
	}

	var vouchers []engine.Voucher
	for i := 0; i < 3+rng.Intn(3); i++ {
		emission, err := store.CreateEmission(ctx, sqlite.EmissionSpec{
			Label:        fmt.Sprintf("Em%02d", i),
			ExpirationAt: time.Now().UTC().AddDate(0, 3+i, 0),
		})
		if err != nil {
			return err
		}

		var specs []sqlite.VoucherSpec
		for j := 0; j < 80+10*rng.Intn(3); j++ {
			distributor := distributors[rng.Intn(len(distributors))]
			specs = append(specs, sqlite.VoucherSpec{
				Value:         decimal.NewFromInt(fillValues[rng.Intn(len(fillValues))]),
				DistributedBy: &distributor.ID,
			})
		}
		issued, err := store.ReplaceVouchers(ctx, emission.ID, specs)
		if err != nil {
			return err
		}
		vouchers = append(vouchers, issued...)
	}

	// A burst of randomized requests through the real engine. Most are
	// well-formed scans; a few drop a token or ask for an undo, so the
	// ledger carries rejections too.
	eng := engine.New(store, engine.Config{})
	requests := 3 * len(vouchers)
	for i := 0; i < requests; i++ {
		req := engine.Request{Origin: engine.OriginDebug, Kind: "scan"}
		if rng.Float64() < 0.05 {
			req.Kind = "undo"
		}
		if rng.Float64() < 0.99 {
			req.UserToken = cashiers[rng.Intn(len(cashiers))].Token
		}
		if rng.Float64() < 0.95 {
			req.VoucherToken = vouchers[rng.Intn(len(vouchers))].Token
		}
		if _, err := eng.Process(ctx, req); err != nil {
			return err
		}
	}

	fmt.Fprintf(e.out, "seeded %d users, %d vouchers, %d requests\n",
		len(distributors)+len(cashiers), len(vouchers), requests)
	return nil
}
