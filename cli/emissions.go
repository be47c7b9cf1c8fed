/*
emissions.go - emission management subcommands

CSV FORMAT:
  Voucher sets travel as CSV, one row per voucher:

    voucher_sortnumber,voucher_value_cad,distributor_label
    1,10,dist01
    2,20,dist02

  Import REPLACES the emission's voucher set: vouchers are re-issued in
  sortnumber order with fresh tokens. Export writes the same columns.
*/
package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldt/voucher-engine/engine"
	"github.com/ldt/voucher-engine/store/sqlite"
)

const expirationLayout = "2006-01-02"

var csvHeader = []string{"voucher_sortnumber", "voucher_value_cad", "distributor_label"}

func runEmissions(e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: vouchers emissions create|list|import|export [flags]")
	}

	switch args[0] {
	case "create":
		return runEmissionsCreate(e, args[1:])
	case "list":
		return runEmissionsList(e, args[1:])
	case "import":
		return runEmissionsImport(e, args[1:])
	case "export":
		return runEmissionsExport(e, args[1:])
	}
	return fmt.Errorf("unknown emissions subcommand %q", args[0])
}

func runEmissionsCreate(e *env, args []string) error {
	var dbPath, label, description, expiration string
	fs := newFlagSet("emissions create", &dbPath)
	fs.StringVar(&label, "label", "", "short emission name")
	fs.StringVar(&description, "description", "", "longer emission description")
	fs.StringVar(&expiration, "expiration", "", "expiration date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if label == "" || expiration == "" {
		return fmt.Errorf("--label and --expiration are required")
	}
	expirationAt, err := time.Parse(expirationLayout, expiration)
	if err != nil {
		return fmt.Errorf("--expiration: %w", err)
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	emission, err := store.CreateEmission(background(), sqlite.EmissionSpec{
		Label:        label,
		Description:  description,
		ExpirationAt: expirationAt,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "emission %d (%s) expires %s\n",
		emission.ID, emission.Label, emission.ExpirationAt.Format(expirationLayout))
	return nil
}

func runEmissionsList(e *env, args []string) error {
	var dbPath string
	fs := newFlagSet("emissions list", &dbPath)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	emissions, err := store.ListEmissions(background())
	if err != nil {
		return err
	}
	for _, em := range emissions {
		vouchers, err := store.VouchersByEmission(background(), em.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%d\t%s\texpires %s\t%d vouchers\n",
			em.ID, em.Label, em.ExpirationAt.Format(expirationLayout), len(vouchers))
	}
	return nil
}

func runEmissionsImport(e *env, args []string) error {
	var dbPath, csvPath string
	var id int64
	fs := newFlagSet("emissions import", &dbPath)
	fs.Int64Var(&id, "id", 0, "internal emission id")
	fs.StringVar(&csvPath, "csv", "", "CSV file to import ('-' for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == 0 || csvPath == "" {
		return fmt.Errorf("--id and --csv are required")
	}

	var in io.Reader = os.Stdin
	if csvPath != "-" {
		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	specs, err := readVoucherCSV(background(), store, in)
	if err != nil {
		return err
	}

	vouchers, err := store.ReplaceVouchers(background(), engine.EmissionID(id), specs)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "imported %d vouchers into emission %d\n", len(vouchers), id)
	return nil
}

func runEmissionsExport(e *env, args []string) error {
	var dbPath string
	var id int64
	fs := newFlagSet("emissions export", &dbPath)
	fs.Int64Var(&id, "id", 0, "internal emission id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("--id is required")
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	vouchers, err := store.VouchersByEmission(background(), engine.EmissionID(id))
	if err != nil {
		return err
	}

	w := csv.NewWriter(e.out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, v := range vouchers {
		label := ""
		if v.DistributedBy != nil {
			user, err := store.UserByID(background(), *v.DistributedBy)
			if err != nil {
				return err
			}
			label = user.Label
		}
		record := []string{strconv.Itoa(v.Sortnumber), v.Value.String(), label}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// readVoucherCSV parses one voucher per row, resolving distributor labels
// to user ids, and returns the specs in sortnumber order.
func readVoucherCSV(ctx context.Context, store *sqlite.Store, in io.Reader) ([]sqlite.VoucherSpec, error) {
	r := csv.NewReader(in)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, name := range csvHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("CSV is missing column %q", name)
		}
	}

	type row struct {
		sortnumber int
		spec       sqlite.VoucherSpec
	}
	var rows []row
	distributors := map[string]*engine.UserID{}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		sortnumber, err := strconv.Atoi(record[col["voucher_sortnumber"]])
		if err != nil {
			return nil, fmt.Errorf("voucher_sortnumber %q: %w", record[col["voucher_sortnumber"]], err)
		}
		value, err := decimal.NewFromString(record[col["voucher_value_cad"]])
		if err != nil {
			return nil, fmt.Errorf("voucher_value_cad %q: %w", record[col["voucher_value_cad"]], err)
		}

		var distributedBy *engine.UserID
		if label := record[col["distributor_label"]]; label != "" {
			id, ok := distributors[label]
			if !ok {
				user, err := store.UserByLabel(ctx, label)
				if err != nil {
					return nil, fmt.Errorf("distributor %q: %w", label, err)
				}
				id = &user.ID
				distributors[label] = id
			}
			distributedBy = id
		}

		rows = append(rows, row{sortnumber: sortnumber, spec: sqlite.VoucherSpec{
			Value:         value,
			DistributedBy: distributedBy,
		}})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].sortnumber < rows[j].sortnumber })

	specs := make([]sqlite.VoucherSpec, len(rows))
	for i, rw := range rows {
		specs[i] = rw.spec
	}
	return specs, nil
}
