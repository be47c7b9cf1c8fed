/*
crud.go - Record management for users, emissions and vouchers

PURPOSE:
  Plain persisted-record management around the engine: the engine owns all
  writes to voucher cash-in state and the actions ledger (sqlite.go);
  everything here is the management surface consumed by the CLI and by
  test fixtures.

TOKENS:
  Tokens are minted at row creation (engine.NewUserToken /
  engine.NewVoucherToken) and inserted into the tokens index inside the
  same transaction as the record itself. They are never regenerated.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldt/voucher-engine/engine"
)

// =============================================================================
// SPECS
// =============================================================================

// UserSpec carries the mutable fields of a user.
type UserSpec struct {
	Label                string
	Description          string
	CanCashin            bool
	CanCashinByVoucherID bool
}

// EmissionSpec carries the mutable fields of an emission.
type EmissionSpec struct {
	Label        string
	Description  string
	ExpirationAt time.Time
}

// VoucherSpec describes one voucher to issue into an emission.
type VoucherSpec struct {
	Value         decimal.Decimal
	DistributedBy *engine.UserID
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser inserts a user, minting its token in the same transaction.
func (s *Store) CreateUser(ctx context.Context, spec UserSpec) (*engine.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		token := engine.NewUserToken()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (label, description, can_cashin, can_cashin_by_voucherid, token)
			VALUES (?, ?, ?, ?, ?)`,
			spec.Label, spec.Description, spec.CanCashin, spec.CanCashinByVoucherID, token,
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tokens (token, kind, ref_id) VALUES (?, 'user', ?)`, token, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return userByID(ctx, s.db, engine.UserID(id))
}

// UserByID returns the user with the given internal id.
func (s *Store) UserByID(ctx context.Context, id engine.UserID) (*engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userByID(ctx, s.db, id)
}

// UserByLabel returns the user with the given label.
func (s *Store) UserByLabel(ctx context.Context, label string) (*engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, userSelect+` WHERE label = ?`, label)
	return scanUser(row)
}

// ListUsers returns all users in id order.
func (s *Store) ListUsers(ctx context.Context) ([]engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, userSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []engine.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateUser replaces the user's mutable fields. The token is immutable.
func (s *Store) UpdateUser(ctx context.Context, id engine.UserID, spec UserSpec) (*engine.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET label = ?, description = ?, can_cashin = ?, can_cashin_by_voucherid = ?
		WHERE id = ?`,
		spec.Label, spec.Description, spec.CanCashin, spec.CanCashinByVoucherID, int64(id),
	)
	if err != nil {
		return nil, err
	}
	if err := affectedOrNotFound(res, "user", int64(id)); err != nil {
		return nil, err
	}
	return userByID(ctx, s.db, id)
}

// DeleteUser removes a user and its token index entry. Ledger rows that
// reference the user are left untouched.
func (s *Store) DeleteUser(ctx context.Context, id engine.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tokens WHERE kind = 'user' AND ref_id = ?`, int64(id)); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, int64(id))
		if err != nil {
			return err
		}
		return affectedOrNotFound(res, "user", int64(id))
	})
}

// =============================================================================
// EMISSIONS
// =============================================================================

// CreateEmission inserts an emission.
func (s *Store) CreateEmission(ctx context.Context, spec EmissionSpec) (*engine.Emission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO emissions (label, description, expiration_at)
		VALUES (?, ?, ?)`,
		spec.Label, spec.Description, spec.ExpirationAt.Format(timeLayout),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return emissionByID(ctx, s.db, engine.EmissionID(id))
}

// EmissionByID returns the emission with the given internal id.
func (s *Store) EmissionByID(ctx context.Context, id engine.EmissionID) (*engine.Emission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return emissionByID(ctx, s.db, id)
}

// ListEmissions returns all emissions in id order.
func (s *Store) ListEmissions(ctx context.Context) ([]engine.Emission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, emissionSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emissions []engine.Emission
	for rows.Next() {
		emission, err := scanEmission(rows)
		if err != nil {
			return nil, err
		}
		emissions = append(emissions, *emission)
	}
	return emissions, rows.Err()
}

// UpdateEmission replaces the emission's mutable fields.
func (s *Store) UpdateEmission(ctx context.Context, id engine.EmissionID, spec EmissionSpec) (*engine.Emission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE emissions SET label = ?, description = ?, expiration_at = ?
		WHERE id = ?`,
		spec.Label, spec.Description, spec.ExpirationAt.Format(timeLayout), int64(id),
	)
	if err != nil {
		return nil, err
	}
	if err := affectedOrNotFound(res, "emission", int64(id)); err != nil {
		return nil, err
	}
	return emissionByID(ctx, s.db, id)
}

// DeleteEmission removes an emission together with its vouchers and their
// token index entries.
func (s *Store) DeleteEmission(ctx context.Context, id engine.EmissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteEmissionVouchers(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM emissions WHERE id = ?`, int64(id))
		if err != nil {
			return err
		}
		return affectedOrNotFound(res, "emission", int64(id))
	})
}

// =============================================================================
// VOUCHERS
// =============================================================================

// ReplaceVouchers rebuilds the emission's voucher set from specs: the
// previous vouchers (and their tokens) are dropped and the new ones are
// issued with sequential sortnumbers and fresh tokens, atomically.
func (s *Store) ReplaceVouchers(ctx context.Context, emissionID engine.EmissionID, specs []VoucherSpec) ([]engine.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := emissionByID(ctx, s.db, emissionID); err != nil {
		return nil, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteEmissionVouchers(ctx, tx, emissionID); err != nil {
			return err
		}
		for i, spec := range specs {
			sortnumber := i + 1
			token := engine.NewVoucherToken(sortnumber)
			res, err := tx.ExecContext(ctx, `
				INSERT INTO vouchers (emission_id, sortnumber, value, distributed_by, token)
				VALUES (?, ?, ?, ?, ?)`,
				int64(emissionID), sortnumber, spec.Value.String(), nullUserID(spec.DistributedBy), token,
			)
			if err != nil {
				return fmt.Errorf("voucher %d: %w", sortnumber, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tokens (token, kind, ref_id) VALUES (?, 'voucher', ?)`, token, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.vouchersByEmission(ctx, emissionID)
}

// VouchersByEmission returns the emission's vouchers in sortnumber order.
func (s *Store) VouchersByEmission(ctx context.Context, emissionID engine.EmissionID) ([]engine.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vouchersByEmission(ctx, emissionID)
}

func (s *Store) vouchersByEmission(ctx context.Context, emissionID engine.EmissionID) ([]engine.Voucher, error) {
	rows, err := s.db.QueryContext(ctx,
		voucherSelect+` WHERE emission_id = ? ORDER BY sortnumber`, int64(emissionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vouchers []engine.Voucher
	for rows.Next() {
		voucher, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, *voucher)
	}
	return vouchers, rows.Err()
}

// VoucherByID returns the voucher with the given internal id.
func (s *Store) VoucherByID(ctx context.Context, id engine.VoucherID) (*engine.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return voucherByID(ctx, s.db, id)
}

// =============================================================================
// ACTIONS (read-only: the engine owns the write path)
// =============================================================================

// ListActions returns the most recent ledger rows, newest first.
func (s *Store) ListActions(ctx context.Context, limit int) ([]engine.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ref, at, origin, requestid, user_token, voucher_token, user_id, voucher_id, response_code
		FROM actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []engine.Action
	for rows.Next() {
		var a engine.Action
		var at string
		var userID, voucherID sql.NullInt64
		var origin, code string
		if err := rows.Scan(&a.ID, &a.Ref, &at, &origin, &a.RequestKind,
			&a.UserToken, &a.VoucherToken, &userID, &voucherID, &code); err != nil {
			return nil, err
		}
		if a.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, err
		}
		a.Origin = engine.Origin(origin)
		a.ResponseCode = engine.ResponseCode(code)
		if userID.Valid {
			id := engine.UserID(userID.Int64)
			a.UserID = &id
		}
		if voucherID.Valid {
			id := engine.VoucherID(voucherID.Int64)
			a.VoucherID = &id
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// =============================================================================
// ROW READERS (shared by Store and storeTx)
// =============================================================================

const userSelect = `
	SELECT id, label, description, can_cashin, can_cashin_by_voucherid, token
	FROM users`

const emissionSelect = `
	SELECT id, label, description, expiration_at
	FROM emissions`

const voucherSelect = `
	SELECT id, emission_id, sortnumber, value, distributed_by,
	       cashedin_by, cashedin_at, undo_expiration_at, token
	FROM vouchers`

type rowScanner interface {
	Scan(dest ...any) error
}

func userByID(ctx context.Context, q querier, id engine.UserID) (*engine.User, error) {
	return scanUser(q.QueryRowContext(ctx, userSelect+` WHERE id = ?`, int64(id)))
}

func scanUser(row rowScanner) (*engine.User, error) {
	var u engine.User
	err := row.Scan(&u.ID, &u.Label, &u.Description, &u.CanCashin, &u.CanCashinByVoucherID, &u.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func emissionByID(ctx context.Context, q querier, id engine.EmissionID) (*engine.Emission, error) {
	return scanEmission(q.QueryRowContext(ctx, emissionSelect+` WHERE id = ?`, int64(id)))
}

func scanEmission(row rowScanner) (*engine.Emission, error) {
	var e engine.Emission
	var expiration string
	err := row.Scan(&e.ID, &e.Label, &e.Description, &expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.ExpirationAt, err = time.Parse(timeLayout, expiration); err != nil {
		return nil, err
	}
	return &e, nil
}

func voucherByID(ctx context.Context, q querier, id engine.VoucherID) (*engine.Voucher, error) {
	return scanVoucher(q.QueryRowContext(ctx, voucherSelect+` WHERE id = ?`, int64(id)))
}

func scanVoucher(row rowScanner) (*engine.Voucher, error) {
	var v engine.Voucher
	var value string
	var distributedBy, cashedinBy sql.NullInt64
	var cashedinAt, undoExpirationAt sql.NullString

	err := row.Scan(&v.ID, &v.EmissionID, &v.Sortnumber, &value, &distributedBy,
		&cashedinBy, &cashedinAt, &undoExpirationAt, &v.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if v.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("voucher %d: corrupt value %q", v.ID, value)
	}
	if distributedBy.Valid {
		id := engine.UserID(distributedBy.Int64)
		v.DistributedBy = &id
	}
	if cashedinBy.Valid {
		id := engine.UserID(cashedinBy.Int64)
		v.CashedinBy = &id
	}
	if v.CashedinAt, err = parseNullTime(cashedinAt); err != nil {
		return nil, err
	}
	if v.UndoExpirationAt, err = parseNullTime(undoExpirationAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// inTx runs fn in a plain transaction. Callers hold s.mu.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func deleteEmissionVouchers(ctx context.Context, tx *sql.Tx, id engine.EmissionID) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM tokens WHERE kind = 'voucher' AND ref_id IN
		(SELECT id FROM vouchers WHERE emission_id = ?)`, int64(id)); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM vouchers WHERE emission_id = ?`, int64(id))
	return err
}

func affectedOrNotFound(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.UnknownIDError{Entity: entity, ID: id}
	}
	return nil
}
