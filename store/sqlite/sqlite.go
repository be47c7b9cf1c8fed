/*
Package sqlite provides the SQLite-backed authoritative store.

PURPOSE:
  Implements the engine's transactional boundary (engine.Store/engine.Tx)
  plus the plain record management the engine reads transactionally:
  users, emissions, vouchers.

TRANSACTIONS:
  WithTx hands the engine a serializable transaction; SQLite's single
  writer plus the immediate transaction lock serialize concurrent
  requests, so the rule table never sees a stale "not yet cashed in".

APPEND-ONLY ENFORCEMENT:
  The actions ledger has exactly one write path (AppendAction). No UPDATE
  or DELETE statement targets it anywhere in this package.

SCHEMA:
  Versioned goose migrations embedded in the binary; see migrations/.
  New() migrates on open.

WAL MODE:
  The database is opened with WAL journaling and foreign keys on, and
  write transactions take the lock up front (_txlock=immediate).

USAGE:
  store, err := sqlite.New("./vouchers.db")   // ":memory:" for tests
  defer store.Close()
  eng := engine.New(store, engine.Config{})
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/ldt/voucher-engine/engine"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeLayout = time.RFC3339Nano

// Store implements engine.Store and the record management around it.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The sqlite driver serializes writes through a single connection;
	// more connections only buy "database is locked" errors.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// =============================================================================
// ENGINE TRANSACTION BOUNDARY
// =============================================================================

// WithTx runs fn inside one transaction, committing on nil and rolling
// back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}

	if err := fn(&storeTx{ctx: ctx, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx so row readers can be
// shared between the transactional and the plain paths.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// storeTx implements engine.Tx on top of one *sql.Tx.
type storeTx struct {
	ctx context.Context
	q   querier
}

// LookupToken resolves a token through the tokens index.
func (t *storeTx) LookupToken(token string) (*engine.User, *engine.Voucher, error) {
	var kind string
	var refID int64
	err := t.q.QueryRowContext(t.ctx,
		`SELECT kind, ref_id FROM tokens WHERE token = ?`, token,
	).Scan(&kind, &refID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case "user":
		user, err := userByID(t.ctx, t.q, engine.UserID(refID))
		return user, nil, err
	case "voucher":
		voucher, err := voucherByID(t.ctx, t.q, engine.VoucherID(refID))
		return nil, voucher, err
	}
	return nil, nil, fmt.Errorf("token %q: corrupt kind %q", token, kind)
}

func (t *storeTx) UserByID(id engine.UserID) (*engine.User, error) {
	return userByID(t.ctx, t.q, id)
}

func (t *storeTx) VoucherByID(id engine.VoucherID) (*engine.Voucher, error) {
	return voucherByID(t.ctx, t.q, id)
}

func (t *storeTx) EmissionByID(id engine.EmissionID) (*engine.Emission, error) {
	return emissionByID(t.ctx, t.q, id)
}

// CashinVoucher sets the cashed-in triple. The WHERE guard keeps the
// transition legal even if a caller ever bypassed the rule table.
func (t *storeTx) CashinVoucher(id engine.VoucherID, by engine.UserID, at, undoExpiration time.Time) error {
	res, err := t.q.ExecContext(t.ctx, `
		UPDATE vouchers
		SET cashedin_by = ?, cashedin_at = ?, undo_expiration_at = ?
		WHERE id = ? AND cashedin_by IS NULL`,
		int64(by), at.Format(timeLayout), undoExpiration.Format(timeLayout), int64(id),
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("cashin voucher %d", id))
}

// UndoCashin clears the cashed-in triple.
func (t *storeTx) UndoCashin(id engine.VoucherID) error {
	res, err := t.q.ExecContext(t.ctx, `
		UPDATE vouchers
		SET cashedin_by = NULL, cashedin_at = NULL, undo_expiration_at = NULL
		WHERE id = ? AND cashedin_by IS NOT NULL`,
		int64(id),
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("undo voucher %d", id))
}

// AppendAction inserts one ledger row. This is the only statement in the
// package that writes to actions.
func (t *storeTx) AppendAction(a *engine.Action) (engine.ActionID, error) {
	res, err := t.q.ExecContext(t.ctx, `
		INSERT INTO actions
		(ref, at, origin, requestid, user_token, voucher_token, user_id, voucher_id, response_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Ref,
		a.At.Format(timeLayout),
		string(a.Origin),
		a.RequestKind,
		a.UserToken,
		a.VoucherToken,
		nullUserID(a.UserID),
		nullVoucherID(a.VoucherID),
		string(a.ResponseCode),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrLedgerAppend, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrLedgerAppend, err)
	}
	a.ID = engine.ActionID(id)
	return a.ID, nil
}

// VoucherHistory returns the voucher's most recent ledger rows, newest
// first, redacted to labels.
func (t *storeTx) VoucherHistory(id engine.VoucherID, limit int) ([]engine.HistoryEntry, error) {
	rows, err := t.q.QueryContext(t.ctx, `
		SELECT a.at, COALESCE(u.label, ''), a.requestid, a.response_code
		FROM actions a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.voucher_id = ?
		ORDER BY a.id DESC
		LIMIT ?`,
		int64(id), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []engine.HistoryEntry
	for rows.Next() {
		var entry engine.HistoryEntry
		var at, code string
		if err := rows.Scan(&at, &entry.UserLabel, &entry.RequestKind, &code); err != nil {
			return nil, err
		}
		entry.At, err = time.Parse(timeLayout, at)
		if err != nil {
			return nil, err
		}
		entry.ResponseCode = engine.ResponseCode(code)
		history = append(history, entry)
	}
	return history, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s: %d rows affected", op, n)
	}
	return nil
}

func nullUserID(id *engine.UserID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func nullVoucherID(id *engine.VoucherID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
