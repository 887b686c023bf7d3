// Package repository contains the MySQL data access layer for books
// and book requests.  Repositories expose plain read methods bound to
// a *sql.DB plus locking methods that participate in a caller-owned
// transaction, so the approval engine can span both tables in one
// atomic unit of work.
package repository

import (
	"context"
	"database/sql"

	"github.com/bookbridge/library-requests/internal/approval"
)

// Store owns the database handle and opens the transactional scope
// shared by the request and book repositories.  It satisfies
// approval.TxBeginner.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store bound to the given database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying sql.DB for callers that need direct
// access, such as health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Begin opens a transaction wrapped in the approval.Tx interface.
func (s *Store) Begin(ctx context.Context) (approval.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

// sqlTx adapts *sql.Tx to approval.Tx.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// mustTx unwraps the concrete transaction.  Repositories in this
// package only ever see transactions minted by Store.Begin.
func mustTx(tx approval.Tx) *sql.Tx {
	return tx.(*sqlTx).tx
}
