package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bookbridge/library-requests/internal/approval"
	"github.com/bookbridge/library-requests/internal/model"
)

// BookRepo manages persistence for the book inventory.  Read paths use
// the repository's own DB handle; the locking and decrement methods
// take the caller's transaction so they serialize with concurrent
// approvals on the same row.  BookRepo satisfies approval.CatalogStore.
type BookRepo struct {
	db *sql.DB
}

// NewBookRepo constructs a BookRepo given a DB handle.
func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{db: db} }

const bookColumns = `id, title, author, genre, available_copies`

func scanBook(row interface{ Scan(dest ...any) error }) (*model.Book, error) {
	var b model.Book
	var author, genre sql.NullString
	if err := row.Scan(&b.ID, &b.Title, &author, &genre, &b.AvailableCopies); err != nil {
		return nil, err
	}
	b.Author = author.String
	b.Genre = genre.String
	return &b, nil
}

// List returns the full catalog ordered by id.  Counts reflect the
// latest committed state; listing never blocks on approval locks.
func (r *BookRepo) List(ctx context.Context) ([]model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]model.Book, 0, 16)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// ResolveIDByTitle returns the id of the first book whose title
// matches case-insensitively, or nil when there is no match.  It is a
// best-effort, non-locking lookup used when a request is created;
// titles are not unique, so ORDER BY id makes the pick deterministic.
func (r *BookRepo) ResolveIDByTitle(ctx context.Context, title string) (*uint64, error) {
	const q = `SELECT id FROM books WHERE LOWER(title) = LOWER(?) ORDER BY id LIMIT 1`
	var id uint64
	err := r.db.QueryRowContext(ctx, q, title).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// LockBookByID reads a book by id inside tx, taking an exclusive row
// lock that is held until the transaction ends.
func (r *BookRepo) LockBookByID(ctx context.Context, tx approval.Tx, id uint64) (*model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE id = ? FOR UPDATE`
	b, err := scanBook(mustTx(tx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrBookNotFound
	}
	return b, err
}

// LockBookByTitle is the fallback lookup for requests with no resolved
// book id.  The match is case-insensitive and picks the lowest id when
// several books share the title, mirroring ResolveIDByTitle.
func (r *BookRepo) LockBookByTitle(ctx context.Context, tx approval.Tx, title string) (*model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE LOWER(title) = LOWER(?) ORDER BY id LIMIT 1 FOR UPDATE`
	b, err := scanBook(mustTx(tx).QueryRowContext(ctx, q, title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrBookNotFound
	}
	return b, err
}

// DecrementCopies subtracts exactly one available copy inside tx.  The
// available_copies > 0 guard backs up the engine's check so the count
// can never go negative even if a caller skips the locked read.
func (r *BookRepo) DecrementCopies(ctx context.Context, tx approval.Tx, bookID uint64) error {
	const q = `UPDATE books SET available_copies = available_copies - 1 WHERE id = ? AND available_copies > 0`
	res, err := mustTx(tx).ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: book %d", approval.ErrNoCopies, bookID)
	}
	return nil
}
