package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bookbridge/library-requests/internal/approval"
	"github.com/bookbridge/library-requests/internal/model"
)

// RequestRepo manages persistence for book requests.  Requests are
// created Pending and only ever mutated through the locked status
// update; nothing in this package deletes them.  RequestRepo satisfies
// approval.RequestStore.
type RequestRepo struct {
	db    *sql.DB
	books *BookRepo
}

// NewRequestRepo constructs a RequestRepo.  The BookRepo is used at
// creation time to resolve the requested title to a book id when one
// exists.
func NewRequestRepo(db *sql.DB, books *BookRepo) *RequestRepo {
	if books == nil {
		panic("nil BookRepo passed to NewRequestRepo")
	}
	return &RequestRepo{db: db, books: books}
}

const requestColumns = `id, book_id, title, author, requested_by, requested_on, status`

func scanRequest(row interface{ Scan(dest ...any) error }) (*model.Request, error) {
	var req model.Request
	var bookID sql.NullInt64
	var author sql.NullString
	var status string
	if err := row.Scan(&req.ID, &bookID, &req.Title, &author, &req.RequestedBy, &req.RequestedOn, &status); err != nil {
		return nil, err
	}
	if bookID.Valid {
		id := uint64(bookID.Int64)
		req.BookID = &id
	}
	req.Author = author.String
	req.Status = model.Status(status)
	return &req, nil
}

// Create inserts a new Pending request and returns the stored row.
// The title is resolved to a book id best-effort; a failed or empty
// resolution still creates the request, since the title text remains
// the fallback join key at approval time.
func (r *RequestRepo) Create(ctx context.Context, title, author, requestedBy string) (*model.Request, error) {
	bookID, err := r.books.ResolveIDByTitle(ctx, title)
	if err != nil {
		// Resolution is an optimisation, not a requirement.
		bookID = nil
	}

	var authorArg any
	if author != "" {
		authorArg = author
	}
	var bookIDArg any
	if bookID != nil {
		bookIDArg = *bookID
	}

	const q = `INSERT INTO book_requests (book_id, title, author, requested_by) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, bookIDArg, title, authorArg, requestedBy)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	// Query back the full row to populate DB defaults (requested_on, status).
	const sel = `SELECT ` + requestColumns + ` FROM book_requests WHERE id = ?`
	return scanRequest(r.db.QueryRowContext(ctx, sel, id))
}

// List returns all requests, newest first.
func (r *RequestRepo) List(ctx context.Context) ([]model.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM book_requests ORDER BY requested_on DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]model.Request, 0, 16)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// GetByID returns a single request.  approval.ErrRequestNotFound is
// returned when the id is unknown.
func (r *RequestRepo) GetByID(ctx context.Context, id uint64) (*model.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM book_requests WHERE id = ?`
	req, err := scanRequest(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrRequestNotFound
	}
	return req, err
}

// LockRequest reads a request by id inside tx, taking an exclusive row
// lock held until the transaction ends.  Concurrent transitions on the
// same request serialize here.
func (r *RequestRepo) LockRequest(ctx context.Context, tx approval.Tx, id uint64) (*model.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM book_requests WHERE id = ? FOR UPDATE`
	req, err := scanRequest(mustTx(tx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrRequestNotFound
	}
	return req, err
}

// UpdateRequestStatus writes the new status inside tx and returns the
// updated row.  The caller must already hold the row lock.
func (r *RequestRepo) UpdateRequestStatus(ctx context.Context, tx approval.Tx, id uint64, status model.Status) (*model.Request, error) {
	dtx := mustTx(tx)
	const upd = `UPDATE book_requests SET status = ? WHERE id = ?`
	if _, err := dtx.ExecContext(ctx, upd, string(status), id); err != nil {
		return nil, err
	}
	const sel = `SELECT ` + requestColumns + ` FROM book_requests WHERE id = ?`
	return scanRequest(dtx.QueryRowContext(ctx, sel, id))
}
