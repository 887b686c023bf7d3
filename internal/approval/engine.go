// Package approval implements the request transition engine.  It moves
// a book request between Pending, Approved and Rejected as one atomic
// unit of work against the request and catalog stores: the request row
// is locked first, the matching book row is locked only when approving,
// and either every mutation commits or none does.  Repeating a call
// with the target the request already holds is a no-op, which keeps
// retried approvals from decrementing the inventory twice.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookbridge/library-requests/internal/model"
)

// Sentinel errors returned by Transition.  Stores implementing the
// interfaces below are expected to return ErrRequestNotFound and
// ErrBookNotFound from their locking lookups so handlers can translate
// them with errors.Is.
var (
	// ErrInvalidStatus rejects a target outside the known states.  It is
	// returned before any store access.
	ErrInvalidStatus = errors.New("invalid target status")

	// ErrRequestNotFound indicates the request id does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrBookNotFound indicates no book in the inventory matches the
	// request, neither by resolved id nor by title.
	ErrBookNotFound = errors.New("book not found in inventory")

	// ErrNoCopies indicates the matched book has zero available copies.
	// The request is left untouched.
	ErrNoCopies = errors.New("no copies available")

	// ErrLockWait indicates a row lock could not be acquired within the
	// engine's bounded wait.  Callers may retry; the engine never does.
	ErrLockWait = errors.New("lock wait exceeded")
)

// Tx is the transactional scope both stores participate in.  The
// concrete implementation wraps *sql.Tx; tests supply an in-memory one.
type Tx interface {
	Commit() error
	Rollback() error
}

// TxBeginner opens the unit of work shared by both stores.
type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// RequestStore is the slice of the request repository the engine needs.
// LockRequest must take an exclusive row lock (SELECT ... FOR UPDATE)
// that is held until the transaction ends.
type RequestStore interface {
	LockRequest(ctx context.Context, tx Tx, id uint64) (*model.Request, error)
	UpdateRequestStatus(ctx context.Context, tx Tx, id uint64, status model.Status) (*model.Request, error)
}

// CatalogStore is the slice of the book repository the engine needs.
// Both lock methods take an exclusive row lock on the matched book;
// the title match is case-insensitive.  DecrementCopies subtracts
// exactly one copy and must refuse to go below zero.
type CatalogStore interface {
	LockBookByID(ctx context.Context, tx Tx, id uint64) (*model.Book, error)
	LockBookByTitle(ctx context.Context, tx Tx, title string) (*model.Book, error)
	DecrementCopies(ctx context.Context, tx Tx, bookID uint64) error
}

// DefaultLockWait bounds how long a Transition call blocks on a row
// lock held by a concurrent transition before giving up.
const DefaultLockWait = 5 * time.Second

// Engine validates and commits request status transitions.
type Engine struct {
	beginner TxBeginner
	requests RequestStore
	catalog  CatalogStore
	lockWait time.Duration
}

// NewEngine constructs an Engine.  A lockWait of zero selects
// DefaultLockWait; a negative value disables the bound.
func NewEngine(b TxBeginner, requests RequestStore, catalog CatalogStore, lockWait time.Duration) *Engine {
	if b == nil || requests == nil || catalog == nil {
		panic("nil store passed to NewEngine")
	}
	if lockWait == 0 {
		lockWait = DefaultLockWait
	}
	return &Engine{beginner: b, requests: requests, catalog: catalog, lockWait: lockWait}
}

// Transition moves the request identified by id to target.  It returns
// the request as stored after the call and whether the call was a
// no-op (target already held, nothing mutated).
//
// The unit of work:
//  1. lock the request row; unknown id fails with ErrRequestNotFound
//     before any catalog access.
//  2. if the current status already equals target, roll back and
//     return the unchanged request with noop=true.
//  3. when approving, lock the matching book row (by stored book id
//     when the request has one, falling back to the case-insensitive
//     title match), fail with ErrBookNotFound or ErrNoCopies, or
//     decrement the available copies by one.
//  4. write the new status and commit.
//
// Any failure rolls the whole unit back: the request and book rows are
// left exactly as they were.  Moving a request out of Approved does
// NOT return the reserved copy to the inventory; that gap is inherited
// from the product behaviour and is deliberate (see DESIGN.md).
func (e *Engine) Transition(ctx context.Context, id uint64, target model.Status) (*model.Request, bool, error) {
	if !target.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	if e.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lockWait)
		defer cancel()
	}

	tx, err := e.beginner.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transition: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	req, err := e.requests.LockRequest(ctx, tx, id)
	if err != nil {
		return nil, false, e.lockErr(ctx, err)
	}

	if req.Status == target {
		// Already there; rolling back is safe because nothing was written.
		return req, true, nil
	}

	if target == model.StatusApproved {
		book, err := e.lockBook(ctx, tx, req)
		if err != nil {
			return nil, false, e.lockErr(ctx, err)
		}
		if book.AvailableCopies <= 0 {
			return nil, false, fmt.Errorf("%w: %q", ErrNoCopies, book.Title)
		}
		if err := e.catalog.DecrementCopies(ctx, tx, book.ID); err != nil {
			return nil, false, fmt.Errorf("decrement copies: %w", err)
		}
	}

	updated, err := e.requests.UpdateRequestStatus(ctx, tx, id, target)
	if err != nil {
		return nil, false, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transition: %w", err)
	}
	committed = true
	return updated, false, nil
}

// lockBook resolves the book row for an approval.  The stored book id
// is preferred when the request carries one; the title lookup is kept
// as the fallback because titles were the original join key and the id
// is only a best-effort resolution made at creation time.
func (e *Engine) lockBook(ctx context.Context, tx Tx, req *model.Request) (*model.Book, error) {
	if req.BookID != nil {
		book, err := e.catalog.LockBookByID(ctx, tx, *req.BookID)
		if err == nil {
			return book, nil
		}
		if !errors.Is(err, ErrBookNotFound) {
			return nil, err
		}
	}
	return e.catalog.LockBookByTitle(ctx, tx, req.Title)
}

// lockErr distinguishes a lock wait that ran out of time from a
// business failure surfaced by the store.
func (e *Engine) lockErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLockWait, err)
	}
	return err
}
