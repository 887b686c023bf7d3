package model

import "time"

// Request records a user's ask for a copy of a book.  A request is
// created Pending and is moved to Approved or Rejected by the approval
// engine; it is never deleted.  All fields other than Status are
// immutable after creation.
//
// The request stores the title text the user typed.  When the title
// matched a book at creation time, BookID carries the resolved id so
// the approval path can lock the exact row.  Titles are not unique, so
// the title join is best-effort and BookID may be nil; the approval
// engine falls back to a case-insensitive title lookup in that case.
//
// Fields:
//  ID          – primary key identifier.
//  BookID      – resolved book id, nil when no match existed at creation.
//  Title       – requested title as submitted.
//  Author      – author hint, optional.
//  RequestedBy – opaque caller identity (no auth model; see handler layer).
//  RequestedOn – creation timestamp (UTC).
//  Status      – Pending, Approved or Rejected.
type Request struct {
	ID          uint64    `json:"id"`                // book_requests.id
	BookID      *uint64   `json:"book_id,omitempty"` // book_requests.book_id (nullable)
	Title       string    `json:"title"`             // book_requests.title
	Author      string    `json:"author,omitempty"`  // book_requests.author (nullable)
	RequestedBy string    `json:"requested_by"`      // book_requests.requested_by
	RequestedOn time.Time `json:"requested_on"`      // book_requests.requested_on
	Status      Status    `json:"status"`            // book_requests.status
}
