package model

// Book is a title held in the library's shared inventory.  The
// available copy count is the only mutable field with a correctness
// invariant: it is never negative and is only changed by the approval
// engine, by exactly one copy per committed transition.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – display title; also the (weak) join key used by
//                    requests that could not be resolved to a book id.
//  Author          – author name.
//  Genre           – genre label.
//  AvailableCopies – copies currently available for lending (>= 0).
type Book struct {
	ID              uint64 `json:"id"`               // books.id
	Title           string `json:"title"`            // books.title
	Author          string `json:"author"`           // books.author
	Genre           string `json:"genre"`            // books.genre
	AvailableCopies int    `json:"available_copies"` // books.available_copies
}
