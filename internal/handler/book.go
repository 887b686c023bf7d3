package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bookbridge/library-requests/internal/repository"
)

// BookHandler serves read-only catalog endpoints.  Counts shown here
// are the latest committed values; the approval engine is the only
// writer.
type BookHandler struct {
	Books *repository.BookRepo
}

// NewBookHandler constructs a BookHandler.  The repository must be non-nil.
func NewBookHandler(books *repository.BookRepo) *BookHandler {
	if books == nil {
		panic("nil repository passed to NewBookHandler")
	}
	return &BookHandler{Books: books}
}

// GetBooks handles GET /api/books.  It returns the full catalog with
// available copy counts, ordered by id.
func (h *BookHandler) GetBooks(c echo.Context) error {
	books, err := h.Books.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch books"})
	}
	return c.JSON(http.StatusOK, books)
}
