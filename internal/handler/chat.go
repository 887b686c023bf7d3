package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bookbridge/library-requests/internal/chat"
	"github.com/bookbridge/library-requests/internal/middleware"
	"github.com/bookbridge/library-requests/internal/repository"
)

// ChatHandler serves the chat-style endpoint that accepts two fixed
// commands: "view books" and "request book <title>".  Anything else
// gets a help reply.  The handler is a thin dispatcher over the parsed
// command; all data access goes through the repositories.
type ChatHandler struct {
	Books    *repository.BookRepo
	Requests *repository.RequestRepo
}

// NewChatHandler constructs a ChatHandler with non-nil repositories.
func NewChatHandler(books *repository.BookRepo, requests *repository.RequestRepo) *ChatHandler {
	if books == nil || requests == nil {
		panic("nil repository passed to NewChatHandler")
	}
	return &ChatHandler{Books: books, Requests: requests}
}

const chatHelp = `Unknown command. Try "view books" or "request book <book name>"`

// PostMessage handles POST /api/chat/message.  The body carries the
// free-text message and an optional sender; when the sender is absent
// the X-Requested-By header and finally "guest" are used.
func (h *ChatHandler) PostMessage(c echo.Context) error {
	var body struct {
		From    string `json:"from"`
		Message string `json:"message"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"reply": "please send a message"})
	}
	if strings.TrimSpace(body.Message) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"reply": "please send a message"})
	}
	from := body.From
	if from == "" {
		from = middleware.Requester(c)
	}

	cmd := chat.Parse(body.Message)
	switch cmd.Kind {
	case chat.KindViewCatalog:
		books, err := h.Books.List(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"reply": "server error"})
		}
		lines := make([]string, 0, len(books))
		for i, b := range books {
			lines = append(lines, fmt.Sprintf("%d. %s (%d copies)", i+1, b.Title, b.AvailableCopies))
		}
		return c.JSON(http.StatusOK, echo.Map{
			"reply": "📚 Available Books:\n" + strings.Join(lines, "\n"),
		})

	case chat.KindRequestItem:
		if cmd.Title == "" {
			return c.JSON(http.StatusOK, echo.Map{"reply": "Please specify book name: request book <book name>"})
		}
		if _, err := h.Requests.Create(c.Request().Context(), cmd.Title, "", from); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"reply": "server error"})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"reply": fmt.Sprintf("✅ Your request for %q has been recorded.", cmd.Title),
		})

	default:
		return c.JSON(http.StatusOK, echo.Map{"reply": chatHelp})
	}
}
