package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/bookbridge/library-requests/internal/approval"
	"github.com/bookbridge/library-requests/internal/config"
	"github.com/bookbridge/library-requests/internal/middleware"
	"github.com/bookbridge/library-requests/internal/model"
	"github.com/bookbridge/library-requests/internal/queue"
	"github.com/bookbridge/library-requests/internal/repository"
	queue_publisher "github.com/bookbridge/library-requests/internal/service"
)

// RequestHandler serves the book-request endpoints.  Listing and
// creation go straight to the repository; status updates run through
// the approval engine so inventory mutations stay inside its locked
// unit of work.  After a committed decision the handler invalidates
// the cached catalog listing and announces the decision on the queue,
// both best-effort.
type RequestHandler struct {
	Requests *repository.RequestRepo
	Books    *repository.BookRepo
	Engine   *approval.Engine

	CacheCfg config.CacheConfig
	Redis    *redis.Client // nil disables cache invalidation
}

// NewRequestHandler constructs a RequestHandler.  Repositories and the
// engine must be non-nil; Redis may be nil.
func NewRequestHandler(requests *repository.RequestRepo, books *repository.BookRepo, engine *approval.Engine, cacheCfg config.CacheConfig, rdb *redis.Client) *RequestHandler {
	if requests == nil || books == nil || engine == nil {
		panic("nil dependency passed to NewRequestHandler")
	}
	return &RequestHandler{Requests: requests, Books: books, Engine: engine, CacheCfg: cacheCfg, Redis: rdb}
}

// ListRequests handles GET /api/requests.  Requests are returned
// newest first.
func (h *RequestHandler) ListRequests(c echo.Context) error {
	requests, err := h.Requests.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch requests"})
	}
	return c.JSON(http.StatusOK, requests)
}

// CreateRequest handles POST /api/requests.  The body must contain a
// title; the requester identity comes from the body or, failing that,
// the X-Requested-By header.  The created request starts Pending.
func (h *RequestHandler) CreateRequest(c echo.Context) error {
	var body struct {
		Title       string `json:"title"`
		Author      string `json:"author"`
		RequestedBy string `json:"requested_by"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.RequestedBy == "" {
		if v := middleware.Requester(c); v != "guest" {
			body.RequestedBy = v
		}
	}
	if body.Title == "" || body.RequestedBy == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and requested_by are required"})
	}

	req, err := h.Requests.Create(c.Request().Context(), body.Title, body.Author, body.RequestedBy)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create request"})
	}
	return c.JSON(http.StatusCreated, req)
}

// UpdateRequestStatus handles PATCH /api/requests/:id.  The body
// carries the target status; the transition itself is delegated to the
// approval engine.  A repeated call with the status the request
// already holds returns 200 with the unchanged row, so retries are
// always safe for the caller.
func (h *RequestHandler) UpdateRequestStatus(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	target, ok := model.ParseStatus(body.Status)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status, must be Approved, Rejected, or Pending"})
	}

	req, noop, err := h.Engine.Transition(c.Request().Context(), id, target)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrInvalidStatus):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status, must be Approved, Rejected, or Pending"})
		case errors.Is(err, approval.ErrRequestNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		case errors.Is(err, approval.ErrBookNotFound):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "book not found in inventory"})
		case errors.Is(err, approval.ErrNoCopies):
			return c.JSON(http.StatusConflict, echo.Map{"error": "no copies available"})
		case errors.Is(err, approval.ErrLockWait):
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "request is being processed, retry shortly"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update request"})
		}
	}
	if noop {
		return c.JSON(http.StatusOK, echo.Map{"message": "no change needed", "request": req})
	}

	h.afterDecision(req, target == model.StatusApproved)
	return c.JSON(http.StatusOK, req)
}

// afterDecision runs the best-effort side effects of a committed
// transition: dropping the cached catalog listing (counts changed on
// approval) and publishing the decision event.  Neither can fail the
// request; the transition is already durable.
func (h *RequestHandler) afterDecision(req *model.Request, approved bool) {
	ev := queue.RequestDecidedEvent{
		EventID:     uuid.NewString(),
		RequestID:   req.ID,
		Title:       req.Title,
		RequestedBy: req.RequestedBy,
		Status:      string(req.Status),
		DecidedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if approved {
			middleware.InvalidateCachedRoute(ctx, h.CacheCfg, h.Redis, "/api/books")
			ev.CopiesLeft = h.copiesLeft(ctx, req)
		}
		_ = queue_publisher.PublishRequestDecided(ctx, ev)
	}()
}

// copiesLeft reads the post-decision copy count for the event payload.
// It is informational only, so a plain read outside any transaction is
// fine here.
func (h *RequestHandler) copiesLeft(ctx context.Context, req *model.Request) *int {
	books, err := h.Books.List(ctx)
	if err != nil {
		return nil
	}
	if req.BookID != nil {
		for _, b := range books {
			if b.ID == *req.BookID {
				return &b.AvailableCopies
			}
		}
	}
	for _, b := range books {
		if strings.EqualFold(b.Title, req.Title) {
			return &b.AvailableCopies
		}
	}
	return nil
}
