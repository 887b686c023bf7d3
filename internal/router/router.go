package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/bookbridge/library-requests/internal/handler"
)

// RegisterRoutes registers routes that exist outside the API prefix.
// Currently it exposes only the health check used by load balancers
// and monitoring systems to verify that the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAPI registers the JSON API under /api.  The optional cache
// middleware is applied to the catalog listing only: it is the one
// endpoint whose payload is both hot and safe to serve slightly stale,
// and approvals invalidate it on commit.
func RegisterAPI(e *echo.Echo, books *handler.BookHandler, requests *handler.RequestHandler, chat *handler.ChatHandler, cache echo.MiddlewareFunc) {
	api := e.Group("/api")

	// Health probe used by the frontend on startup.
	api.GET("/health", handler.APIHealth)

	// Catalog is read-only over HTTP; counts change only through the
	// approval engine.
	if cache != nil {
		api.GET("/books", books.GetBooks, cache)
	} else {
		api.GET("/books", books.GetBooks)
	}

	// Request lifecycle: list, create, and the status transition.
	api.GET("/requests", requests.ListRequests)
	api.POST("/requests", requests.CreateRequest)
	api.PATCH("/requests/:id", requests.UpdateRequestStatus)

	// Two-command chat dispatcher.
	api.POST("/chat/message", chat.PostMessage)
}

// RegisterStatic serves the bundled frontend when a directory is
// configured.  The API stays usable without it.
func RegisterStatic(e *echo.Echo, dir string) {
	if dir == "" {
		return
	}
	e.Static("/", dir)
}
