package middleware

// identity.go resolves the opaque caller identity attached to write
// operations.  There is no authentication model: the identity is
// whatever the caller supplies and is used for attribution only.

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// RequestedByHeader is the header carrying the caller identity.
const RequestedByHeader = "X-Requested-By"

// requesterKey is the context key the identity middleware stores under.
const requesterKey = "requester"

// Requester resolves the caller identity for the current request.  It
// prefers the value stored by RequesterFromHeader and falls back to
// reading the header directly, returning "guest" when nothing was
// supplied.
func Requester(c echo.Context) string {
	if v, ok := c.Get(requesterKey).(string); ok && v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Request().Header.Get(RequestedByHeader)); v != "" {
		return v
	}
	return "guest"
}

// RequesterFromHeader copies the caller identity header into the echo
// context so handlers can use Requester without touching the request.
func RequesterFromHeader() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if v := strings.TrimSpace(c.Request().Header.Get(RequestedByHeader)); v != "" {
				c.Set(requesterKey, v)
			}
			return next(c)
		}
	}
}
