package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/bookbridge/library-requests/internal/config"
)

// captureWriter captures the response body and status while forwarding
// everything to the client, so a successful response can be stored
// after the handler ran.
type captureWriter struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	overflow bool
	limit    int
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.overflow {
		if cw.buf.Len()+len(b) <= cw.limit {
			cw.buf.Write(b)
		} else {
			// Too large to cache; keep serving, stop capturing.
			cw.overflow = true
			cw.buf.Reset()
		}
	}
	return cw.ResponseWriter.Write(b)
}

// cacheKey derives a stable Redis key for a request.  Route and query
// are hashed together under the configured prefix.
func cacheKey(prefix, route, query string) string {
	sum := sha1.Sum([]byte(route + "?" + query))
	return fmt.Sprintf("%s:%x", prefix, sum[:])
}

// NewResponseCache caches successful JSON GET responses in Redis for
// the configured TTL.  Only 200 responses within the body size limit
// are stored.  A cache hit is served directly with an X-Cache: HIT
// header; Redis errors fall through to the handler.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			key := cacheKey(cfg.Prefix, c.Path(), c.Request().URL.RawQuery)
			ctx := c.Request().Context()

			if body, err := rdb.Get(ctx, key).Bytes(); err == nil {
				c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
				c.Response().Header().Set("X-Cache", "HIT")
				return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status == http.StatusOK && !cw.overflow && cw.buf.Len() > 0 {
				// Store with a detached timeout: the client may already be gone.
				sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := rdb.Set(sctx, key, cw.buf.Bytes(), cfg.TTL).Err(); err != nil {
					c.Logger().Warnf("cache: store failed for key=%s: %v", key, err)
				}
			}
			return nil
		}
	}
}

// InvalidateCachedRoute drops the cached entry for a route with no
// query string.  Approvals call this for the catalog listing because a
// committed decrement changes the published counts.
func InvalidateCachedRoute(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client, route string) {
	if rdb == nil || !cfg.Enabled {
		return
	}
	// Best-effort: a stale entry expires with the TTL anyway.
	_ = rdb.Del(ctx, cacheKey(cfg.Prefix, route, "")).Err()
}
