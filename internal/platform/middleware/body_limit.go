package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request body size. The limit string accepts K, M, and G
// suffixes; a bare number is bytes. Oversized requests get 413 before the
// handler runs.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			// Reject early when the declared length already exceeds the cap.
			if req.ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)
			return next(c)
		}
	}
}

func parseLimit(limit string) int64 {
	limit = strings.TrimSpace(strings.ToUpper(limit))
	if limit == "" {
		return 1 << 20
	}

	multiplier := int64(1)
	switch limit[len(limit)-1] {
	case 'K':
		multiplier = 1 << 10
		limit = limit[:len(limit)-1]
	case 'M':
		multiplier = 1 << 20
		limit = limit[:len(limit)-1]
	case 'G':
		multiplier = 1 << 30
		limit = limit[:len(limit)-1]
	}

	n, err := strconv.ParseInt(limit, 10, 64)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n * multiplier
}
