package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
)

// maxHeaderValueSize caps any single header value.
const maxHeaderValueSize = 8192

var scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)

// Sanitize validates incoming requests for common attack patterns in the
// path, headers, and query string. Blocked requests get a 400.
func Sanitize() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			rawPath := req.URL.RawPath
			if rawPath == "" {
				rawPath = path
			}

			if containsPathTraversal(path) || containsPathTraversal(rawPath) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid request path")
			}
			if strings.ContainsRune(path, 0) || strings.Contains(rawPath, "%00") {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid request path")
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return echo.NewHTTPError(http.StatusBadRequest, "header value too large: "+name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return echo.NewHTTPError(http.StatusBadRequest, "invalid header value: "+name)
					}
				}
			}

			for _, values := range req.URL.Query() {
				for _, v := range values {
					if scriptPattern.MatchString(v) {
						return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameter")
					}
				}
			}

			return next(c)
		}
	}
}

func containsPathTraversal(path string) bool {
	return strings.Contains(path, "..") ||
		strings.Contains(path, "%2e%2e") ||
		strings.Contains(strings.ToLower(path), "%2e%2e")
}
