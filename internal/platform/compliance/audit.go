package compliance

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medisync/gateway/internal/domain/auditlog"
)

// phiResources name the resource types whose reads count as PHI access
// rather than plain data access.
var phiResources = map[string]bool{
	"records":       true,
	"lab-results":   true,
	"prescriptions": true,
	"imaging":       true,
	"telemedicine":  true,
}

// buildEntry assembles the audit entry for one HTTP unit of work. Anonymous
// reads carry only the minimal envelope; authenticated and mutating work
// carries request details, scrubbed by the sink before persistence.
func (p *Pipeline) buildEntry(c echo.Context, userID string, status int, elapsed time.Duration) *auditlog.Entry {
	req := c.Request()
	resourceType, resourceID := splitResourcePath(req.URL.Path)

	entry := &auditlog.Entry{
		Action:       actionFor(req.Method, resourceType),
		ResourceType: resourceType,
		Timestamp:    time.Now().UTC(),
		DurationMs:   elapsed.Milliseconds(),
		HTTPStatus:   status,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}

	// Minimal detail for anonymous reads; full request envelope otherwise.
	if userID == "" && req.Method == http.MethodGet {
		return entry
	}

	details := map[string]interface{}{
		"method":     req.Method,
		"path":       req.URL.Path,
		"ip":         c.RealIP(),
		"user_agent": req.UserAgent(),
	}
	if q := req.URL.RawQuery; q != "" {
		details["query"] = q
	}
	if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		details["request_id"] = rid
	}
	entry.SanitizedDetails = details
	return entry
}

// splitResourcePath extracts the resource type and optional id from a
// versioned API path such as /api/v1/records/123/history.
func splitResourcePath(path string) (resourceType, resourceID string) {
	trimmed := strings.TrimPrefix(path, "/api/v1/")
	if trimmed == path {
		trimmed = strings.TrimPrefix(path, "/")
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		return "unknown", ""
	}
	resourceType = parts[0]
	if len(parts) > 1 && parts[1] != "" {
		resourceID = parts[1]
	}
	return resourceType, resourceID
}

func actionFor(method, resourceType string) auditlog.Action {
	switch method {
	case http.MethodGet, http.MethodHead:
		if phiResources[resourceType] {
			return auditlog.ActionPHIAccess
		}
		return auditlog.ActionDataAccess
	case http.MethodPost:
		return auditlog.ActionDataCreate
	case http.MethodPut, http.MethodPatch:
		return auditlog.ActionDataModify
	case http.MethodDelete:
		return auditlog.ActionDataDelete
	default:
		return auditlog.ActionOther
	}
}
