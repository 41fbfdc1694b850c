// Package compliance implements the gate chain every protected unit of work
// passes through: consent gate, idle-timeout gate, audit recorder, response
// redactor. HTTP requests traverse it as middleware; realtime events traverse
// the same stages through Guard.
package compliance

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/domain/auditlog"
	"github.com/medisync/gateway/internal/platform/auth"
	"github.com/medisync/gateway/internal/platform/directory"
	"github.com/medisync/gateway/internal/platform/metrics"
	"github.com/medisync/gateway/internal/platform/session"
)

// StatusLoginTimeout is the non-standard status code portals use to signal
// an idle-expired session distinctly from 401, so clients re-authenticate
// instead of refreshing tokens.
const StatusLoginTimeout = 440

// Options configures the pipeline. Zero values are not usable; main wires
// these from config.
type Options struct {
	// ConsentVersion is the agreement version a user must have accepted.
	ConsentVersion string
	// IdleTimeout is the maximum gap between units of work for one user.
	IdleTimeout time.Duration
	// ProtectedPrefixes lists the path prefixes the pipeline applies to.
	ProtectedPrefixes []string
	// RedactAllowRoles lists roles that receive unredacted responses.
	RedactAllowRoles []string
}

// Pipeline evaluates the compliance stages in a fixed order. It holds no
// per-request state; each unit of work gets its own audit once-guard.
type Pipeline struct {
	opts     Options
	dir      directory.Directory
	sessions session.Store
	sink     *auditlog.Sink
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	allowRoles map[string]bool
}

func New(opts Options, dir directory.Directory, sessions session.Store, sink *auditlog.Sink, logger zerolog.Logger, m *metrics.Metrics) *Pipeline {
	allow := make(map[string]bool, len(opts.RedactAllowRoles))
	for _, r := range opts.RedactAllowRoles {
		allow[strings.ToLower(strings.TrimSpace(r))] = true
	}
	return &Pipeline{
		opts:       opts,
		dir:        dir,
		sessions:   sessions,
		sink:       sink,
		logger:     logger.With().Str("component", "compliance").Logger(),
		metrics:    m,
		allowRoles: allow,
	}
}

// Protected reports whether a path falls under the pipeline.
func (p *Pipeline) Protected(path string) bool {
	for _, prefix := range p.opts.ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware runs the stage chain. Protected paths pass all four stages;
// other paths skip the consent gate and redactor but still pass the idle
// gate and audit recorder whenever a principal is present. The audit entry
// is recorded exactly once per request, whether the request is rejected by
// a gate, handled normally, or aborted by a panic.
func (p *Pipeline) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := auth.UserIDFromContext(ctx)
			role := auth.RoleFromContext(ctx)

			protected := p.Protected(c.Request().URL.Path)
			if !protected && userID == "" {
				return next(c)
			}

			start := time.Now()

			var once sync.Once
			record := func(status int) {
				once.Do(func() {
					entry := p.buildEntry(c, userID, status, time.Since(start))
					if err := p.sink.Record(ctx, entry); err != nil {
						p.logger.Error().Err(err).Str("path", c.Request().URL.Path).
							Msg("audit record failed under fail policy")
					}
				})
			}

			// A panic must not leave the unit of work unaudited. Re-raise so
			// the recovery middleware still produces the 500.
			defer func() {
				if r := recover(); r != nil {
					record(http.StatusInternalServerError)
					panic(r)
				}
			}()

			// Stage 1: consent gate. Protected resources only.
			if protected {
				ok, err := p.consentCurrent(ctx, userID)
				if err != nil {
					record(http.StatusInternalServerError)
					return echo.NewHTTPError(http.StatusInternalServerError, "consent lookup failed")
				}
				if !ok {
					p.metrics.RejectionsTotal.WithLabelValues("consent").Inc()
					record(http.StatusForbidden)
					return c.JSON(http.StatusForbidden, consentRequiredBody())
				}
			}

			// Stage 2: idle-timeout gate.
			expired, err := p.touchSession(ctx, userID, start)
			if err != nil {
				record(http.StatusInternalServerError)
				return echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed")
			}
			if expired {
				p.metrics.RejectionsTotal.WithLabelValues("idle_timeout").Inc()
				record(StatusLoginTimeout)
				return c.JSON(StatusLoginTimeout, sessionExpiredBody())
			}

			// Stage 4 wraps protected handlers so the body can be transformed
			// after the handler wrote it; stage 3 records once the outcome is
			// known either way.
			if protected {
				err = p.withRedaction(c, role, next)
			} else {
				err = next(c)
			}

			status := c.Response().Status
			if err != nil {
				if he, okHTTP := err.(*echo.HTTPError); okHTTP {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			record(status)
			return err
		}
	}
}

func consentRequiredBody() map[string]interface{} {
	return map[string]interface{}{
		"error":           "consent_required",
		"message":         "You must accept the current compliance agreement before accessing this resource.",
		"consentRequired": true,
	}
}

func sessionExpiredBody() map[string]interface{} {
	return map[string]interface{}{
		"error":   "session_expired",
		"message": "Your session expired due to inactivity. Please sign in again.",
	}
}
