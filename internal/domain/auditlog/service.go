package auditlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/platform/metrics"
)

// Failure policies. Swallow favors availability of the clinical workflow:
// the user-facing response succeeds even when the audit write fails, and the
// failure is visible only in operational logs and metrics. Fail makes the
// append synchronous and propagates its error to the caller.
const (
	PolicySwallow = "swallow"
	PolicyFail    = "fail"
)

// Sink accepts audit entries from the compliance pipeline and persists them
// without blocking the request path. Entries are handed to a bounded queue
// drained by a single worker; a full queue or a failed write falls back to
// the operational log.
type Sink struct {
	repo    Repository
	logger  zerolog.Logger
	metrics *metrics.Metrics
	policy  string

	queue chan *Entry
	stop  chan struct{}
	wg    sync.WaitGroup

	appendTimeout time.Duration
}

func NewSink(repo Repository, logger zerolog.Logger, m *metrics.Metrics, policy string, queueSize int) *Sink {
	return &Sink{
		repo:          repo,
		logger:        logger.With().Str("component", "audit_sink").Logger(),
		metrics:       m,
		policy:        policy,
		queue:         make(chan *Entry, queueSize),
		stop:          make(chan struct{}),
		appendTimeout: 10 * time.Second,
	}
}

// Start launches the drain worker. Call once.
func (s *Sink) Start() {
	s.wg.Add(1)
	go s.drain()
}

// Close drains remaining entries and stops the worker.
func (s *Sink) Close() {
	close(s.stop)
	s.wg.Wait()
}

// Record accepts one entry per unit of work. Under PolicySwallow it never
// returns an error: the entry is queued and any downstream failure is
// absorbed. Under PolicyFail the append runs synchronously and its error
// propagates.
func (s *Sink) Record(ctx context.Context, e *Entry) error {
	e.SanitizedDetails = ScrubDetails(e.SanitizedDetails)

	if s.policy == PolicyFail {
		if err := s.repo.Append(ctx, e); err != nil {
			s.metrics.AuditFailuresTotal.Inc()
			s.fallbackLog(e, err)
			return fmt.Errorf("audit append: %w", err)
		}
		s.metrics.AuditEntriesTotal.Inc()
		return nil
	}

	select {
	case s.queue <- e:
	default:
		// Queue full: the entry must not be lost silently, and the request
		// must not block. Fall back to the operational log.
		s.metrics.AuditFailuresTotal.Inc()
		s.fallbackLog(e, fmt.Errorf("audit queue full"))
	}
	return nil
}

func (s *Sink) drain() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.queue:
			s.append(e)
		case <-s.stop:
			// Drain what is left before exiting.
			for {
				select {
				case e := <-s.queue:
					s.append(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) append(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.appendTimeout)
	defer cancel()

	if err := s.repo.Append(ctx, e); err != nil {
		s.metrics.AuditFailuresTotal.Inc()
		s.fallbackLog(e, err)
		return
	}
	s.metrics.AuditEntriesTotal.Inc()
}

// fallbackLog writes the entry to the operational log when the durable
// append fails, so the access trail survives in some form.
func (s *Sink) fallbackLog(e *Entry, cause error) {
	evt := s.logger.Error().Err(cause).
		Str("action", string(e.Action)).
		Str("resource_type", e.ResourceType).
		Int("http_status", e.HTTPStatus).
		Int64("duration_ms", e.DurationMs).
		Time("occurred_at", e.Timestamp)
	if e.UserID != nil {
		evt = evt.Str("user_id", *e.UserID)
	}
	if e.ResourceID != nil {
		evt = evt.Str("resource_id", *e.ResourceID)
	}
	evt.Msg("audit write failed; entry recorded to operational log only")
}
