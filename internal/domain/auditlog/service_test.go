package auditlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/platform/metrics"
)

type mockRepo struct {
	mu      sync.Mutex
	entries []*Entry
	failErr error
}

func (m *mockRepo) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestSink(repo Repository, policy string, queueSize int) *Sink {
	m := metrics.NewWith(prometheus.NewRegistry())
	return NewSink(repo, zerolog.Nop(), m, policy, queueSize)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSink_SwallowAppendsAsync(t *testing.T) {
	repo := &mockRepo{}
	sink := newTestSink(repo, PolicySwallow, 8)
	sink.Start()
	defer sink.Close()

	if err := sink.Record(context.Background(), &Entry{Action: ActionDataAccess, ResourceType: "records"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	waitFor(t, func() bool { return repo.count() == 1 })
}

func TestSink_SwallowAbsorbsWriteFailure(t *testing.T) {
	repo := &mockRepo{failErr: errors.New("db down")}
	sink := newTestSink(repo, PolicySwallow, 8)
	sink.Start()
	defer sink.Close()

	// The caller never sees the failure.
	if err := sink.Record(context.Background(), &Entry{Action: ActionPHIAccess, ResourceType: "records"}); err != nil {
		t.Fatalf("Record should swallow failures, got %v", err)
	}
}

func TestSink_FailPolicyPropagates(t *testing.T) {
	repo := &mockRepo{failErr: errors.New("db down")}
	sink := newTestSink(repo, PolicyFail, 8)

	if err := sink.Record(context.Background(), &Entry{Action: ActionDataCreate, ResourceType: "records"}); err == nil {
		t.Fatal("expected error under fail policy")
	}

	repo.failErr = nil
	if err := sink.Record(context.Background(), &Entry{Action: ActionDataCreate, ResourceType: "records"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if repo.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", repo.count())
	}
}

func TestSink_FullQueueDoesNotBlock(t *testing.T) {
	repo := &mockRepo{}
	sink := newTestSink(repo, PolicySwallow, 1)
	// Worker not started: the queue fills and later Records must not block.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			sink.Record(context.Background(), &Entry{Action: ActionDataAccess, ResourceType: "records"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on full queue")
	}
}

func TestSink_CloseDrainsQueue(t *testing.T) {
	repo := &mockRepo{}
	sink := newTestSink(repo, PolicySwallow, 16)
	sink.Start()

	for i := 0; i < 5; i++ {
		sink.Record(context.Background(), &Entry{Action: ActionDataAccess, ResourceType: "records"})
	}
	sink.Close()

	if repo.count() != 5 {
		t.Fatalf("expected 5 entries after Close, got %d", repo.count())
	}
}

func TestSink_RecordScrubsDetails(t *testing.T) {
	repo := &mockRepo{}
	sink := newTestSink(repo, PolicyFail, 1)

	e := &Entry{
		Action:           ActionDataModify,
		ResourceType:     "records",
		SanitizedDetails: map[string]interface{}{"password": "x", "field": "y"},
	}
	if err := sink.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	stored := repo.entries[0]
	if _, ok := stored.SanitizedDetails["password"]; ok {
		t.Error("expected password scrubbed before append")
	}
	if stored.SanitizedDetails["field"] != "y" {
		t.Error("expected non-denied field to survive")
	}
}
