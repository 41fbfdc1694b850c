package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/domain/notification"
	"github.com/medisync/gateway/internal/platform/compliance"
	"github.com/medisync/gateway/internal/platform/directory"
	"github.com/medisync/gateway/internal/platform/metrics"
)

type stubNotificationRepo struct {
	mu      sync.Mutex
	created []*notification.Notification
	failErr error
}

func (r *stubNotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	r.created = append(r.created, n)
	return nil
}

func (r *stubNotificationRepo) GetByID(context.Context, uuid.UUID) (*notification.Notification, error) {
	return nil, notification.ErrNotFound
}
func (r *stubNotificationRepo) ListByRecipient(context.Context, string, int, int) ([]*notification.Notification, int, error) {
	return nil, 0, nil
}
func (r *stubNotificationRepo) ListUnread(context.Context, string) ([]*notification.Notification, error) {
	return nil, nil
}
func (r *stubNotificationRepo) CountUnread(context.Context, string) (int, error)  { return 0, nil }
func (r *stubNotificationRepo) MarkRead(context.Context, uuid.UUID, string) error { return nil }
func (r *stubNotificationRepo) MarkAllRead(context.Context, string) (int, error)  { return 0, nil }
func (r *stubNotificationRepo) Delete(context.Context, uuid.UUID, string) error   { return nil }
func (r *stubNotificationRepo) DeleteExpired(context.Context) (int, error)        { return 0, nil }

func (r *stubNotificationRepo) countFor(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, c := range r.created {
		if c.RecipientUserID == userID {
			n++
		}
	}
	return n
}

func (r *stubNotificationRepo) firstFor(userID string) *notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.created {
		if c.RecipientUserID == userID {
			return c
		}
	}
	return nil
}

// admitAllGuard admits every event and records the outcome audits it is
// handed, so tests can assert what the router reports.
type admitAllGuard struct {
	mu       sync.Mutex
	events   []string
	statuses []int
}

func (g *admitAllGuard) GuardEvent(context.Context, string, string, string) (*compliance.Rejection, error) {
	return nil, nil
}

func (g *admitAllGuard) AuditEvent(_ context.Context, _ string, eventType string, status int, _ time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, eventType)
	g.statuses = append(g.statuses, status)
}

func (g *admitAllGuard) lastStatus() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.statuses) == 0 {
		return 0
	}
	return g.statuses[len(g.statuses)-1]
}

type rejectGuard struct {
	rej *compliance.Rejection
}

func (g rejectGuard) GuardEvent(context.Context, string, string, string) (*compliance.Rejection, error) {
	return g.rej, nil
}

func (rejectGuard) AuditEvent(context.Context, string, string, int, time.Time) {}

type routerFixture struct {
	hub    *Hub
	router *Router
	repo   *stubNotificationRepo
	dir    *directory.Memory
}

func newRouterFixture(guard Guard) *routerFixture {
	m := metrics.NewWith(prometheus.NewRegistry())
	hub := NewHub(nil, zerolog.Nop(), m)
	repo := &stubNotificationRepo{}
	dir := directory.NewMemory()
	pusher := NewNotificationPusher(hub, zerolog.Nop())
	dispatcher := notification.NewDispatcher(repo, dir, pusher, zerolog.Nop(), m)
	router := NewRouter(hub, guard, dispatcher, zerolog.Nop())
	return &routerFixture{hub: hub, router: router, repo: repo, dir: dir}
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestRouter_SendMessagePersistsThenPushes(t *testing.T) {
	f := newRouterFixture(&admitAllGuard{})
	sender := testClient("u1", "patient")
	recipient := testClient("u2", "doctor")
	f.hub.Register(sender)
	f.hub.Register(recipient)

	f.router.Handle(sender, InboundEvent{
		Event: EventSendMessage,
		Data: raw(t, map[string]interface{}{
			"recipientId": "u2",
			"content":     "hello",
			"attachments": []string{"scan.pdf"},
		}),
	})

	if f.repo.countFor("u2") != 1 {
		t.Fatal("message must be persisted for the recipient")
	}
	var md notification.MessageData
	if err := json.Unmarshal(f.repo.firstFor("u2").Data, &md); err != nil {
		t.Fatalf("decode message data: %v", err)
	}
	if md.SenderID != "u1" || md.Content != "hello" {
		t.Errorf("unexpected message data %+v", md)
	}
	if len(md.Attachments) != 1 || md.Attachments[0] != "scan.pdf" {
		t.Errorf("attachments must survive dispatch, got %v", md.Attachments)
	}
	got := receive(t, recipient)
	if got.Type != EventNewMessage {
		t.Errorf("expected newMessage event, got %s", got.Type)
	}
	assertEmpty(t, sender)
}

func TestRouter_SendMessageFailsClosedWhenStoreDown(t *testing.T) {
	f := newRouterFixture(&admitAllGuard{})
	f.repo.failErr = context.DeadlineExceeded
	sender := testClient("u1", "patient")
	recipient := testClient("u2", "doctor")
	f.hub.Register(sender)
	f.hub.Register(recipient)

	f.router.Handle(sender, InboundEvent{
		Event: EventSendMessage,
		Data:  raw(t, map[string]string{"recipientId": "u2", "content": "hello"}),
	})

	// Recipient gets nothing; sender gets an error event.
	assertEmpty(t, recipient)
	if got := receive(t, sender); got.Type != "error" {
		t.Errorf("expected error event for sender, got %s", got.Type)
	}
}

func TestRouter_RejectionKeepsTransportOpen(t *testing.T) {
	f := newRouterFixture(rejectGuard{rej: &compliance.Rejection{
		Code:   "session_expired",
		Status: compliance.StatusLoginTimeout,
	}})
	client := testClient("u1", "patient")
	f.hub.Register(client)

	f.router.Handle(client, InboundEvent{
		Event: EventSendMessage,
		Data:  raw(t, map[string]string{"recipientId": "u2", "content": "hi"}),
	})

	got := receive(t, client)
	if got.Type != "error" {
		t.Fatalf("expected error event, got %s", got.Type)
	}
	var body map[string]interface{}
	json.Unmarshal(got.Data, &body)
	if body["error"] != "session_expired" {
		t.Errorf("unexpected rejection body %v", body)
	}

	// Still registered: the rejection must not tear down the connection.
	if f.hub.ConnectionCount() != 1 {
		t.Error("rejected event must not close the transport")
	}
	if f.repo.countFor("u2") != 0 {
		t.Error("rejected event must not dispatch")
	}
}

func TestRouter_JoinRoomOnlyTelemedicine(t *testing.T) {
	f := newRouterFixture(&admitAllGuard{})
	client := testClient("u1", "doctor")
	f.hub.Register(client)

	f.router.Handle(client, InboundEvent{
		Event: EventJoinRoom,
		Data:  raw(t, map[string]string{"room": "telemedicine:visit-9"}),
	})
	if got := receive(t, client); got.Type != "joinedRoom" {
		t.Errorf("expected joinedRoom, got %s", got.Type)
	}
	if f.hub.RoomCount("telemedicine:visit-9") != 1 {
		t.Error("client should be in the telemedicine room")
	}

	// Role and user rooms are not client-joinable.
	f.router.Handle(client, InboundEvent{
		Event: EventJoinRoom,
		Data:  raw(t, map[string]string{"room": "role:admin"}),
	})
	if got := receive(t, client); got.Type != "error" {
		t.Errorf("expected error for protected room, got %s", got.Type)
	}
	if f.hub.RoomCount("role:admin") != 0 {
		t.Error("client must not enter the admin role room")
	}
}

func TestRouter_TelemedicineSignalRelaysOpaque(t *testing.T) {
	f := newRouterFixture(&admitAllGuard{})
	doctor := testClient("doc-1", "doctor")
	patient := testClient("pat-1", "patient")
	f.hub.Register(doctor)
	f.hub.Register(patient)
	f.hub.Join(doctor, "telemedicine:v1")
	f.hub.Join(patient, "telemedicine:v1")

	signal := json.RawMessage(`{"sdp":"offer","candidate":"xyz"}`)
	f.router.Handle(doctor, InboundEvent{
		Event: EventTelemedicineSignal,
		Data:  raw(t, map[string]interface{}{"room": "telemedicine:v1", "signal": signal}),
	})

	got := receive(t, patient)
	if got.Type != EventTelemedicineSignal {
		t.Fatalf("expected relayed signal, got %s", got.Type)
	}
	var body map[string]json.RawMessage
	json.Unmarshal(got.Data, &body)
	if string(body["signal"]) != string(signal) {
		t.Errorf("signal payload must be relayed untouched, got %s", body["signal"])
	}
	assertEmpty(t, doctor)

	if f.repo.countFor("pat-1") != 0 {
		t.Error("signaling must not be persisted")
	}
}

func TestRouter_EmergencyAlertFansOutToClinicalRoles(t *testing.T) {
	f := newRouterFixture(&admitAllGuard{})
	f.dir.Put(directory.User{ID: "doc-1", Role: "doctor", Active: true})
	f.dir.Put(directory.User{ID: "nurse-1", Role: "nurse", Active: true})
	f.dir.Put(directory.User{ID: "admin-1", Role: "admin", Active: true})
	f.dir.Put(directory.User{ID: "pat-2", Role: "patient", Active: true})

	reporter := testClient("pat-1", "patient")
	doctor := testClient("doc-1", "doctor")
	f.hub.Register(reporter)
	f.hub.Register(doctor)

	f.router.Handle(reporter, InboundEvent{
		Event: EventEmergencyAlert,
		Data: raw(t, map[string]string{
			"patientId": "pat-1",
			"message":   "Chest pain, unresponsive",
			"location":  "Ward 3",
			"severity":  "critical",
		}),
	})

	for _, want := range []string{"doc-1", "nurse-1", "admin-1"} {
		if f.repo.countFor(want) != 1 {
			t.Errorf("expected durable alert for %s", want)
		}
	}
	if got := f.repo.firstFor("doc-1"); got.Message != "Chest pain, unresponsive" {
		t.Errorf("reporter's message must be carried through, got %q", got.Message)
	}
	if f.repo.countFor("pat-2") != 0 {
		t.Error("patients must not receive emergency alerts")
	}

	if got := receive(t, doctor); got.Type != EventEmergencyAlert {
		t.Errorf("connected doctor should get a live emergencyAlert, got %s", got.Type)
	}
}

func TestRouter_DeviceDataAlertsOnlyWhenAbnormal(t *testing.T) {
	f := newRouterFixture(&admitAllGuard{})
	f.dir.Put(directory.User{ID: "doc-1", Role: "doctor", Active: true})
	f.dir.Put(directory.User{ID: "nurse-1", Role: "nurse", Active: true})

	patient := testClient("pat-1", "patient")
	f.hub.Register(patient)

	// Normal reading: nothing happens.
	f.router.Handle(patient, InboundEvent{
		Event: EventDeviceData,
		Data:  raw(t, map[string]interface{}{"deviceId": "dev-1", "type": "heart_rate", "value": 72}),
	})
	if len(f.repo.created) != 0 {
		t.Fatal("normal reading must not produce alerts")
	}

	// Abnormal reading: doctor and nurse get durable alerts.
	f.router.Handle(patient, InboundEvent{
		Event: EventDeviceData,
		Data:  raw(t, map[string]interface{}{"deviceId": "dev-1", "type": "heart_rate", "value": 178, "unit": "bpm"}),
	})
	if f.repo.countFor("doc-1") != 1 || f.repo.countFor("nurse-1") != 1 {
		t.Error("abnormal reading should alert doctor and nurse")
	}
}

func TestRouter_AuditsOutcomeAfterHandling(t *testing.T) {
	guard := &admitAllGuard{}
	f := newRouterFixture(guard)
	sender := testClient("u1", "patient")
	f.hub.Register(sender)

	f.router.Handle(sender, InboundEvent{
		Event: EventSendMessage,
		Data:  raw(t, map[string]string{"recipientId": "u2", "content": "hi"}),
	})
	if guard.lastStatus() != 200 {
		t.Fatalf("successful event must be audited as 200, got %d", guard.lastStatus())
	}

	// A failed dispatch is audited with the failure, not a blanket success.
	f.repo.failErr = context.DeadlineExceeded
	f.router.Handle(sender, InboundEvent{
		Event: EventSendMessage,
		Data:  raw(t, map[string]string{"recipientId": "u2", "content": "hi"}),
	})
	if guard.lastStatus() != 500 {
		t.Fatalf("failed event must be audited as 500, got %d", guard.lastStatus())
	}

	guard.mu.Lock()
	defer guard.mu.Unlock()
	if len(guard.events) != 2 || guard.events[0] != EventSendMessage {
		t.Errorf("expected one outcome audit per event, got %v", guard.events)
	}
}

func TestPusher_GenericNotificationEventName(t *testing.T) {
	m := metrics.NewWith(prometheus.NewRegistry())
	hub := NewHub(nil, zerolog.Nop(), m)
	client := testClient("u1", "patient")
	hub.Register(client)

	p := NewNotificationPusher(hub, zerolog.Nop())
	p.PushToUser("u1", &notification.Notification{Title: "Visit tomorrow", Type: notification.TypeAppointment})

	if got := receive(t, client); got.Type != "notification" {
		t.Errorf("generic push should arrive as the notification event, got %s", got.Type)
	}
}

func TestRouter_UnknownEventReturnsError(t *testing.T) {
	f := newRouterFixture(&admitAllGuard{})
	client := testClient("u1", "doctor")
	f.hub.Register(client)

	f.router.Handle(client, InboundEvent{Event: "timeTravel"})

	if got := receive(t, client); got.Type != "error" {
		t.Errorf("expected error event, got %s", got.Type)
	}
}

func TestAbnormalReading(t *testing.T) {
	tests := []struct {
		metric string
		value  float64
		want   bool
	}{
		{"heart_rate", 72, false},
		{"heart_rate", 178, true},
		{"heart_rate", 35, true},
		{"spo2", 97, false},
		{"spo2", 85, true},
		{"temperature", 40.2, true},
		{"temperature", 36.8, false},
		{"glucose", 300, true},
		{"unknown_metric", 99999, false},
	}
	for _, tt := range tests {
		if got := AbnormalReading(tt.metric, tt.value); got != tt.want {
			t.Errorf("AbnormalReading(%s, %v) = %v, want %v", tt.metric, tt.value, got, tt.want)
		}
	}
}
