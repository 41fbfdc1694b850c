package realtime

import (
	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/domain/notification"
)

// Event types pushed for persisted notifications. Most arrive as the
// generic notification event; a few notification types carry a more
// specific event so clients can route them to dedicated UI.
const (
	EventNotification    = "notification"
	EventNewMessage      = "newMessage"
	EventAbnormalReading = "abnormalReading"
)

// NotificationPusher adapts the Hub to the dispatcher's push port. Pushes
// happen strictly after the dispatcher persisted the notification; a push
// that reaches nobody is fine.
type NotificationPusher struct {
	hub    *Hub
	logger zerolog.Logger
}

func NewNotificationPusher(hub *Hub, logger zerolog.Logger) *NotificationPusher {
	return &NotificationPusher{hub: hub, logger: logger}
}

func eventTypeFor(n *notification.Notification) string {
	switch n.Type {
	case notification.TypeMessage:
		return EventNewMessage
	case notification.TypeEmergencyAlert:
		return EventEmergencyAlert
	case notification.TypeDeviceAlert:
		return EventAbnormalReading
	default:
		return EventNotification
	}
}

func (p *NotificationPusher) PushToUser(userID string, n *notification.Notification) {
	evt, err := NewEvent(eventTypeFor(n), n)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode notification event")
		return
	}
	p.hub.SendToUser(userID, evt)
}

func (p *NotificationPusher) PushToRole(role string, n *notification.Notification) {
	evt, err := NewEvent(eventTypeFor(n), n)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode notification event")
		return
	}
	p.hub.SendToRole(role, evt)
}

func (p *NotificationPusher) PushToAll(n *notification.Notification) {
	evt, err := NewEvent(eventTypeFor(n), n)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode notification event")
		return
	}
	p.hub.Broadcast(evt)
}
