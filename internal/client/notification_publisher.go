package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/service"
)

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.gl.<event_type>
// Event types: approval_required, approval_advanced, request_approved,
//              request_rejected
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt
// governance operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType  string                 `json:"event_type"`
	TenantID   string                 `json:"tenant_id"`
	ActorID    string                 `json:"actor_id"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS at url. Returns nil when url is
// empty or the connection fails; the façade treats a nil sink as
// "notifications disabled".
func NewNotificationPublisher(url string, log *logger.Logger) *NotificationPublisher {
	if url == "" {
		return nil
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("notification: failed to connect to NATS, publishing disabled")
		return nil
	}
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishEvent publishes one workflow event.
// Subject: notifications.gl.<eventType>
func (p *NotificationPublisher) PublishEvent(ctx context.Context, eventType, tenantID, actorID, resourceID string, payload map[string]interface{}) {
	event := &NotificationEvent{
		EventType:  eventType,
		TenantID:   tenantID,
		ActorID:    actorID,
		ResourceID: resourceID,
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.gl.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", resourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", resourceID).
		Msg("notification: event published")
}

// Close closes the NATS connection.
func (p *NotificationPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

var _ service.EventSink = (*NotificationPublisher)(nil)
