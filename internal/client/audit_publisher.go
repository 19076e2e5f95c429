package client

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/service"
)

// AuditPublisher writes governed-mutation audit records to a Kafka topic.
// The audit trail lives outside the engine's transactional boundary, so
// publishing is best-effort: failures are logged and never propagated.
// Records are keyed by tenant, keeping each tenant's trail ordered within
// its partition.
type AuditPublisher struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewAuditPublisher creates a publisher for the given brokers and topic.
// Returns nil when no brokers are configured; the façade treats a nil sink
// as "audit disabled".
func NewAuditPublisher(brokers []string, topic string, log *logger.Logger) *AuditPublisher {
	if len(brokers) == 0 {
		return nil
	}
	return &AuditPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		log: log,
	}
}

// RecordMutation publishes one audit record.
func (p *AuditPublisher) RecordMutation(ctx context.Context, record *service.AuditRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", record.EventType).Msg("audit: failed to marshal record")
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.TenantID),
		Value: data,
	})
	if err != nil {
		p.log.Warn().Err(err).
			Str("tenant_id", record.TenantID).
			Str("event_type", record.EventType).
			Msg("audit: failed to publish record (non-fatal)")
		return
	}

	p.log.Debug().
		Str("tenant_id", record.TenantID).
		Str("event_type", record.EventType).
		Msg("audit: record published")
}

// Close flushes and closes the underlying writer.
func (p *AuditPublisher) Close() error {
	return p.writer.Close()
}

var _ service.AuditSink = (*AuditPublisher)(nil)
