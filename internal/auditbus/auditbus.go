// Package auditbus mirrors audit_log rows (§6's persistent schema) onto a
// Kafka topic for downstream compliance consumers, alongside the
// authoritative SQLite copy the store already keeps. Entirely optional:
// a Bus built with no brokers configured is a no-op, since the audit log
// in the store remains the system of record regardless.
package auditbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// Entry mirrors one audit_log row.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Agent        string    `json:"agent"`
	ActionString string    `json:"action_string"`
	Decision     string    `json:"decision"`
	UserID       string    `json:"user_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

// Config configures the Kafka mirror.
type Config struct {
	Brokers []string `json:"brokers,omitempty" envconfig:"BROKERS"`
	Topic   string   `json:"topic,omitempty" envconfig:"TOPIC"`
}

// Bus publishes Entry values to Kafka. A Bus with no brokers configured
// discards every Mirror call.
type Bus struct {
	writer *kafka.Writer
}

// New builds a Bus from cfg. Brokers/Topic left empty yields a disabled
// (no-op) Bus rather than an error, so the core runs unchanged when no
// audit mirror is configured.
func New(cfg Config) *Bus {
	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return &Bus{}
	}
	return &Bus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Enabled reports whether this Bus was configured with a broker list.
func (b *Bus) Enabled() bool {
	return b.writer != nil
}

// Mirror publishes one audit_log entry. Best-effort: a publish failure is
// logged and swallowed, since the store's own audit_log row is already
// durable by the time Mirror is called (§7: audit rows are never lost on
// a downstream mirror failure).
func (b *Bus) Mirror(ctx context.Context, e Entry) {
	if b.writer == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		slog.Warn("auditbus: failed to marshal entry", "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(e.Agent),
		Value: payload,
		Time:  e.Timestamp,
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("auditbus: publish failed", "error", err)
	}
}

// Close flushes and closes the underlying writer, if any.
func (b *Bus) Close() error {
	if b.writer == nil {
		return nil
	}
	return b.writer.Close()
}
