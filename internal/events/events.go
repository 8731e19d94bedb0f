package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-receptionist/pkg/logger"
)

// Event types published by the pipelines.
const (
	TypeCallSummarized     = "call.summarized"
	TypeLeadUpserted       = "lead.upserted"
	TypeKnowledgeFileReady = "knowledge.file.ready"
	TypeKnowledgeFileFail  = "knowledge.file.failed"
)

// Event is a JSON lifecycle notification. Key is the call id or file id and
// keeps per-entity ordering on partitioned transports.
type Event struct {
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events. Delivery is best-effort: callers never fail
// their own work because of a publish error.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type Config struct {
	Driver        string
	KafkaBrokers  []string
	KafkaTopic    string
	NATSURL       string
	SubjectPrefix string
}

// New builds the publisher selected by cfg.Driver.
func New(cfg Config, log *slog.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "nats":
		return NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, log)
	default:
		return nil, fmt.Errorf("events: unknown driver %q", cfg.Driver)
	}
}

// Emit publishes e and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.From(ctx).Warn("event publish failed", "type", e.Type, "key", e.Key, "err", err)
	}
}
