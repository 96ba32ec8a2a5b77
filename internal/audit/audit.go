// Package audit publishes one Kafka record per dispatched analytics query.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/judyrop/storefront-analytics/internal/analytics"
)

// Event is the JSON value of an audit record. The record key is the kind.
type Event struct {
	Query      string   `json:"query"`
	Kind       string   `json:"kind"`
	Params     []string `json:"params,omitempty"`
	Outcome    string   `json:"outcome"`
	DurationMs float64  `json:"duration_ms"`
	At         string   `json:"at"`
}

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
	log    *zap.Logger
}

// NewPublisher writes asynchronously; delivery failures surface through the
// writer's completion callback and are logged, never returned to the caller.
func NewPublisher(brokers []string, topic string, log *zap.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn("Audit delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return &Publisher{writer: w, log: log}
}

func newPublisherWith(w messageWriter, log *zap.Logger) *Publisher {
	return &Publisher{writer: w, log: log}
}

// ObserveQuery implements analytics.Observer.
func (p *Publisher) ObserveQuery(ctx context.Context, ev analytics.QueryEvent) {
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn("Audit publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

func (p *Publisher) Publish(ctx context.Context, ev analytics.QueryEvent) error {
	b, err := json.Marshal(Event{
		Query:      ev.Text,
		Kind:       string(ev.Kind),
		Params:     ev.Params,
		Outcome:    ev.Outcome,
		DurationMs: float64(ev.Duration) / float64(time.Millisecond),
		At:         ev.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Kind), Value: b})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
