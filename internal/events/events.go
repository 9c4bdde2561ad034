// Package events publishes inspection lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const TypeSubmitted = "inspection.submitted"

// Submitted is the event emitted after the backend accepts an inspection.
type Submitted struct {
	Type         string    `json:"type"`
	FlowID       string    `json:"flowId"`
	RoomID       string    `json:"roomId"`
	Variant      string    `json:"variant"`
	PDFURL       string    `json:"pdfUrl"`
	AreaCount    int       `json:"areaCount"`
	ProblemCount int       `json:"problemCount"`
	FileCount    int       `json:"fileCount"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

type Publisher interface {
	PublishSubmitted(ctx context.Context, ev Submitted) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w   messageWriter
	log *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}, log)
}

func newKafkaPublisher(w messageWriter, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, log: log.With(slog.String("component", "kafka-publisher"))}
}

// PublishSubmitted writes ev keyed by flow ID so events of one flow stay ordered.
func (p *KafkaPublisher) PublishSubmitted(ctx context.Context, ev Submitted) error {
	ev.Type = TypeSubmitted
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.FlowID),
		Value: body,
		Time:  ev.SubmittedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeSubmitted)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.log.Debug("event published", "type", TypeSubmitted, "flow_id", ev.FlowID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Noop discards every event.
type Noop struct{}

func (Noop) PublishSubmitted(context.Context, Submitted) error { return nil }

func (Noop) Close() error { return nil }
