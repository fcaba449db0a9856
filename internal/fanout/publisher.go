// Package fanout publishes newly ingested events to a Kafka topic for
// downstream consumers. The store remains the source of truth: delivery is
// best-effort and a publish failure never fails a poll.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ghpulse/ghpulse/internal/config"
	"github.com/ghpulse/ghpulse/internal/storage"
)

const (
	writeTimeout = 10 * time.Second
	batchTimeout = 100 * time.Millisecond
)

// ErrNoBrokers is returned when a publisher is constructed without brokers.
var ErrNoBrokers = errors.New("fanout requires at least one broker")

// message is the wire shape of one published event.
type message struct {
	MessageID  string          `json:"message_id"`  //nolint: tagliatelle
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`  //nolint: tagliatelle
	RepoName   string          `json:"repo_name"`   //nolint: tagliatelle
	ActorLogin string          `json:"actor_login"` //nolint: tagliatelle
	CreatedAt  time.Time       `json:"created_at"`  //nolint: tagliatelle
	Payload    json.RawMessage `json:"payload"`
}

// Publisher writes event batches to one Kafka topic, partitioned by
// repository name so per-repo ordering survives fanout.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}

	return &Publisher{
		writer: writer,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Publish writes one batch of stored events to the topic.
func (p *Publisher) Publish(ctx context.Context, events []storage.Event) error {
	if len(events) == 0 {
		return nil
	}

	messages, err := buildMessages(events)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("fanout write failed: %w", err)
	}

	p.logger.Debug("Published event batch",
		slog.Int("events", len(events)),
		slog.String("topic", p.writer.Topic),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// buildMessages converts stored events to Kafka messages keyed by repository
// name. Each message carries a fresh message id for consumer-side tracing.
func buildMessages(events []storage.Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))

	for i := range events {
		event := &events[i]

		value, err := json.Marshal(message{
			MessageID:  uuid.NewString(),
			ID:         event.ID,
			EventType:  event.EventType,
			RepoName:   event.RepoName,
			ActorLogin: event.ActorLogin,
			CreatedAt:  event.CreatedAt.UTC(),
			Payload:    event.Payload,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(event.RepoName),
			Value: value,
		})
	}

	return messages, nil
}
