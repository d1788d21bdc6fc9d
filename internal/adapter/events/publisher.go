// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
)

// KafkaPublisher writes events as JSON keyed by group id, or by subject id for
// events outside a group, so one group's events stay ordered on a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// publishBatchTimeout bounds how long a synchronous write waits for a batch
// to fill. Events are published one at a time on the request path.
const publishBatchTimeout = 5 * time.Millisecond

// NewKafkaPublisher builds a synchronous writer for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: newWriter(brokers, topic),
		logger: logger,
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: publishBatchTimeout,
		WriteTimeout: 10 * time.Second,
	}
}

// Publish never fails the calling operation; delivery errors are logged and
// returned for callers that want them.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	if p == nil || p.writer == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   partitionKey(event),
		Value: value,
		Time:  event.OccurredAt,
	}); err != nil {
		if p.logger != nil {
			p.logger.Warn("publish event failed", zap.String("type", string(event.Type)), zap.Error(err))
		}
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func partitionKey(event domain.Event) []byte {
	id := event.GroupID
	if id == 0 {
		id = event.SubjectID
	}
	return []byte(strconv.FormatInt(id, 10))
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) error { return nil }

// Recorder keeps events in memory; tests use it to assert what was published.
type Recorder struct {
	events chan domain.Event
}

func NewRecorder(capacity int) *Recorder {
	return &Recorder{events: make(chan domain.Event, capacity)}
}

func (r *Recorder) Publish(_ context.Context, event domain.Event) error {
	select {
	case r.events <- event:
	default:
	}
	return nil
}

// Drain returns the events recorded so far.
func (r *Recorder) Drain() []domain.Event {
	var out []domain.Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
