// Package audit relays outbox rows to Kafka.
//
// The relay is the only background loop in the service. It never touches
// financial tables: a Kafka outage delays audit delivery but cannot affect a
// payment validation or an activation.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"esfe/pkg/platform/audit/store/postgres"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = 2 * time.Second
)

// Claimer is the outbox side of the relay.
type Claimer interface {
	ClaimBatch(ctx context.Context, limit int, publish func(ctx context.Context, entries []postgres.OutboxEntry) error) (int, error)
}

// Producer is the subset of *kgo.Client used by the relay.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	outbox   Claimer
	producer Producer
	topic    string
	logger   *slog.Logger
	batch    int
	interval time.Duration
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewRelay(outbox Claimer, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		batch:    defaultBatchSize,
		interval: defaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "audit relay flush failed", "error", err)
				break
			}
			if n < r.batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many rows it handled.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	return r.outbox.ClaimBatch(ctx, r.batch, func(ctx context.Context, entries []postgres.OutboxEntry) error {
		records := make([]*kgo.Record, 0, len(entries))
		for _, e := range entries {
			records = append(records, &kgo.Record{
				Topic: r.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
					{Key: "event_id", Value: []byte(e.ID.String())},
				},
			})
		}
		if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce audit batch: %w", err)
		}
		return nil
	})
}

// NewKafkaClient builds a producer for the audit topic.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the audit topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	topics, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	if topics.Has(topic) {
		return nil
	}
	resp, err := adm.CreateTopic(ctx, partitions, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create kafka topic: %w", err)
	}
	if resp.Err != nil {
		return fmt.Errorf("create kafka topic %s: %w", topic, resp.Err)
	}
	return nil
}
