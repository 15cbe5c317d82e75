package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/gatherhq/gather/pkg/log"
)

// KafkaBroker implements Broker using Apache Kafka. All groups share one
// fixed topic with the group id as message key, so per-group order is
// preserved within a partition. In Kafka the retained record stream is both
// the log and the notification channel, so Append is satisfied by Publish
// and is a no-op here.
type KafkaBroker struct {
	producer *kafka.Producer
	config   KafkaConfig
	doneCh   chan struct{}
}

// NewKafkaBroker creates a new Kafka-based broker.
func NewKafkaBroker(cfg KafkaConfig) (*KafkaBroker, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBroker{
		producer: p,
		config:   cfg,
		doneCh:   make(chan struct{}),
	}

	go b.deliveryReportHandler()

	if err := b.ensureTopic(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", cfg.Topic).Msg("failed to ensure kafka topic (may already exist)")
	}

	return b, nil
}

// ensureTopic creates the shared topic if it doesn't exist.
func (b *KafkaBroker) ensureTopic() error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": b.config.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := b.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             b.config.Topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", r.Topic, r.Error)
		}
	}

	return nil
}

// deliveryReportHandler processes delivery reports from the producer.
func (b *KafkaBroker) deliveryReportHandler() {
	l := log.L()
	for e := range b.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l.Error().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
			}
		}
	}
	close(b.doneCh)
}

// Append is a no-op: the record produced by Publish is the retained log.
func (b *KafkaBroker) Append(ctx context.Context, groupID string, payload []byte) error {
	return nil
}

// Publish produces the payload keyed by group id on the shared topic.
func (b *KafkaBroker) Publish(ctx context.Context, groupID string, payload []byte) error {
	return b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &b.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(groupID),
		Value: payload,
	}, nil)
}

// Subscribe spins up a consumer with a fresh consumer group so the handler
// sees every record for the group from subscribe time onward.
func (b *KafkaBroker) Subscribe(ctx context.Context, groupID string, h Handler) (Subscription, error) {
	consumerGroup := fmt.Sprintf("%s-%s-%s", b.config.GroupID, groupID, uuid.New().String()[:8])

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  b.config.Brokers,
		"group.id":           consumerGroup,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := c.Subscribe(b.config.Topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", b.config.Topic, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &kafkaSubscription{
		consumer: c,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go sub.run(runCtx, groupID, h)

	return sub, nil
}

// Close flushes and closes the producer.
func (b *KafkaBroker) Close() error {
	b.producer.Flush(5000)
	b.producer.Close()
	<-b.doneCh
	return nil
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

func (s *kafkaSubscription) run(ctx context.Context, groupID string, h Handler) {
	defer close(s.done)
	l := log.L()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := s.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			// The topic is shared across groups; filter by key.
			if string(e.Key) != groupID {
				continue
			}
			h(e.Value)
		case kafka.Error:
			l.Error().Str(log.FieldGroupID, groupID).Msgf("kafka consumer error: %v", e)
			if e.IsFatal() {
				return
			}
		default:
			// Ignore other events (rebalance, offsets committed, etc.)
		}
	}
}

func (s *kafkaSubscription) Close() error {
	s.cancel()
	<-s.done
	return s.consumer.Close()
}
