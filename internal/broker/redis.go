package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gatherhq/gather/pkg/log"
)

// RedisBroker implements Broker using Redis: a capped stream per group for
// the append log and a pub/sub channel per group for notification.
type RedisBroker struct {
	client       *redis.Client
	streamMaxLen int64
}

// NewRedisBroker creates a new Redis-based broker.
func NewRedisBroker(cfg RedisConfig) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}

	return &RedisBroker{
		client:       client,
		streamMaxLen: maxLen,
	}, nil
}

func streamKey(groupID string) string {
	return fmt.Sprintf("chat:group:%s:log", groupID)
}

func channelKey(groupID string) string {
	return fmt.Sprintf("chat:group:%s", groupID)
}

// Append writes an entry to the group's stream, trimming approximately to
// the configured max length.
func (b *RedisBroker) Append(ctx context.Context, groupID string, payload []byte) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(groupID),
		MaxLen: b.streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append to group log: %w", err)
	}
	return nil
}

// Publish sends the payload on the group's notification channel.
func (b *RedisBroker) Publish(ctx context.Context, groupID string, payload []byte) error {
	if err := b.client.Publish(ctx, channelKey(groupID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to group channel: %w", err)
	}
	return nil
}

// Subscribe registers a handler on the group's notification channel. A single
// goroutine drains the subscription so per-group publish order is preserved.
func (b *RedisBroker) Subscribe(ctx context.Context, groupID string, h Handler) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelKey(groupID))

	// Wait for the subscription to be active before returning, so a message
	// published right after Subscribe cannot be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to group channel: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	go sub.run(groupID, h)

	return sub, nil
}

// Close closes the Redis client. Open subscriptions are closed individually
// by their owners.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

func (s *redisSubscription) run(groupID string, h Handler) {
	defer close(s.done)

	// go-redis re-establishes the underlying subscription on connection
	// errors; the channel only closes when the subscription is closed.
	for msg := range s.pubsub.Channel() {
		h([]byte(msg.Payload))
	}

	l := log.L()
	l.Debug().Str(log.FieldGroupID, groupID).Msg("broker subscription drained")
}

func (s *redisSubscription) Close() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}
