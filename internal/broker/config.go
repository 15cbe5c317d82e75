package broker

import "time"

// Config holds the configuration for the broker bridge.
type Config struct {
	Driver string      `mapstructure:"driver"` // "redis", "kafka"
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
}

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	Topic      string `mapstructure:"topic"`
	GroupID    string `mapstructure:"group_id"`
	Partitions int    `mapstructure:"partitions"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver: "redis",
		Redis: RedisConfig{
			Address:      "localhost:6379",
			Password:     "",
			DB:           0,
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			StreamMaxLen: 10000,
		},
		Kafka: KafkaConfig{
			Brokers:    "localhost:9092",
			Topic:      "group-messages",
			GroupID:    "gather",
			Partitions: 8,
		},
	}
}

// New creates a new Broker instance based on the configuration.
func New(cfg Config) (Broker, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaBroker(cfg.Kafka)
	case "redis":
		return NewRedisBroker(cfg.Redis)
	default:
		return NewRedisBroker(cfg.Redis)
	}
}
