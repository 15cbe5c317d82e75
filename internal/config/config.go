package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/gatherhq/gather/internal/broker"
	"github.com/gatherhq/gather/internal/fanout"
	"github.com/gatherhq/gather/internal/reaper"
	pkgconfig "github.com/gatherhq/gather/pkg/config"
	"github.com/gatherhq/gather/pkg/log"
)

type Config struct {
	Server       ServerConfig
	WebSocket    WebSocketConfig
	Database     DatabaseConfig
	Broker       broker.Config
	Fanout       fanout.Config
	Reaper       reaper.Config
	RoomProvider RoomProviderConfig `mapstructure:"room_provider"`
	JWT          JWTConfig
	Log          log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"db_name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RoomProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessDuration time.Duration `mapstructure:"access_duration"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "gather.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("broker.driver", "redis")
	v.SetDefault("broker.redis.address", "localhost:6379")
	v.SetDefault("broker.redis.password", "")
	v.SetDefault("broker.redis.db", 0)
	v.SetDefault("broker.redis.pool_size", 10)
	v.SetDefault("broker.redis.read_timeout", "3s")
	v.SetDefault("broker.redis.write_timeout", "3s")
	v.SetDefault("broker.redis.stream_max_len", 10000)
	v.SetDefault("broker.kafka.brokers", "localhost:9092")
	v.SetDefault("broker.kafka.topic", "group-messages")
	v.SetDefault("broker.kafka.group_id", "gather")
	v.SetDefault("broker.kafka.partitions", 8)
	v.SetDefault("fanout.flush_interval", "2s")
	v.SetDefault("fanout.max_batch_size", 50)
	v.SetDefault("fanout.drain_timeout", "10s")
	v.SetDefault("reaper.sweep_interval", "1m")
	v.SetDefault("reaper.inactivity_threshold", "10m")
	v.SetDefault("room_provider.base_url", "")
	v.SetDefault("room_provider.api_key", "")
	v.SetDefault("room_provider.request_timeout", "5s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "gather")
	v.SetDefault("jwt.access_duration", "24h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "gather")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.db_name", "DB_NAME")
	v.BindEnv("broker.driver", "BROKER_DRIVER")
	v.BindEnv("broker.redis.address", "REDIS_ADDRESS")
	v.BindEnv("broker.redis.password", "REDIS_PASSWORD")
	v.BindEnv("broker.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("broker.kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("room_provider.base_url", "ROOM_PROVIDER_BASE_URL")
	v.BindEnv("room_provider.api_key", "ROOM_PROVIDER_API_KEY")
	v.BindEnv("jwt.secret", "JWT_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Broker.Redis.ReadTimeout = parseDuration(v, "broker.redis.read_timeout", 3*time.Second)
	cfg.Broker.Redis.WriteTimeout = parseDuration(v, "broker.redis.write_timeout", 3*time.Second)
	cfg.Fanout.FlushInterval = parseDuration(v, "fanout.flush_interval", 2*time.Second)
	cfg.Fanout.DrainTimeout = parseDuration(v, "fanout.drain_timeout", 10*time.Second)
	cfg.Reaper.SweepInterval = parseDuration(v, "reaper.sweep_interval", time.Minute)
	cfg.Reaper.InactivityThreshold = parseDuration(v, "reaper.inactivity_threshold", 10*time.Minute)
	cfg.RoomProvider.RequestTimeout = parseDuration(v, "room_provider.request_timeout", 5*time.Second)
	cfg.JWT.AccessDuration = parseDuration(v, "jwt.access_duration", 24*time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
