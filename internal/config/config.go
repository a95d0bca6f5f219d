package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

type WebsocketConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer" validate:"gte=1"`
	ReadLimit    int64         `mapstructure:"read_limit" validate:"gte=512"`
	PingInterval time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	// PongWait must exceed PingInterval or idle clients time out between pings.
	PongWait  time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingInterval"`
	WriteWait time.Duration `mapstructure:"write_wait" validate:"gt=0"`
}

type LoggingConfig struct {
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format    string `mapstructure:"format" validate:"oneof=json text"`
}

type KafkaConfig struct {
	// Brokers empty disables Kafka ingest.
	Brokers      []string `mapstructure:"brokers" validate:"dive,required"`
	GroupID      string   `mapstructure:"group_id" validate:"required"`
	Topics       []string `mapstructure:"topics" validate:"dive,required"`
	AllowedTypes []string `mapstructure:"allowed_types" validate:"dive,oneof=price_update price_alert"`
}

type NATSConfig struct {
	// URL empty disables NATS ingest.
	URL           string        `mapstructure:"url" validate:"omitempty,uri"`
	Subject       string        `mapstructure:"subject" validate:"required_with=URL"`
	MaxReconnects int           `mapstructure:"max_reconnects" validate:"gte=-1"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" validate:"gte=0"`
}

type SecurityConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTPublicKey string `mapstructure:"jwt_public_key"`
}

type BackoffConfig struct {
	Policy string        `mapstructure:"policy" validate:"oneof=fixed exponential"`
	Base   time.Duration `mapstructure:"base" validate:"gt=0"`
	Max    time.Duration `mapstructure:"max" validate:"gte=0"`
	Jitter bool          `mapstructure:"jitter"`
}

type StoreConfig struct {
	Driver      string        `mapstructure:"driver" validate:"oneof=memory file sqlite"`
	Path        string        `mapstructure:"path" validate:"required_unless=Driver memory"`
	MaxSize     int           `mapstructure:"max_size" validate:"gte=1"`
	MergeWindow time.Duration `mapstructure:"merge_window" validate:"gt=0"`
}

type ReceiverConfig struct {
	URL      string   `mapstructure:"url" validate:"required,uri"`
	Token    string   `mapstructure:"token"`
	Channels []string `mapstructure:"channels" validate:"min=1,dive,required"`
	// ReadTimeout should exceed the broker's websocket.ping_interval.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	Backoff     BackoffConfig `mapstructure:"backoff"`
	Store       StoreConfig   `mapstructure:"store"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Security  SecurityConfig  `mapstructure:"security"`
	Receiver  ReceiverConfig  `mapstructure:"receiver"`
}

func installDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("websocket.send_buffer", 16)
	v.SetDefault("websocket.read_limit", 1<<16)
	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.write_wait", 5*time.Second)

	v.SetDefault("logging.directory", "./logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "store-ws")
	v.SetDefault("kafka.topics", []string{"pricing.events"})
	v.SetDefault("kafka.allowed_types", []string{})

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "pricing.events")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_public_key", "")

	v.SetDefault("receiver.url", "ws://localhost:8080/ws")
	v.SetDefault("receiver.token", "")
	v.SetDefault("receiver.channels", []string{"prices"})
	v.SetDefault("receiver.read_timeout", 60*time.Second)
	v.SetDefault("receiver.backoff.policy", "exponential")
	v.SetDefault("receiver.backoff.base", 500*time.Millisecond)
	v.SetDefault("receiver.backoff.max", 30*time.Second)
	v.SetDefault("receiver.backoff.jitter", true)
	v.SetDefault("receiver.store.driver", "memory")
	v.SetDefault("receiver.store.path", "")
	v.SetDefault("receiver.store.max_size", 200)
	v.SetDefault("receiver.store.merge_window", 60*time.Second)
}

// Load resolves configuration from defaults, an optional config file and the
// environment (SECTION_KEY, e.g. KAFKA_BROKERS), then validates it. The legacy
// PORT, KAFKA_BROKER and JWT_SECRET variables are honoured as well.
func Load(path string) (*Config, error) {
	v := viper.New()
	installDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range map[string][]string{
		"server.port":         {"SERVER_PORT", "PORT"},
		"kafka.brokers":       {"KAFKA_BROKERS", "KAFKA_BROKER"},
		"security.jwt_secret": {"SECURITY_JWT_SECRET", "JWT_SECRET"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)
	cfg.Kafka.Topics = compact(cfg.Kafka.Topics)
	cfg.Receiver.Channels = compact(cfg.Receiver.Channels)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// compact trims entries and drops empty ones, so KAFKA_BROKERS="" means no brokers.
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks a receiver section after command-line overrides were applied to it.
func (rc ReceiverConfig) Validate() error {
	if err := validator.New().Struct(&rc); err != nil {
		return fmt.Errorf("invalid receiver config: %w", err)
	}
	return nil
}
