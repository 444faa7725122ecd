package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds all configuration for brotherbot
type Config struct {
	Server   ServerConfig
	Telegram TelegramConfig
	Store    StoreConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Fetcher  FetcherConfig
	Poller   PollerConfig
	Markers  MarkersConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TelegramConfig holds the relay's bot, source and destination
type TelegramConfig struct {
	Token             string
	SourceChatID      int64  `mapstructure:"source_chat_id"`
	SourceUsername    string `mapstructure:"source_username"`
	DestinationChatID int64  `mapstructure:"destination_chat_id"`
	NotifyChatID      int64  `mapstructure:"notify_chat_id"`
	Mode              string // copy, forward
	BotsOnly          bool   `mapstructure:"bots_only"`
	ReplaceFrom       string `mapstructure:"replace_from"`
	ReplacePattern    string `mapstructure:"replace_pattern"`
	ReplaceTo         string `mapstructure:"replace_to"`
}

// StoreConfig holds the bet store driver and data source
type StoreConfig struct {
	Driver string // sqlite, postgres
	DSN    string // file path for sqlite, connection string for postgres
}

// RedisConfig holds Redis page cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers        []string
	GroupID        string `mapstructure:"group_id"`
	IngestEnabled  bool   `mapstructure:"ingest_enabled"`
	IngestTopic    string `mapstructure:"ingest_topic"` // relayed messages to track
	PublishEnabled bool   `mapstructure:"publish_enabled"`
	PublishTopic   string `mapstructure:"publish_topic"` // settlement events
}

// FetcherConfig holds result page fetching configuration
type FetcherConfig struct {
	Timeout       time.Duration
	MaxBytes      int64         `mapstructure:"max_bytes"`
	UserAgent     string        `mapstructure:"user_agent"`
	SearchEnabled bool          `mapstructure:"search_enabled"`
	SearchURL     string        `mapstructure:"search_url"`
	Browser       bool          // render pages in headless Chrome
	BrowserSettle time.Duration `mapstructure:"browser_settle"`
}

// PollerConfig holds settlement poller timing
type PollerConfig struct {
	Interval   time.Duration
	StartDelay time.Duration `mapstructure:"start_delay"`
	EditDelay  time.Duration `mapstructure:"edit_delay"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// MarkersConfig holds the text appended to settled messages
type MarkersConfig struct {
	Green string
	Red   string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// legacyEnv maps config keys to the pre-prefix environment names, first name winning
var legacyEnv = map[string][]string{
	"telegram.token":               {"BOT_TOKEN"},
	"telegram.destination_chat_id": {"DESTINO_CHAT_ID", "CHANNEL_ID"},
	"telegram.source_chat_id":      {"ORIGEM_CHAT_ID"},
	"telegram.source_username":     {"ORIGEM_USERNAME", "ALLOWED_USERNAME"},
	"telegram.notify_chat_id":      {"NOTIFY_CHAT_ID"},
	"telegram.mode":                {"MODE"},
	"telegram.replace_from":        {"REPLACE_FROM"},
	"telegram.replace_to":          {"REPLACE_TO"},
	"poller.interval":              {"POLL_INTERVAL"},
	"store.dsn":                    {"DB_PATH"},
	"server.port":                  {"PORT"},
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.source_chat_id", 0)
	v.SetDefault("telegram.source_username", "")
	v.SetDefault("telegram.destination_chat_id", 0)
	v.SetDefault("telegram.notify_chat_id", 0)
	v.SetDefault("telegram.mode", "copy")
	v.SetDefault("telegram.bots_only", false)
	v.SetDefault("telegram.replace_from", "")
	v.SetDefault("telegram.replace_pattern", "")
	v.SetDefault("telegram.replace_to", "")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "forwarder_games.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 60*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "brotherbot")
	v.SetDefault("kafka.ingest_enabled", false)
	v.SetDefault("kafka.ingest_topic", "brotherbot.relayed")
	v.SetDefault("kafka.publish_enabled", false)
	v.SetDefault("kafka.publish_topic", "brotherbot.settlements")

	v.SetDefault("fetcher.timeout", 20*time.Second)
	v.SetDefault("fetcher.max_bytes", 5<<20)
	v.SetDefault("fetcher.user_agent", "")
	v.SetDefault("fetcher.search_enabled", true)
	v.SetDefault("fetcher.search_url", "https://cornerprobet.com/search?query=")
	v.SetDefault("fetcher.browser", false)
	v.SetDefault("fetcher.browser_settle", 2*time.Second)

	v.SetDefault("poller.interval", 90*time.Second)
	v.SetDefault("poller.start_delay", 5*time.Second)
	v.SetDefault("poller.edit_delay", time.Second)
	v.SetDefault("poller.max_backoff", 300*time.Second)

	v.SetDefault("markers.green", "✅✅✅✅✅✅✅✅✅✅✅✅")
	v.SetDefault("markers.red", "✖️")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvPrefix("BROTHERBOT")
	v.AutomaticEnv()
	// Replace . with _ for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Prefixed variables win over the legacy names
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Unmarshal to struct
	var config Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, hooks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks values that would otherwise fail late at startup
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}

	if c.Telegram.Token != "" && c.Telegram.DestinationChatID == 0 {
		errs = append(errs, errors.New("telegram.destination_chat_id is required with a bot token"))
	}
	if c.Telegram.ReplacePattern != "" {
		if _, err := regexp.Compile(c.Telegram.ReplacePattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid telegram.replace_pattern: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Telegram.Mode)) {
	case "copy", "forward":
	default:
		errs = append(errs, fmt.Errorf("unknown telegram.mode %q", c.Telegram.Mode))
	}

	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("poller.interval must be positive"))
	}

	if (c.Kafka.IngestEnabled || c.Kafka.PublishEnabled) && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}

	return errors.Join(errs...)
}

// durationHook decodes durations from Go duration strings or from bare numbers of seconds,
// the unit the legacy POLL_INTERVAL used
var durationHook mapstructure.DecodeHookFuncType = func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		return time.ParseDuration(s)
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}
