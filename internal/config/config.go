// Package config loads the typed service configuration from environment
// variables, initializes logging, and resolves secrets.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cryptopulse/cryptopulse/internal/errs"
)

// Config is the immutable configuration record materialized at startup.
type Config struct {
	Environment string           `mapstructure:"environment"` // development, staging, production, test
	Mongo       MongoConfig      `mapstructure:"mongo"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Binance     BinanceConfig    `mapstructure:"binance"`
	CMC         CMCConfig        `mapstructure:"cmc"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Coins       []string         `mapstructure:"coins"`
	Timeframes  []string         `mapstructure:"timeframes"`
	Log         LogConfig        `mapstructure:"log"`
	Observe     ObserveConfig    `mapstructure:"observe"`
	Breaker     BreakerConfig    `mapstructure:"breaker"`
	Retry       RetryConfig      `mapstructure:"retry"`
	HTTP        HTTPConfig       `mapstructure:"http"`
	Secrets     SecretsConfig    `mapstructure:"secrets"`
	Thresholds  ThresholdsConfig `mapstructure:"thresholds"`

	// DefaultTimeout bounds every external call. Decoded manually in Load
	// from a seconds-valued float, so Unmarshal skips it.
	DefaultTimeout time.Duration `mapstructure:"-"`
}

// MongoConfig contains document-store pool settings.
type MongoConfig struct {
	URI                      string `mapstructure:"uri"`
	Database                 string `mapstructure:"database"`
	MaxPoolSize              uint64 `mapstructure:"max_pool_size"`
	MinPoolSize              uint64 `mapstructure:"min_pool_size"`
	MaxIdleTimeMS            int    `mapstructure:"max_idle_time_ms"`
	ConnectTimeoutMS         int    `mapstructure:"connect_timeout_ms"`
	ServerSelectionTimeoutMS int    `mapstructure:"server_selection_timeout_ms"`
}

// RedisConfig contains stream-store pool settings.
type RedisConfig struct {
	Host                 string `mapstructure:"host"`
	Port                 int    `mapstructure:"port"`
	MaxConnections       int    `mapstructure:"max_connections"`
	SocketConnectTimeout int    `mapstructure:"socket_connect_timeout"` // seconds
	SocketTimeout        int    `mapstructure:"socket_timeout"`         // seconds
	SocketKeepalive      bool   `mapstructure:"socket_keepalive"`
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BinanceConfig contains the price exchange settings.
type BinanceConfig struct {
	APIURL string `mapstructure:"api_url"`
}

// CMCConfig contains the macro-metrics provider settings.
type CMCConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// TelegramConfig contains chat delivery settings.
type TelegramConfig struct {
	BotToken     string `mapstructure:"bot_token"`
	PriceChatID  int64  `mapstructure:"price_chat_id"`
	SignalChatID int64  `mapstructure:"signal_chat_id"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// ObserveConfig contains observability toggles.
type ObserveConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// BreakerConfig contains circuit-breaker settings shared by all breakers.
type BreakerConfig struct {
	FailureThreshold uint32 `mapstructure:"failure_threshold"`
	// RecoveryTimeout and FailureWindow are decoded manually in Load from
	// seconds-valued integers, so Unmarshal skips them.
	RecoveryTimeout time.Duration `mapstructure:"-"`
	FailureWindow   time.Duration `mapstructure:"-"`
}

// RetryConfig contains exponential-backoff settings.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	// InitialDelay and MaxDelay are decoded manually in Load from
	// seconds-valued floats, so Unmarshal skips them.
	InitialDelay    time.Duration `mapstructure:"-"`
	MaxDelay        time.Duration `mapstructure:"-"`
	ExponentialBase float64       `mapstructure:"exponential_base"`
}

// HTTPConfig contains the per-service HTTP surface settings.
type HTTPConfig struct {
	APIKeyEnabled      bool     `mapstructure:"api_key_enabled"`
	APIKey             string   `mapstructure:"api_key"`
	APIKeys            []string `mapstructure:"api_keys"`
	RateLimitEnabled   bool     `mapstructure:"rate_limit_enabled"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	RateLimitRequests  int      `mapstructure:"rate_limit_requests"`
	RateLimitWindow    int      `mapstructure:"rate_limit_window"` // seconds
}

// SecretsConfig selects the secret backend.
type SecretsConfig struct {
	Backend string `mapstructure:"backend"` // env, vault, aws
}

// ThresholdsConfig holds tunable analysis thresholds.
type ThresholdsConfig struct {
	// USDTDominanceRisk marks USDT.D as risk-off above this value.
	// The analyzer historically used 5.0 and the legacy monolith's
	// rate limiter used 8.0; the default keeps the analyzer's value.
	USDTDominanceRisk float64 `mapstructure:"usdt_dominance_risk"`
}

// envBindings maps viper keys to the environment variables they read.
var envBindings = map[string]string{
	"environment":                        "ENVIRONMENT",
	"mongo.uri":                          "MONGODB_URI",
	"mongo.database":                     "MONGODB_DB",
	"mongo.max_pool_size":                "MONGODB_MAX_POOL_SIZE",
	"mongo.min_pool_size":                "MONGODB_MIN_POOL_SIZE",
	"mongo.max_idle_time_ms":             "MONGODB_MAX_IDLE_TIME_MS",
	"mongo.connect_timeout_ms":           "MONGODB_CONNECT_TIMEOUT_MS",
	"mongo.server_selection_timeout_ms":  "MONGODB_SERVER_SELECTION_TIMEOUT_MS",
	"redis.host":                         "REDIS_HOST",
	"redis.port":                         "REDIS_PORT",
	"redis.max_connections":              "REDIS_MAX_CONNECTIONS",
	"redis.socket_connect_timeout":       "REDIS_SOCKET_CONNECT_TIMEOUT",
	"redis.socket_timeout":               "REDIS_SOCKET_TIMEOUT",
	"redis.socket_keepalive":             "REDIS_SOCKET_KEEPALIVE",
	"binance.api_url":                    "BINANCE_API_URL",
	"cmc.api_key":                        "CMC_API_KEY",
	"telegram.bot_token":                 "TELEGRAM_BOT_TOKEN",
	"telegram.price_chat_id":             "TELEGRAM_PRICE_CHAT_ID",
	"telegram.signal_chat_id":            "TELEGRAM_SIGNAL_CHAT_ID",
	"coins":                              "COINS",
	"log.level":                          "LOG_LEVEL",
	"log.format":                         "LOG_FORMAT",
	"observe.metrics_enabled":            "METRICS_ENABLED",
	"observe.tracing_enabled":            "TRACING_ENABLED",
	"observe.jaeger_endpoint":            "JAEGER_ENDPOINT",
	"breaker.failure_threshold":          "CIRCUIT_BREAKER_FAILURE_THRESHOLD",
	"breaker.recovery_timeout":           "CIRCUIT_BREAKER_RECOVERY_TIMEOUT",
	"retry.max_attempts":                 "RETRY_MAX_ATTEMPTS",
	"retry.initial_delay":                "RETRY_INITIAL_DELAY",
	"default_timeout":                    "DEFAULT_TIMEOUT",
	"http.api_key_enabled":               "API_KEY_ENABLED",
	"http.api_key":                       "API_KEY",
	"http.api_keys":                      "API_KEYS",
	"http.rate_limit_enabled":            "RATE_LIMIT_ENABLED",
	"http.rate_limit_requests":           "RATE_LIMIT_REQUESTS",
	"http.rate_limit_window":             "RATE_LIMIT_WINDOW",
	"http.rate_limit_per_minute":         "RATE_LIMIT_PER_MINUTE",
	"secrets.backend":                    "SECRETS_BACKEND",
	"thresholds.usdt_dominance_risk":     "USDT_DOMINANCE_RISK_THRESHOLD",
}

// Load reads configuration from the environment, applies defaults and
// environment-specific overrides, and validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// COINS and API_KEYS arrive as comma lists.
	cfg.Coins = splitList(v.GetString("coins"))
	cfg.HTTP.APIKeys = splitList(v.GetString("http.api_keys"))

	// Seconds-valued env vars.
	cfg.Breaker.RecoveryTimeout = time.Duration(v.GetInt("breaker.recovery_timeout")) * time.Second
	cfg.Breaker.FailureWindow = time.Duration(v.GetInt("breaker.failure_window")) * time.Second
	cfg.Retry.InitialDelay = time.Duration(v.GetFloat64("retry.initial_delay") * float64(time.Second))
	cfg.Retry.MaxDelay = time.Duration(v.GetFloat64("retry.max_delay") * float64(time.Second))
	cfg.DefaultTimeout = time.Duration(v.GetFloat64("default_timeout") * float64(time.Second))

	applyEnvironmentOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secrets, err := NewSecretProvider(cfg.Secrets.Backend)
	if err != nil {
		return nil, err
	}
	cfg.CMC.APIKey = secrets.Resolve("CMC_API_KEY", cfg.CMC.APIKey)
	cfg.Telegram.BotToken = secrets.Resolve("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "market")
	v.SetDefault("mongo.max_pool_size", 100)
	v.SetDefault("mongo.min_pool_size", 10)
	v.SetDefault("mongo.max_idle_time_ms", 45000)
	v.SetDefault("mongo.connect_timeout_ms", 10000)
	v.SetDefault("mongo.server_selection_timeout_ms", 5000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.max_connections", 50)
	v.SetDefault("redis.socket_connect_timeout", 5)
	v.SetDefault("redis.socket_timeout", 5)
	v.SetDefault("redis.socket_keepalive", true)

	v.SetDefault("binance.api_url", "https://api.binance.com")
	v.SetDefault("cmc.api_key", "")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.price_chat_id", 0)
	v.SetDefault("telegram.signal_chat_id", 0)

	v.SetDefault("coins", "BTCUSDT,ETHUSDT,SOLUSDT,BNBUSDT")
	v.SetDefault("timeframes", []string{"1m", "15m", "1h", "4h", "8h", "1d", "3d", "1w"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("observe.metrics_enabled", true)
	v.SetDefault("observe.tracing_enabled", false)
	v.SetDefault("observe.jaeger_endpoint", "")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", 60)
	v.SetDefault("breaker.failure_window", 60)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", 1.0)
	v.SetDefault("retry.max_delay", 60.0)
	v.SetDefault("retry.exponential_base", 2.0)

	v.SetDefault("default_timeout", 10.0)

	v.SetDefault("http.api_key_enabled", false)
	v.SetDefault("http.api_key", "")
	v.SetDefault("http.api_keys", "")
	v.SetDefault("http.rate_limit_enabled", true)
	v.SetDefault("http.rate_limit_per_minute", 60)
	v.SetDefault("http.rate_limit_requests", 60)
	v.SetDefault("http.rate_limit_window", 60)

	v.SetDefault("secrets.backend", "env")

	v.SetDefault("thresholds.usdt_dominance_risk", 5.0)
}

func applyEnvironmentOverrides(cfg *Config) {
	switch cfg.Environment {
	case "production":
		cfg.Log.Level = "info"
		cfg.Observe.MetricsEnabled = true
	case "staging":
		cfg.Log.Level = "debug"
		cfg.Observe.MetricsEnabled = true
	case "test":
		cfg.Observe.TracingEnabled = false
	}
}

// Validate checks the configuration for values no service can run with.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "staging", "production", "test":
	default:
		return &errs.ConfigurationError{Key: "ENVIRONMENT",
			Message: fmt.Sprintf("unknown environment %q", c.Environment)}
	}
	if c.Mongo.URI == "" {
		return &errs.ConfigurationError{Key: "MONGODB_URI", Message: "must not be empty"}
	}
	if len(c.Coins) == 0 {
		return &errs.ConfigurationError{Key: "COINS", Message: "at least one symbol is required"}
	}
	if c.Mongo.MinPoolSize > c.Mongo.MaxPoolSize {
		return &errs.ConfigurationError{Key: "MONGODB_MIN_POOL_SIZE",
			Message: "min pool size exceeds max pool size"}
	}
	if c.Retry.MaxAttempts < 1 {
		return &errs.ConfigurationError{Key: "RETRY_MAX_ATTEMPTS", Message: "must be >= 1"}
	}
	if c.HTTP.APIKeyEnabled && c.HTTP.APIKey == "" && len(c.HTTP.APIKeys) == 0 {
		return &errs.ConfigurationError{Key: "API_KEY",
			Message: "API_KEY_ENABLED is true but no key is configured"}
	}
	return nil
}

// IngestTimeframes returns the timeframes the ingestor fetches candles for.
// The 1m interval is declared but optional and skipped during ingest.
func (c *Config) IngestTimeframes() []string {
	out := make([]string, 0, len(c.Timeframes))
	for _, tf := range c.Timeframes {
		if tf == "1m" {
			continue
		}
		out = append(out, tf)
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
