// Package config loads the alphawatch configuration from a YAML file with
// environment-variable overrides for secrets and deploy-specific endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// HTTPConfig holds listener settings for the webhook/admin server.
type HTTPConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// RedisConfig holds window store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WindowConfig bounds the per-token transaction windows.
type WindowConfig struct {
	Cap       int      `yaml:"cap"`
	Retention Duration `yaml:"retention"`
	OpTimeout Duration `yaml:"op_timeout"`
}

// RulesConfig parameterizes the three confluence rules.
type RulesConfig struct {
	AlphaWindow        Duration `yaml:"alpha_window"`
	AlphaMinWallets    int      `yaml:"alpha_min_wallets"`
	FollowWindow       Duration `yaml:"follow_window"`
	FollowMinFollowers int      `yaml:"follow_min_followers"`
	FollowMinTypes     int      `yaml:"follow_min_types"`
	DiverseWindow      Duration `yaml:"diverse_window"`
	DiverseMinTypes    int      `yaml:"diverse_min_types"`
}

// NotifyConfig tunes the dispatcher and the Telegram sink.
type NotifyConfig struct {
	Cooldown       Duration `yaml:"cooldown"`
	QueueSize      int      `yaml:"queue_size"`
	GlobalRPS      float64  `yaml:"global_rps"`
	GlobalBurst    int      `yaml:"global_burst"`
	PerDestRPS     float64  `yaml:"per_dest_rps"`
	PerDestBurst   int      `yaml:"per_dest_burst"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBackoff   Duration `yaml:"retry_backoff"`
	TelegramToken  string   `yaml:"telegram_token"`
	TelegramChatID string   `yaml:"telegram_chat_id"`
}

// RosterConfig points at the analytics source for the tracked-address set
// and the webhook provider whose address list is kept in sync with it.
type RosterConfig struct {
	SourceURL     string   `yaml:"source_url"`
	APIKey        string   `yaml:"api_key"`
	Interval      Duration `yaml:"interval"`
	WebhookID     string   `yaml:"webhook_id"`
	WebhookAPIKey string   `yaml:"webhook_api_key"`
	CallbackURL   string   `yaml:"callback_url"`
}

// Config is the root configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	HTTP     HTTPConfig   `yaml:"http"`
	Redis    RedisConfig  `yaml:"redis"`
	Window   WindowConfig `yaml:"window"`
	Rules    RulesConfig  `yaml:"rules"`
	Notify   NotifyConfig `yaml:"notify"`
	Roster   RosterConfig `yaml:"roster"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Window: WindowConfig{
			Cap:       50,
			Retention: Duration(4 * time.Hour),
			OpTimeout: Duration(500 * time.Millisecond),
		},
		Rules: RulesConfig{
			AlphaWindow:        Duration(30 * time.Minute),
			AlphaMinWallets:    2,
			FollowWindow:       Duration(2 * time.Hour),
			FollowMinFollowers: 2,
			FollowMinTypes:     2,
			DiverseWindow:      Duration(time.Hour),
			DiverseMinTypes:    3,
		},
		Notify: NotifyConfig{
			Cooldown:     Duration(15 * time.Minute),
			QueueSize:    256,
			GlobalRPS:    1,
			GlobalBurst:  5,
			PerDestRPS:   0.5,
			PerDestBurst: 3,
			MaxRetries:   3,
			RetryBackoff: Duration(time.Second),
		},
		Roster: RosterConfig{
			Interval: Duration(7 * 24 * time.Hour),
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus env overrides are a complete config.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays deploy-time settings that live outside the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.TelegramChatID = v
	}
	if v := os.Getenv("ANALYTICS_API_KEY"); v != "" {
		cfg.Roster.APIKey = v
	}
	if v := os.Getenv("WEBHOOK_API_KEY"); v != "" {
		cfg.Roster.WebhookAPIKey = v
	}
}

// Validate rejects configurations the components cannot run with.
func (c *Config) Validate() error {
	if c.Window.Cap <= 0 {
		return fmt.Errorf("window cap must be positive, got %d", c.Window.Cap)
	}
	if c.Window.Retention.Std() <= 0 {
		return fmt.Errorf("window retention must be positive")
	}
	if c.Window.OpTimeout.Std() <= 0 || c.Window.OpTimeout.Std() > time.Second {
		return fmt.Errorf("store op timeout must be in (0s, 1s], got %s", c.Window.OpTimeout.Std())
	}
	if c.Rules.AlphaMinWallets < 2 {
		return fmt.Errorf("alpha rule needs at least 2 wallets, got %d", c.Rules.AlphaMinWallets)
	}
	if c.Rules.DiverseMinTypes < 2 {
		return fmt.Errorf("diverse rule needs at least 2 types, got %d", c.Rules.DiverseMinTypes)
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify queue size must be positive, got %d", c.Notify.QueueSize)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTP.Port)
	}
	return nil
}
