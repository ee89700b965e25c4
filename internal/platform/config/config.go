package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config captures everything the registry needs at startup.
// Priority: ENV > YAML > defaults. The YAML file path comes from CONFIG_PATH
// (fallback "./config.yaml"); when the file is absent and CONFIG_PATH was not
// set explicitly, configuration is ENV + defaults only.
type Config struct {
	Addr     string `yaml:"addr" env:"REGISTRY_ADDR" env-default:":8000"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// APIKey gates every machine-to-machine call before any store access.
	APIKey string `yaml:"api_key" env:"REGISTRY_API_KEY"`

	// OperatorRoleID is the role whose members pass the interactive operator
	// gate; administrators always pass.
	OperatorRoleID string `yaml:"operator_role_id" env:"OPERATOR_ROLE_ID"`

	// DatabaseURL enables the Postgres stores; empty falls back to the
	// in-memory stores (development mode).
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	// RedisURL enables the distributed per-case mirror lock; empty uses the
	// in-process keyed lock.
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`

	Mirror MirrorConfig `yaml:"mirror"`
	Audit  AuditConfig  `yaml:"audit"`
}

// MirrorConfig controls the external mirror-thread projection.
type MirrorConfig struct {
	// BotToken authenticates the controlling agent on the messaging platform.
	// Empty disables mirroring entirely.
	BotToken string `yaml:"bot_token" env:"MIRROR_BOT_TOKEN"`
	// ForumChannelID is where new case threads are created.
	ForumChannelID string        `yaml:"forum_channel_id" env:"MIRROR_FORUM_CHANNEL_ID"`
	Timeout        time.Duration `yaml:"timeout" env:"MIRROR_TIMEOUT" env-default:"10s"`
}

// AuditConfig controls the optional best-effort audit fan-out.
type AuditConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers" env:"AUDIT_KAFKA_BROKERS"`
	KafkaTopic   string   `yaml:"kafka_topic" env:"AUDIT_KAFKA_TOPIC" env-default:"registry.audit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run safely with.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("REGISTRY_API_KEY is required")
	}
	if c.Mirror.BotToken != "" && c.Mirror.ForumChannelID == "" {
		return fmt.Errorf("MIRROR_FORUM_CHANNEL_ID is required when mirroring is enabled")
	}
	if c.Mirror.Timeout <= 0 {
		return fmt.Errorf("mirror timeout must be positive")
	}
	return nil
}
