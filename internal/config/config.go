// Package config loads Ashford's TOML configuration file and overlays
// environment variables, mirroring the teacher's Load/LoadFromEnv split
// (internal/config in the teacher repository) but with a TOML parser
// instead of YAML, per spec.md §6.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the root configuration object, §6's recognized sections plus
// the ambient ones every teacher-style service carries (database, redis,
// worker pool sizing, logging).
type Config struct {
	App      AppConfig      `toml:"app"`
	Paths    PathsConfig    `toml:"paths"`
	Model    ModelConfig    `toml:"model"`
	Policy   PolicyConfig   `toml:"policy"`
	Gmail    GmailConfig    `toml:"gmail"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Worker   WorkerConfig   `toml:"worker"`
	Log      LogConfig      `toml:"log"`
	Slack    SlackConfig    `toml:"slack"`
}

type AppConfig struct {
	Port           int      `toml:"port"`
	Env            string   `toml:"env"`
	CORSOrigins    []string `toml:"cors_origins"`
	LockTTLSeconds int      `toml:"lock_ttl_seconds"`
}

type PathsConfig struct {
	Database string `toml:"database"`
}

type ModelConfig struct {
	Provider        string  `toml:"provider"`
	Model           string  `toml:"model"`
	Temperature     float64 `toml:"temperature"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
}

type PolicyConfig struct {
	ApprovalAlways    []string `toml:"approval_always"`
	ConfidenceDefault float64  `toml:"confidence_default"`
}

type GmailConfig struct {
	UsePubsub    bool   `toml:"use_pubsub"`
	ProjectID    string `toml:"project_id"`
	Subscription string `toml:"subscription"`
	SnoozeLabel  string `toml:"snooze_label"`
}

type DatabaseConfig struct {
	URL             string `toml:"url"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime int    `toml:"conn_max_lifetime_seconds"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type WorkerConfig struct {
	PoolSize              int `toml:"pool_size"`
	PollIntervalMs        int `toml:"poll_interval_ms"`
	HeartbeatIntervalSecs int `toml:"heartbeat_interval_seconds"`
	StaleAfterSecs        int `toml:"stale_after_seconds"`
	ReaperIntervalSecs    int `toml:"reaper_interval_seconds"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	RedactPII bool   `toml:"redact_pii"`
}

type SlackConfig struct {
	BotToken       string `toml:"bot_token"`
	Channel        string `toml:"channel"`
	ApproveURLBase string `toml:"approve_url_base"`
}

// Load parses a TOML file at path into a Config, applying defaults for
// anything unset.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv parses path (loading a .env file first, same as the teacher's
// LoadFromEnv) then overlays environment variables and resolves any
// `env:VAR_NAME` indirections, per §6's "Secrets may be indirected as
// env:VAR_NAME".
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ASHFORD_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.App.Port)
	}
	if v := os.Getenv("ASHFORD_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.BotToken = v
	}

	cfg.Database.URL = resolveSecret(cfg.Database.URL)
	cfg.Redis.Password = resolveSecret(cfg.Redis.Password)
	cfg.Slack.BotToken = resolveSecret(cfg.Slack.BotToken)

	return cfg, nil
}

// resolveSecret resolves the `env:VAR_NAME` indirection form from §6.
// Values not using the indirection are returned unchanged.
func resolveSecret(v string) string {
	const prefix = "env:"
	if !strings.HasPrefix(v, prefix) {
		return v
	}
	return os.Getenv(strings.TrimPrefix(v, prefix))
}

func defaults() *Config {
	return &Config{
		App: AppConfig{Port: 8080, Env: "development", LockTTLSeconds: 10},
		Model: ModelConfig{
			Provider:        "bedrock",
			Model:           "anthropic.claude-3-sonnet-20240229-v1:0",
			Temperature:     0.2,
			MaxOutputTokens: 1024,
		},
		Policy: PolicyConfig{
			ApprovalAlways:    []string{"delete", "forward", "auto_reply", "escalate"},
			ConfidenceDefault: 0.7,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Worker: WorkerConfig{
			PoolSize:              4,
			PollIntervalMs:        500,
			HeartbeatIntervalSecs: 15,
			StaleAfterSecs:        30,
			ReaperIntervalSecs:    30,
		},
		Log:   LogConfig{Level: "info", RedactPII: true},
		Gmail: GmailConfig{SnoozeLabel: "Ashford/Snoozed"},
	}
}
