package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	Log      Log      `yaml:"log"`
	Metrics  Metrics  `yaml:"metrics"`
	Postgres Postgres `yaml:"postgres"`
	Nats     Nats     `yaml:"nats"`
	Consumer Consumer `yaml:"consumer"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"pne-eo-consumer"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Metrics struct {
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9091"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"pne_eo"`
}

type Nats struct {
	Host    string   `yaml:"host" env:"NATS_HOST" env-default:"localhost"`
	Port    int      `yaml:"port" env:"NATS_PORT" env-default:"4222"`
	Token   string   `yaml:"token" env:"NATS_TOKEN"`
	User    string   `yaml:"user" env:"NATS_USER"`
	Pass    string   `yaml:"pass" env:"NATS_PASS"`
	Streams []Stream `yaml:"streams"`
}

// Stream is one JetStream pull source: stream name, durable consumer name
// and the subject filter the durable was created with.
type Stream struct {
	Name          string `yaml:"name"`
	Durable       string `yaml:"durable"`
	FilterSubject string `yaml:"filter_subject"`
}

type Consumer struct {
	// Subjects outside these prefixes are terminated without inbox bookkeeping.
	AllowPrefixes []string `yaml:"allow_prefixes" env:"CONSUMER_ALLOW_PREFIXES" env-separator:"," env-default:"auth.v1."`

	Batch          int           `yaml:"batch" env:"CONSUMER_BATCH" env-default:"25"`
	PullTimeout    time.Duration `yaml:"pull_timeout" env:"CONSUMER_PULL_TIMEOUT" env-default:"2s"`
	CycleSleep     time.Duration `yaml:"cycle_sleep" env:"CONSUMER_CYCLE_SLEEP" env-default:"250ms"`
	ErrorBackoff   time.Duration `yaml:"error_backoff" env:"CONSUMER_ERROR_BACKOFF" env-default:"1s"`
	RetryDelay     time.Duration `yaml:"retry_delay" env:"CONSUMER_RETRY_DELAY" env-default:"2s"`
	HandlerTimeout time.Duration `yaml:"handler_timeout" env:"CONSUMER_HANDLER_TIMEOUT" env-default:"30s"`
	MaxAttempts    int           `yaml:"max_attempts" env:"CONSUMER_MAX_ATTEMPTS" env-default:"5"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		cleanenv.ReadEnv(cfg)
	}

	return cfg, nil
}
