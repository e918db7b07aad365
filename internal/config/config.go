package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/unclebandit/fundraise-backend/internal/model"
)

// DefaultValues is applied before the config file and the environment.
const DefaultValues = `
[App]
Env = "production"
LogLevel = "info"

[HTTP]
Address = ":8080"
ReadTimeout = "15s"
WriteTimeout = "30s"
ShutdownTimeout = "10s"

[Database]
URL = ""
Migrate = true

[AMQP]
URL = ""
Exchange = "fundraise.events"

[Commission]
Percentage = 1
WithdrawalLimitPercentage = 50
CooldownPeriod = "168h"

[Executor]
QueueSize = 1024
EnqueueTimeout = "5s"
EventBuffer = 256

[Oracle]
Kind = "fixed"
Timeout = "3s"
FixedPrice = "2000"
FeedURL = ""
FeedPath = "price"
MaxPriceAge = "10m"
`

type App struct {
	Env      string `env:"APP_ENV"`
	LogLevel string `env:"LOG_LEVEL"`
}

type HTTP struct {
	Address         string        `env:"HTTP_ADDRESS"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"`
}

type Database struct {
	// URL enables Postgres write-through when set.
	URL     string `env:"DATABASE_URL"`
	Migrate bool   `env:"DATABASE_MIGRATE"`
}

type AMQP struct {
	// URL enables event forwarding to RabbitMQ when set.
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE"`
}

type Commission struct {
	Percentage                uint64        `env:"COMMISSION_PERCENTAGE"`
	WithdrawalLimitPercentage uint64        `env:"COMMISSION_WITHDRAWAL_LIMIT_PERCENTAGE"`
	CooldownPeriod            time.Duration `env:"COMMISSION_COOLDOWN_PERIOD"`
	// Admin is the only caller allowed to withdraw commission. Required.
	Admin common.Address `env:"COMMISSION_ADMIN"`
}

type Executor struct {
	QueueSize      int           `env:"EXECUTOR_QUEUE_SIZE"`
	EnqueueTimeout time.Duration `env:"EXECUTOR_ENQUEUE_TIMEOUT"`
	// EventBuffer is the per-subscriber backlog of the in-memory queue.
	EventBuffer int `env:"EXECUTOR_EVENT_BUFFER"`
}

type Oracle struct {
	// Kind is "fixed" or "feed".
	Kind        string          `env:"ORACLE_KIND"`
	Timeout     time.Duration   `env:"ORACLE_TIMEOUT"`
	FixedPrice  decimal.Decimal `env:"ORACLE_FIXED_PRICE"`
	FeedURL     string          `env:"ORACLE_FEED_URL"`
	FeedPath    string          `env:"ORACLE_FEED_PATH"`
	MaxPriceAge time.Duration   `env:"ORACLE_MAX_PRICE_AGE"`
}

// Config is the server and worker configuration.
type Config struct {
	App        App
	HTTP       HTTP
	Database   Database
	AMQP       AMQP
	Commission Commission
	Executor   Executor
	Oracle     Oracle
}

// Policy returns the commission policy the escrow enforces.
func (c *Config) Policy() model.CommissionPolicy {
	return model.CommissionPolicy{
		CommissionPercentage:      c.Commission.Percentage,
		WithdrawalLimitPercentage: c.Commission.WithdrawalLimitPercentage,
		CooldownPeriod:            c.Commission.CooldownPeriod,
	}
}

// Validate checks values the loaders cannot.
func (c *Config) Validate() error {
	if c.Commission.Percentage >= 100 {
		return fmt.Errorf("commission percentage %d must be below 100", c.Commission.Percentage)
	}
	if c.Commission.WithdrawalLimitPercentage > 100 {
		return fmt.Errorf("withdrawal limit percentage %d exceeds 100", c.Commission.WithdrawalLimitPercentage)
	}
	if c.Commission.Admin == (common.Address{}) {
		return fmt.Errorf("COMMISSION_ADMIN must be a non-zero address")
	}
	if c.Commission.CooldownPeriod < 0 {
		return fmt.Errorf("negative cooldown period %s", c.Commission.CooldownPeriod)
	}
	if c.Executor.QueueSize <= 0 {
		return fmt.Errorf("executor queue size must be positive")
	}
	switch c.Oracle.Kind {
	case "fixed":
		if !c.Oracle.FixedPrice.IsPositive() {
			return fmt.Errorf("fixed oracle price must be positive")
		}
	case "feed":
		if c.Oracle.FeedURL == "" {
			return fmt.Errorf("feed oracle requires ORACLE_FEED_URL")
		}
	default:
		return fmt.Errorf("unknown oracle kind %q", c.Oracle.Kind)
	}
	return nil
}

func loadDefault(defaultValues string, cfg interface{}) error {
	if _, err := toml.Decode(defaultValues, cfg); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, cfg interface{}) error {
	bs, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	if _, err := toml.Decode(string(bs), cfg); err != nil {
		return err
	}
	return nil
}

// Load reads .env if present, then applies the defaults, the optional TOML
// file at filePath and the environment, in that order, and validates the
// result.
func Load(filePath string) (*Config, error) {
	// a missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := loadDefault(DefaultValues, cfg); err != nil {
		return nil, fmt.Errorf("error loading default configuration: %w", err)
	}
	if filePath != "" {
		if err := loadFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("error loading configuration file: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
