package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. BAHRA_TRADIER_KEY.
const Prefix = "BAHRA"

// Config holds the runtime settings of the estimator and its front-ends.
type Config struct {
	TradierKey string `envconfig:"TRADIER_KEY"`
	FredKey    string `envconfig:"FRED_KEY"`

	Symbols []string `envconfig:"SYMBOLS" default:"SPY"`
	MinDTE  int      `envconfig:"MIN_DTE" default:"5"`
	MaxDTE  int      `envconfig:"MAX_DTE" default:"45"`
	// RiskFreeRate is used when no FRED key is configured.
	RiskFreeRate float64 `envconfig:"RISK_FREE_RATE" default:"0.0379"`

	Output     string        `envconfig:"OUTPUT" default:"rnd.json"`
	LogLevel   string        `envconfig:"LOG_LEVEL" default:"info"`
	FitTimeout time.Duration `envconfig:"FIT_TIMEOUT" default:"2m"`

	SlackAppToken string `envconfig:"SLACK_APP_TOKEN"`
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
}

// Load reads .env files when present, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TradierKey == "" {
		return fmt.Errorf("%s_TRADIER_KEY is required", Prefix)
	}
	if c.MinDTE < 0 {
		return fmt.Errorf("invalid min DTE: %d", c.MinDTE)
	}
	if c.MaxDTE < c.MinDTE {
		return fmt.Errorf("max DTE %d is below min DTE %d", c.MaxDTE, c.MinDTE)
	}
	if c.FitTimeout <= 0 {
		return fmt.Errorf("fit timeout must be positive")
	}
	if (c.SlackAppToken == "") != (c.SlackBotToken == "") {
		return fmt.Errorf("slack needs both an app token and a bot token")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

func (c *Config) SlackEnabled() bool {
	return c.SlackAppToken != "" && c.SlackBotToken != ""
}
