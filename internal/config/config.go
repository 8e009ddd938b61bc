package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string   `env:"PORT" envDefault:"3000"`
	Bind          string   `env:"FORCERANK_BIND" envDefault:"0.0.0.0"`
	StorePath     string   `env:"FORCERANK_STORE_PATH"`
	TermsFile     string   `env:"FORCERANK_TERMS_FILE"`
	PublicURL     string   `env:"FORCERANK_PUBLIC_URL"`
	ExportEnabled bool     `env:"FORCERANK_EXPORT_ENABLED" envDefault:"false"`
	ExportFile    string   `env:"FORCERANK_EXPORT_FILE" envDefault:"./forcerank-results.txt"`
	DemoCode      string   `env:"FORCERANK_DEMO_CODE" envDefault:"MARVEL_DEMO"`
	DemoNames     []string `env:"FORCERANK_DEMO_NAMES" envSeparator:"," envDefault:"Iron Man,Captain America,Thor,Black Widow,Hulk,Spider-Man,Thanos,Loki"`
	LogLevel      string   `env:"FORCERANK_LOG_LEVEL" envDefault:"info"`
	LogPretty     bool     `env:"FORCERANK_LOG_PRETTY" envDefault:"true"`
	OTelEndpoint  string   `env:"FORCERANK_OTEL_ENDPOINT"`
	TxRetries     int      `env:"FORCERANK_TX_RETRIES" envDefault:"25"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.TxRetries < 1 {
		return fmt.Errorf("invalid transaction retry budget: %d", c.TxRetries)
	}
	if c.DemoCode == "" {
		return fmt.Errorf("demo code is required")
	}
	if len(c.DemoNames) < 2 {
		return fmt.Errorf("demo needs at least two names, got %d", len(c.DemoNames))
	}
	return nil
}
