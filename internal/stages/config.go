package stages

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultConfig []byte

// Config lists the database objects the stages touch.
type Config struct {
	Prices     PricesConfig     `yaml:"prices"`
	Continuous ContinuousConfig `yaml:"continuous"`
	Snapshots  SnapshotsConfig  `yaml:"snapshots"`
}

type PricesConfig struct {
	Coin     string `yaml:"coin"`
	Currency string `yaml:"currency"`
}

type ContinuousConfig struct {
	// Views are refreshed in order within one transaction.
	Views []string `yaml:"views"`
}

type SnapshotsConfig struct {
	// Procedures are called in order with the height within one transaction.
	Procedures []string `yaml:"procedures"`
}

// DefaultConfig returns the embedded configuration.
func DefaultConfig() (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse default stages config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads path on top of the embedded defaults. An empty path yields
// the defaults. Keys present in the file replace the default values.
func LoadConfig(path string) (Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read stages config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse stages config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid stages config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every configured name is usable.
func (c Config) Validate() error {
	if c.Prices.Coin == "" {
		return errors.New("prices coin is required")
	}
	if c.Prices.Currency == "" {
		return errors.New("prices currency is required")
	}
	for _, name := range c.Continuous.Views {
		if _, err := parseIdentifier(name); err != nil {
			return fmt.Errorf("continuous view: %w", err)
		}
	}
	for _, name := range c.Snapshots.Procedures {
		if _, err := parseIdentifier(name); err != nil {
			return fmt.Errorf("snapshot procedure: %w", err)
		}
	}
	return nil
}

// parseIdentifier splits an optionally schema qualified name.
func parseIdentifier(name string) (pgx.Identifier, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%q has too many parts", name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%q is not a valid name", name)
		}
	}
	return pgx.Identifier(parts), nil
}

func parseIdentifiers(names []string) ([]pgx.Identifier, error) {
	ids := make([]pgx.Identifier, 0, len(names))
	for _, name := range names {
		id, err := parseIdentifier(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
