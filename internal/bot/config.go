package bot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SymbolConfig holds the per-symbol trading parameters.
type SymbolConfig struct {
	Symbol        string  `yaml:"symbol"`
	Lots          float64 `yaml:"lots"`
	SLPips        float64 `yaml:"sl_points"`
	TPPips        float64 `yaml:"tp_points"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// Config is the bot loop configuration file.
type Config struct {
	Symbols         []SymbolConfig `yaml:"symbols"`
	IntervalSeconds int            `yaml:"interval_seconds"`
	MaxPerSymbol    int            `yaml:"max_per_symbol"`
	MaxTotal        int            `yaml:"max_total"`
	MaxSlippagePips float64        `yaml:"max_slippage_points"`
	BarsHistory     int            `yaml:"bars_history"`
}

// LoadConfig reads the loop configuration from a YAML file and applies
// defaults for anything left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bot config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("bot config: %w", err)
	}
	cfg.applyDefaults()

	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("bot config: no symbols configured")
	}
	for i := range cfg.Symbols {
		if cfg.Symbols[i].Symbol == "" {
			return nil, fmt.Errorf("bot config: symbol entry %d has no symbol", i)
		}
		if cfg.Symbols[i].Lots <= 0 {
			cfg.Symbols[i].Lots = 0.01
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 5
	}
	if c.MaxPerSymbol <= 0 {
		c.MaxPerSymbol = 1
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = 3
	}
	if c.MaxSlippagePips <= 0 {
		c.MaxSlippagePips = 20
	}
	if c.BarsHistory <= 0 {
		c.BarsHistory = 50
	}
}

// Interval returns the cycle interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
