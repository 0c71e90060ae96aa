// Package config loads envgraph settings from a YAML file, a .env file and
// ENVGRAPH_* environment variables, in that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/envgraph/internal/layout"
)

// Confirmation modes.
const (
	ConfirmationsLocal = "local"
	ConfirmationsNone  = "none"
)

// Environment variables that override file values.
const (
	EnvDB              = "ENVGRAPH_DB"
	EnvLayoutPolicy    = "ENVGRAPH_LAYOUT_POLICY"
	EnvLayoutDirection = "ENVGRAPH_LAYOUT_DIRECTION"
	EnvLayoutRankSep   = "ENVGRAPH_LAYOUT_RANK_SEP"
	EnvLayoutNodeSep   = "ENVGRAPH_LAYOUT_NODE_SEP"
	EnvLogLevel        = "ENVGRAPH_LOG_LEVEL"
	EnvConfirmations   = "ENVGRAPH_CONFIRMATIONS"
	EnvMetricsAddr     = "ENVGRAPH_METRICS_ADDR"
)

// Config is the full envgraph configuration.
type Config struct {
	DB            string       `yaml:"db"`
	LogLevel      string       `yaml:"log_level"`
	Confirmations string       `yaml:"confirmations"`
	MetricsAddr   string       `yaml:"metrics_addr"`
	Layout        LayoutConfig `yaml:"layout"`
}

// LayoutConfig mirrors layout.Options in YAML form.
type LayoutConfig struct {
	Policy    string  `yaml:"policy"`
	Direction string  `yaml:"direction"`
	RankSep   float64 `yaml:"rank_sep"`
	NodeSep   float64 `yaml:"node_sep"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := layout.DefaultOptions()
	return &Config{
		DB:            "envgraph.db",
		LogLevel:      "info",
		Confirmations: ConfirmationsLocal,
		Layout: LayoutConfig{
			Policy:    string(d.Policy),
			Direction: string(d.Direction),
			RankSep:   d.RankSep,
			NodeSep:   d.NodeSep,
		},
	}
}

// Load reads the config at path (empty means defaults only), loads .env if
// present and applies environment overrides.
func Load(path string) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		EnvDB:              &c.DB,
		EnvLayoutPolicy:    &c.Layout.Policy,
		EnvLayoutDirection: &c.Layout.Direction,
		EnvLogLevel:        &c.LogLevel,
		EnvConfirmations:   &c.Confirmations,
		EnvMetricsAddr:     &c.MetricsAddr,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	num := map[string]*float64{
		EnvLayoutRankSep: &c.Layout.RankSep,
		EnvLayoutNodeSep: &c.Layout.NodeSep,
	}
	for key, dst := range num {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = f
	}
	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if err := c.LayoutOptions().Validate(); err != nil {
		return err
	}
	switch c.Confirmations {
	case ConfirmationsLocal, ConfirmationsNone:
	default:
		return fmt.Errorf("unknown confirmation mode %q (want %s or %s)",
			c.Confirmations, ConfirmationsLocal, ConfirmationsNone)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Layout.RankSep < 0 || c.Layout.NodeSep < 0 {
		return fmt.Errorf("layout spacing must not be negative")
	}
	return nil
}

// LayoutOptions converts the layout section. Unset spacing takes the
// layout defaults.
func (c *Config) LayoutOptions() layout.Options {
	return layout.Options{
		Policy:    layout.Policy(c.Layout.Policy),
		Direction: layout.Direction(strings.ToUpper(c.Layout.Direction)),
		RankSep:   c.Layout.RankSep,
		NodeSep:   c.Layout.NodeSep,
	}
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}
