// Package config loads runtime configuration and bootstraps the data
// directory layout shared by the collectors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	hjson "github.com/hjson/hjson-go/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds everything the collectors need at runtime. The SEC contact
// email is mandatory: SEC's fair-access policy requires an identifying
// User-Agent on every request.
type Config struct {
	DataDir     string   `yaml:"data_dir" json:"data_dir"`
	SECEmail    string   `yaml:"sec_email" json:"sec_email"`
	LogLevel    string   `yaml:"log_level" json:"log_level"`
	DatabaseDSN string   `yaml:"database_dsn" json:"database_dsn"`
	Tickers     []string `yaml:"tickers" json:"tickers"`
	NumFilings  int      `yaml:"num_filings" json:"num_filings"`
	Days        int      `yaml:"days" json:"days"`
}

// Default returns a config with the original directory layout and watchlist.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		LogLevel:   "info",
		Tickers:    []string{"AAPL", "MSFT", "GOOGL"},
		NumFilings: 10,
		Days:       30,
	}
}

// Load builds the effective configuration: defaults, then the optional config
// file (YAML or HJSON by extension), then environment variables on top.
// A missing file is not an error; a present-but-unreadable one is.
func Load(path string) (*Config, error) {
	// .env is best-effort, same as the rest of the tooling here.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".hjson":
				if err := hjson.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("parse hjson config %s: %w", path, err)
				}
			default:
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
				}
			}
		}
	}

	if v := os.Getenv("SEC_EMAIL"); v != "" {
		cfg.SECEmail = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = v
	}

	return cfg, nil
}

// TWMarketDir is where Taiwan institutional-investor exports land.
func (c *Config) TWMarketDir() string { return filepath.Join(c.DataDir, "tw_market") }

// USMarketDir is where US reports and aggregates land.
func (c *Config) USMarketDir() string { return filepath.Join(c.DataDir, "us_market") }

// Form4DownloadDir is where raw and normalized Form 4 submissions land.
func (c *Config) Form4DownloadDir() string { return filepath.Join(c.USMarketDir(), "downloads") }

// EnsureDirectories creates the full directory layout. Idempotent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.DataDir,
		c.TWMarketDir(),
		c.USMarketDir(),
		c.Form4DownloadDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// UserAgent builds the identifying header value sent on every outbound
// request, per the data sources' published access policies.
func (c *Config) UserAgent() string {
	email := c.SECEmail
	if email == "" {
		email = "anonymous@example.com"
	}
	return fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) %s", email)
}
