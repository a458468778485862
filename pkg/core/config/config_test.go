package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.NumFilings != 10 || cfg.Days != 30 {
		t.Errorf("defaults = %d filings / %d days", cfg.NumFilings, cfg.Days)
	}
	if len(cfg.Tickers) == 0 {
		t.Error("default watchlist is empty")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: /tmp/flows
sec_email: ops@example.com
tickers: [NVDA, AMD]
num_filings: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/flows" || cfg.SECEmail != "ops@example.com" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Tickers) != 2 || cfg.Tickers[0] != "NVDA" {
		t.Errorf("tickers = %v", cfg.Tickers)
	}
	if cfg.NumFilings != 5 {
		t.Errorf("num_filings = %d, want 5", cfg.NumFilings)
	}
	// Unset fields keep their defaults.
	if cfg.Days != 30 {
		t.Errorf("days = %d, want default 30", cfg.Days)
	}
}

func TestLoadHJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.hjson")
	content := `{
  # comments are fine here
  sec_email: ops@example.com
  num_filings: 3
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SECEmail != "ops@example.com" || cfg.NumFilings != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SEC_EMAIL", "env@example.com")
	t.Setenv("DATABASE_URL", "postgres://localhost/flows")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SECEmail != "env@example.com" {
		t.Errorf("sec email = %q, want env override", cfg.SECEmail)
	}
	if cfg.DatabaseDSN != "postgres://localhost/flows" {
		t.Errorf("dsn = %q", cfg.DatabaseDSN)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing config file should fall back to defaults, got %v", err)
	}
}

func TestDirectoryLayout(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{cfg.TWMarketDir(), cfg.USMarketDir(), cfg.Form4DownloadDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing directory %s", dir)
		}
	}
	if !strings.HasPrefix(cfg.Form4DownloadDir(), cfg.USMarketDir()) {
		t.Error("download dir should nest under the US market dir")
	}
}

func TestUserAgentCarriesEmail(t *testing.T) {
	cfg := Default()
	cfg.SECEmail = "ops@example.com"
	if !strings.Contains(cfg.UserAgent(), "ops@example.com") {
		t.Errorf("user agent %q missing contact email", cfg.UserAgent())
	}
}
