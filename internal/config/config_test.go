package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"PerpSettle/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %s, want :8080", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %s", cfg.HTTP.ReadTimeout)
	}
	if len(cfg.Markets) != 1 || cfg.Markets[0].Name != "eth-usd" {
		t.Errorf("markets = %+v, want one default eth-usd", cfg.Markets)
	}
	if cfg.Markets[0].Granularity != 60 {
		t.Errorf("granularity = %d, want 60", cfg.Markets[0].Granularity)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http:
  addr: ":9999"
log:
  level: debug
markets:
  - name: btc-usd
    granularity: 30
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PERPSETTLE_HTTP_ADDR", ":7777")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7777" {
		t.Errorf("addr = %s, env must win over file", cfg.HTTP.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %s, want debug from file", cfg.Log.Level)
	}
	if len(cfg.Markets) != 1 || cfg.Markets[0].Name != "btc-usd" || cfg.Markets[0].Granularity != 30 {
		t.Errorf("markets = %+v", cfg.Markets)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := config.Load("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
