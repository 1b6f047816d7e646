package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"leecher/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("LEECHER_TEST_API_KEY", "secret-key")
	yamlContent := `
database:
  path: "schedule.db"
destination:
  path: "avalon.db"
scheduler:
  enabled: true
  interval_seconds: 60
  purge_queue_on_cancel: true
api:
  enabled: true
  auth:
    enabled: true
    api_keys:
      - key: "${LEECHER_TEST_API_KEY}"
        name: "pipeline"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Store.Driver != StoreSQLite {
		t.Errorf("expected default store driver sqlite, got %s", cfg.Store.Driver)
	}
	if cfg.Scheduler.Interval() != time.Minute {
		t.Errorf("expected interval 1m, got %s", cfg.Scheduler.Interval())
	}
	if cfg.Scheduler.LockTTLSeconds != models.DefaultDrainLockTTL {
		t.Errorf("expected default lock ttl, got %d", cfg.Scheduler.LockTTLSeconds)
	}
	if !cfg.Scheduler.PurgeQueueOnCancel {
		t.Errorf("expected purge_queue_on_cancel to be set")
	}
	if len(cfg.API.Auth.APIKeys) != 1 || cfg.API.Auth.APIKeys[0].Key != "secret-key" {
		t.Errorf("expected api key expanded from env, got %+v", cfg.API.Auth.APIKeys)
	}
	if !cfg.API.HTTP.Enabled || cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected http enabled on 8080, got %+v", cfg.API.HTTP)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
	if cfg.Shotgrid.PageSize != models.DefaultShotgridPageSize {
		t.Errorf("expected default shotgrid page size, got %d", cfg.Shotgrid.PageSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Database:    DatabaseConfig{Path: "schedule.db"},
			Destination: DestinationConfig{Path: "avalon.db"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Store.Driver = StoreRedis }, wantErr: true},
		{name: "redis with address", mutate: func(c *Config) {
			c.Store.Driver = StoreRedis
			c.Redis.Address = "localhost:6379"
		}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mongo" }, wantErr: true},
		{name: "missing destination", mutate: func(c *Config) { c.Destination.Path = "" }, wantErr: true},
		{name: "lock shorter than interval", mutate: func(c *Config) { c.Scheduler.LockTTLSeconds = 10 }, wantErr: true},
		{name: "auth without keys", mutate: func(c *Config) {
			c.API.Enabled = true
			c.API.Auth.Enabled = true
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
