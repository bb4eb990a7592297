package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"offersync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("OFFERSYNC_TEST_TOKEN", "secret-token")

	yamlContent := `
app:
  name: "field-tech"
storage:
  driver: "sqlite"
  path: "test.db"
gateway:
  base_url: "https://api.example.com"
  token: "${OFFERSYNC_TEST_TOKEN}"
  user_id: "tech-7"
  timeout: 3s
sync:
  settle_delay: 500ms
connectivity:
  probe_url: "https://api.example.com/health"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "field-tech", cfg.App.Name)
	assert.Equal(t, "secret-token", cfg.Gateway.Token)
	assert.Equal(t, "tech-7", cfg.Gateway.UserID)
	assert.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.SettleDelay)
	assert.Equal(t, models.MaxSyncRetries, cfg.Sync.MaxRetries)
	assert.Equal(t, models.UndoWindow, cfg.Sync.UndoWindow)
	assert.Equal(t, models.ExpirationSweepInterval, cfg.Sync.SweepInterval)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  driver: \"cassandra\"\n"), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Storage: StorageConfig{Driver: StorageSQLite, Path: "path"},
			Gateway: GatewayConfig{BaseURL: "http://localhost:9000"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "memory storage", mutate: func(c *Config) { c.Storage = StorageConfig{Driver: StorageMemory} }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Storage.Driver = StorageRedis }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "bolt" }, wantErr: true},
		{name: "missing gateway", mutate: func(c *Config) { c.Gateway.BaseURL = "" }, wantErr: true},
		{name: "relative gateway", mutate: func(c *Config) { c.Gateway.BaseURL = "/api" }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Sync.MaxRetries = 0 }, wantErr: true},
		{name: "negative undo window", mutate: func(c *Config) { c.Sync.UndoWindow = -time.Second }, wantErr: true},
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

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Monitoring: MonitoringConfig{PrometheusEnabled: true}}
	cfg.applyDefaults()

	assert.Equal(t, "offersync", cfg.App.Name)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "data/offersync.db", cfg.Storage.Path)
	assert.Equal(t, "offersync:", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, models.ReconnectSettleDelay, cfg.Sync.SettleDelay)
	assert.Equal(t, models.DefaultProbeInterval, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
}
