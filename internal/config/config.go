package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"offersync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Logging      LoggingConfig      `yaml:"logging"`
	Storage      StorageConfig      `yaml:"storage"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	API          APIConfig          `yaml:"api"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	UserID  string        `yaml:"user_id"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
}

type SyncConfig struct {
	SettleDelay   time.Duration `yaml:"settle_delay"`
	MaxRetries    int           `yaml:"max_retries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	UndoWindow    time.Duration `yaml:"undo_window"`
	// DrainInterval enables periodic drains while online. 0 disables them.
	DrainInterval time.Duration `yaml:"drain_interval"`
}

type ConnectivityConfig struct {
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	StartOffline  bool          `yaml:"start_offline"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

// Load reads the YAML config at configPath. A .env file next to the process
// is loaded first when present; ${VARS} in the YAML are expanded.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage path is required for sqlite")
		}
	case StorageRedis:
		if c.Storage.Redis.Address == "" {
			return errors.New("redis address is required for redis storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Gateway.BaseURL == "" {
		return errors.New("gateway base_url is required")
	}
	if u, err := url.Parse(c.Gateway.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway base_url %q is not an absolute URL", c.Gateway.BaseURL)
	}

	if c.Sync.MaxRetries < 1 {
		return errors.New("sync max_retries must be at least 1")
	}
	if c.Sync.UndoWindow < 0 || c.Sync.SettleDelay < 0 || c.Sync.DrainInterval < 0 {
		return errors.New("sync durations must not be negative")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "offersync"
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageSQLite
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.Path == "" {
		c.Storage.Path = "data/offersync.db"
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "offersync:"
	}

	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 10 * time.Second
	}
	if c.Gateway.RPS == 0 {
		c.Gateway.RPS = 5
	}
	if c.Gateway.Burst == 0 {
		c.Gateway.Burst = 5
	}

	if c.Sync.SettleDelay == 0 {
		c.Sync.SettleDelay = models.ReconnectSettleDelay
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = models.MaxSyncRetries
	}
	if c.Sync.SweepInterval == 0 {
		c.Sync.SweepInterval = models.ExpirationSweepInterval
	}
	if c.Sync.UndoWindow == 0 {
		c.Sync.UndoWindow = models.UndoWindow
	}

	if c.Connectivity.ProbeInterval == 0 {
		c.Connectivity.ProbeInterval = models.DefaultProbeInterval
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
