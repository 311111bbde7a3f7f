package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider types.
const (
	ProviderHTTP       = "http"
	ProviderSynthetic  = "synthetic"
	ProviderClickHouse = "clickhouse"
	ProviderSQLite     = "sqlite"
	ProviderPostgres   = "postgres"
	ProviderPolygon    = "polygon"
	ProviderAlpha      = "alphavantage"
)

var assetClasses = []string{"All", "Equities", "Fixed Income", "FX", "Commodities", "Alternatives", "Cash", "Vol/Risk"}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RefreshRate     float64       `yaml:"refresh_rate_per_minute"`
		RefreshBurst    int           `yaml:"refresh_burst"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Analytics struct {
		NoiseThreshold    float64 `yaml:"noise_threshold"`
		TapeSize          int     `yaml:"tape_size"`
		SummarySize       int     `yaml:"summary_size"`
		DefaultAssetClass string  `yaml:"default_asset_class"`
	} `yaml:"analytics"`
	Narrative struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"narrative"`
	Provider struct {
		Type            string        `yaml:"type"`
		BaseURL         string        `yaml:"base_url"`
		APIKey          string        `yaml:"api_key"`
		LookbackDays    int           `yaml:"lookback_days"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		CacheTTL        time.Duration `yaml:"cache_ttl"`
		Timeout         time.Duration `yaml:"timeout"`
		Seed            int64         `yaml:"seed"`
		Calendar        string        `yaml:"calendar"`
		Symbols         []string      `yaml:"symbols"`
		Pacing          time.Duration `yaml:"pacing"`
	} `yaml:"provider"`
	Cache struct {
		MemorySize int `yaml:"memory_size"`
		Redis      struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Database struct {
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		SnapshotTopic     string   `yaml:"snapshot_topic"`
		ObservationsTopic string   `yaml:"observations_topic"`
		RequiredAcks      int      `yaml:"required_acks"`
		Compression       string   `yaml:"compression"`
		Consumer          struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

// Default returns a config that runs standalone on synthetic data.
func Default() *Config {
	c := &Config{Environment: "development"}
	c.Server.Port = 8080
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.RefreshRate = 6
	c.Server.RefreshBurst = 2
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Log.Output = "stdout"
	c.Analytics.TapeSize = 20
	c.Analytics.SummarySize = 3
	c.Analytics.DefaultAssetClass = "All"
	c.Narrative.Timeout = 10 * time.Second
	c.Provider.Type = ProviderSynthetic
	c.Provider.LookbackDays = 90
	c.Provider.RefreshInterval = 6 * time.Hour
	c.Provider.CacheTTL = 4 * time.Hour
	c.Provider.Timeout = 30 * time.Second
	c.Provider.Seed = 42
	c.Provider.Calendar = "xnys"
	c.Cache.MemorySize = 64
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "gzip"
	c.Kafka.Consumer.GroupID = "capflow"
	c.Kafka.Consumer.Workers = 1
	c.Kafka.Consumer.RetryMax = 3
	c.Kafka.Consumer.BackoffMin = 50 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 2 * time.Second
	return c
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FLOW_PROVIDER"); v != "" {
		c.Provider.Type = v
	}
	if v := os.Getenv("FLOW_API_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("FLOW_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	if v := os.Getenv("NOISE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("NOISE_THRESHOLD: %w", err)
		}
		c.Analytics.NoiseThreshold = f
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Analytics.NoiseThreshold < 0 {
		return fmt.Errorf("analytics.noise_threshold must be >= 0")
	}
	if c.Provider.LookbackDays <= 0 {
		return fmt.Errorf("provider.lookback_days must be positive")
	}
	if c.Provider.RefreshInterval > 0 && c.Provider.CacheTTL >= c.Provider.RefreshInterval {
		return fmt.Errorf("provider.cache_ttl (%s) must be shorter than provider.refresh_interval (%s)",
			c.Provider.CacheTTL, c.Provider.RefreshInterval)
	}
	if c.Analytics.DefaultAssetClass != "" && !slices.Contains(assetClasses, c.Analytics.DefaultAssetClass) {
		return fmt.Errorf("analytics.default_asset_class must be one of %s; got '%s'",
			strings.Join(assetClasses, ", "), c.Analytics.DefaultAssetClass)
	}
	switch c.Provider.Type {
	case ProviderSynthetic:
	case ProviderHTTP:
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required for http provider")
		}
	case ProviderPolygon, ProviderAlpha:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for %s provider", c.Provider.Type)
		}
	case ProviderClickHouse:
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for clickhouse provider")
		}
	case ProviderSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for sqlite provider")
		}
	case ProviderPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for postgres provider")
		}
	default:
		return fmt.Errorf("provider.type must be one of http, synthetic, polygon, alphavantage, clickhouse, sqlite, postgres; got '%s'", c.Provider.Type)
	}
	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when redis is enabled")
	}
	if c.Kafka.ObservationsTopic != "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka.observations_topic is set")
	}
	if c.Kafka.ObservationsTopic != "" && !c.StoreBacked() {
		return fmt.Errorf("kafka.observations_topic needs a store-backed provider (clickhouse, sqlite, postgres)")
	}
	return nil
}

// StoreBacked reports whether the provider reads from an observation store.
func (c *Config) StoreBacked() bool {
	switch c.Provider.Type {
	case ProviderClickHouse, ProviderSQLite, ProviderPostgres:
		return true
	}
	return false
}
