package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\nserver:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("expected port override, got %d", c.Server.Port)
	}
	if c.Provider.Type != ProviderSynthetic || c.Provider.RefreshInterval != 6*time.Hour {
		t.Fatalf("expected provider defaults, got %+v", c.Provider)
	}
	if c.Provider.CacheTTL >= c.Provider.RefreshInterval {
		t.Fatalf("cache ttl %s must be shorter than refresh interval %s", c.Provider.CacheTTL, c.Provider.RefreshInterval)
	}
	if c.Analytics.TapeSize != 20 || c.Analytics.SummarySize != 3 {
		t.Fatalf("expected analytics defaults, got %+v", c.Analytics)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("FLOW_PROVIDER", "http")
	t.Setenv("FLOW_API_URL", "http://flows.local")
	t.Setenv("FLOW_API_KEY", "secret")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("NOISE_THRESHOLD", "0.5")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Provider.Type != ProviderHTTP || c.Provider.BaseURL != "http://flows.local" || c.Provider.APIKey != "secret" {
		t.Fatalf("provider env not applied: %+v", c.Provider)
	}
	if len(c.Kafka.Brokers) != 2 || !c.Cache.Redis.Enabled || c.Analytics.NoiseThreshold != 0.5 {
		t.Fatalf("env not applied: brokers=%v redis=%v noise=%v", c.Kafka.Brokers, c.Cache.Redis.Enabled, c.Analytics.NoiseThreshold)
	}
}

func TestLoadWithEnvBadNoise(t *testing.T) {
	t.Setenv("NOISE_THRESHOLD", "lots")
	if _, err := LoadWithEnv(writeConfig(t, "environment: test\n")); err == nil {
		t.Fatalf("expected error for bad NOISE_THRESHOLD")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"ok", func(*Config) {}, ""},
		{"no env", func(c *Config) { c.Environment = "" }, "environment"},
		{"negative noise", func(c *Config) { c.Analytics.NoiseThreshold = -1 }, "noise_threshold"},
		{"http without url", func(c *Config) { c.Provider.Type = ProviderHTTP }, "base_url"},
		{"sqlite without path", func(c *Config) { c.Provider.Type = ProviderSQLite }, "sqlite_path"},
		{"polygon without key", func(c *Config) { c.Provider.Type = ProviderPolygon }, "api_key"},
		{"alphavantage with key", func(c *Config) {
			c.Provider.Type = ProviderAlpha
			c.Provider.APIKey = "k"
		}, ""},
		{"cache outlives refresh", func(c *Config) { c.Provider.CacheTTL = c.Provider.RefreshInterval }, "cache_ttl"},
		{"unknown asset class", func(c *Config) { c.Analytics.DefaultAssetClass = "Stamps" }, "default_asset_class"},
		{"unknown provider", func(c *Config) { c.Provider.Type = "ftp" }, "provider.type"},
		{"redis without addr", func(c *Config) { c.Cache.Redis.Enabled = true }, "redis.addr"},
		{"ingest without brokers", func(c *Config) { c.Kafka.ObservationsTopic = "obs" }, "brokers"},
		{"ingest without store", func(c *Config) {
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.ObservationsTopic = "obs"
		}, "store-backed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mut(c)
			err := c.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
