//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "CryptoFunk",
			Version:     "1.0.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "cryptofunk",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		NATS: NATSConfig{
			URL:             "nats://localhost:4222",
			EnableJetStream: true,
		},
		Signal: SignalConfig{
			Weights: map[string]float64{
				"volume_spike":        0.7,
				"rug_pull_indicators": -0.9,
			},
			MinVolumeUSD:        5000,
			MinLiquidityUSD:     10000,
			MaxRiskScore:        0.75,
			MinOpportunityScore: 0.4,
			TopSignalsCount:     5,
		},
		Cache: CacheConfig{
			HotTTL:      30 * time.Second,
			WarmTTL:     5 * time.Minute,
			ColdTTL:     time.Hour,
			MaxSizeByte: 256 * 1024 * 1024,
			L1Fraction:  0.25,
		},
		Batch: BatchConfig{
			MaxBatchSize:         50,
			BatchTimeout:         250 * time.Millisecond,
			CacheTTL:             60 * time.Second,
			MaxConcurrentBatches: 8,
		},
		Router: RouterConfig{
			Strategy: "performance_first",
			Providers: map[string]RouterProviderConfig{
				"helius": {
					Kind:         "helius",
					URLs:         map[string]string{"mainnet-beta": "https://mainnet.helius-rpc.com"},
					MonthlyQuota: 1_000_000,
					RPMLimit:     100,
					Priority:     8,
				},
			},
		},
		Multisig: MultisigConfig{
			K:               2,
			N:               3,
			TTLDefaultHours: 24,
			MaxSigners:      10,
		},
		HSM: HSMConfig{
			Provider:       "softhsm",
			KeyLabelPrefix: "cryptofunk",
		},
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			OrchestratorURL: "http://localhost:8081",
			IngressRPM:      600,
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "Valid configuration should not produce errors")
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing app name",
			modify: func(c *Config) {
				c.App.Name = ""
			},
			expectError: "app.name",
		},
		{
			name: "missing environment",
			modify: func(c *Config) {
				c.App.Environment = ""
			},
			expectError: "app.environment",
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.App.Environment = "invalid_env"
			},
			expectError: "Invalid environment",
		},
		{
			name: "missing log level",
			modify: func(c *Config) {
				c.App.LogLevel = ""
			},
			expectError: "app.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing host",
			modify: func(c *Config) {
				c.Database.Host = ""
			},
			expectError: "database.host",
		},
		{
			name: "missing port",
			modify: func(c *Config) {
				c.Database.Port = 0
			},
			expectError: "database.port",
		},
		{
			name: "invalid port - too high",
			modify: func(c *Config) {
				c.Database.Port = 70000
			},
			expectError: "Invalid port",
		},
		{
			name: "invalid port - negative",
			modify: func(c *Config) {
				c.Database.Port = -1
			},
			expectError: "Invalid port",
		},
		{
			name: "missing user",
			modify: func(c *Config) {
				c.Database.User = ""
			},
			expectError: "database.user",
		},
		{
			name: "missing database name",
			modify: func(c *Config) {
				c.Database.Database = ""
			},
			expectError: "database.database",
		},
		{
			name: "missing password in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Password = ""
			},
			expectError: "password is required",
		},
		{
			name: "invalid pool size",
			modify: func(c *Config) {
				c.Database.PoolSize = 0
			},
			expectError: "pool size must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRedis(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing host",
			modify: func(c *Config) {
				c.Redis.Host = ""
			},
			expectError: "redis.host",
		},
		{
			name: "missing port",
			modify: func(c *Config) {
				c.Redis.Port = 0
			},
			expectError: "redis.port",
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Redis.Port = 70000
			},
			expectError: "Invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateNATS(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing URL",
			modify: func(c *Config) {
				c.NATS.URL = ""
			},
			expectError: "nats.url",
		},
		{
			name: "invalid URL format",
			modify: func(c *Config) {
				c.NATS.URL = "http://localhost:4222"
			},
			expectError: "must start with 'nats://'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateSignal(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "no weights configured",
			modify: func(c *Config) {
				c.Signal.Weights = map[string]float64{}
			},
			expectError: "signal.weights",
		},
		{
			name: "invalid max risk score",
			modify: func(c *Config) {
				c.Signal.MaxRiskScore = 1.5
			},
			expectError: "Invalid max_risk_score",
		},
		{
			name: "invalid min opportunity score",
			modify: func(c *Config) {
				c.Signal.MinOpportunityScore = -0.1
			},
			expectError: "Invalid min_opportunity_score",
		},
		{
			name: "invalid top signals count",
			modify: func(c *Config) {
				c.Signal.TopSignalsCount = 0
			},
			expectError: "top_signals_count must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateCache(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "non-positive hot ttl",
			modify: func(c *Config) {
				c.Cache.HotTTL = 0
			},
			expectError: "cache.hot_ttl",
		},
		{
			name: "warm ttl not greater than hot ttl",
			modify: func(c *Config) {
				c.Cache.WarmTTL = c.Cache.HotTTL
			},
			expectError: "cache.warm_ttl",
		},
		{
			name: "cold ttl not greater than warm ttl",
			modify: func(c *Config) {
				c.Cache.ColdTTL = c.Cache.WarmTTL
			},
			expectError: "cache.cold_ttl",
		},
		{
			name: "invalid l1 fraction",
			modify: func(c *Config) {
				c.Cache.L1Fraction = 1.5
			},
			expectError: "Invalid l1_fraction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "invalid max batch size",
			modify: func(c *Config) {
				c.Batch.MaxBatchSize = 0
			},
			expectError: "max_batch_size must be at least 1",
		},
		{
			name: "non-positive batch timeout",
			modify: func(c *Config) {
				c.Batch.BatchTimeout = 0
			},
			expectError: "batch_timeout_ms must be positive",
		},
		{
			name: "invalid max concurrent batches",
			modify: func(c *Config) {
				c.Batch.MaxConcurrentBatches = 0
			},
			expectError: "max_concurrent_batches must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRouter(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "invalid strategy",
			modify: func(c *Config) {
				c.Router.Strategy = "not_a_strategy"
			},
			expectError: "Invalid router strategy",
		},
		{
			name: "no providers configured",
			modify: func(c *Config) {
				c.Router.Providers = map[string]RouterProviderConfig{}
			},
			expectError: "At least one RPC provider must be configured",
		},
		{
			name: "provider with no urls",
			modify: func(c *Config) {
				c.Router.Providers["helius"] = RouterProviderConfig{Priority: 5}
			},
			expectError: "At least one network URL is required",
		},
		{
			name: "provider priority out of range",
			modify: func(c *Config) {
				p := c.Router.Providers["helius"]
				p.Priority = 11
				c.Router.Providers["helius"] = p
			},
			expectError: "priority must be between 1-10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateMultisig(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "n below 1",
			modify: func(c *Config) {
				c.Multisig.N = 0
			},
			expectError: "multisig.n",
		},
		{
			name: "k greater than n",
			modify: func(c *Config) {
				c.Multisig.K = c.Multisig.N + 1
			},
			expectError: "multisig.k",
		},
		{
			name: "max_signers below n",
			modify: func(c *Config) {
				c.Multisig.MaxSigners = c.Multisig.N - 1
			},
			expectError: "max_signers must be at least n",
		},
		{
			name: "invalid ttl_default_hours",
			modify: func(c *Config) {
				c.Multisig.TTLDefaultHours = 0
			},
			expectError: "ttl_default_hours must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateHSM(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing provider",
			modify: func(c *Config) {
				c.HSM.Provider = ""
			},
			expectError: "hsm.provider",
		},
		{
			name: "missing key label prefix",
			modify: func(c *Config) {
				c.HSM.KeyLabelPrefix = ""
			},
			expectError: "hsm.key_label_prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateAPI(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing port",
			modify: func(c *Config) {
				c.API.Port = 0
			},
			expectError: "api.port",
		},
		{
			name: "invalid port - too high",
			modify: func(c *Config) {
				c.API.Port = 70000
			},
			expectError: "Invalid port",
		},
		{
			name: "invalid port - negative",
			modify: func(c *Config) {
				c.API.Port = -1
			},
			expectError: "Invalid port",
		},
		{
			name: "invalid ingress rpm",
			modify: func(c *Config) {
				c.API.IngressRPM = 0
			},
			expectError: "ingress_rpm must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateEnvironmentRequirements(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "ingress token missing in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.API.IngressToken = ""
			},
			expectError: "Ingress bearer token is required in production",
		},
		{
			name: "SSL disabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.API.IngressToken = "a-sufficiently-random-token-value"
				c.Database.SSLMode = "disable"
			},
			expectError: "SSL must be enabled for database in production",
		},
		{
			name: "DATABASE_URL missing in production with incomplete config",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.API.IngressToken = "a-sufficiently-random-token-value"
				c.Database.Host = ""
				// DATABASE_URL not set
				_ = os.Unsetenv("DATABASE_URL") // Test env cleanup
			},
			expectError: "DATABASE_URL is required in production",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error message 1"},
		{Field: "field2", Message: "error message 2"},
		{Field: "field3", Message: "error message 3"},
	}

	errMsg := errors.Error()

	// Check error message structure
	assert.Contains(t, errMsg, "Configuration validation failed with 3 error(s)")
	assert.Contains(t, errMsg, "1. field1: error message 1")
	assert.Contains(t, errMsg, "2. field2: error message 2")
	assert.Contains(t, errMsg, "3. field3: error message 3")
	assert.Contains(t, errMsg, "Please fix the above errors and try again")
}

func TestValidationErrors_Empty(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
}

func TestValidateAndLoad(t *testing.T) {
	// Create a temporary config file with invalid configuration
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer func() { _ = os.Remove(tmpfile.Name()) }() // Test cleanup

	// Write invalid config (missing required fields)
	invalidConfig := `
app:
  name: ""
  environment: "development"
  log_level: "info"
signal:
  weights: {}
`
	_, err = tmpfile.WriteString(invalidConfig)
	require.NoError(t, err)
	_ = tmpfile.Close() // Test cleanup

	// Try to load - should fail validation
	_, err = Load(tmpfile.Name())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "app.name") || strings.Contains(err.Error(), "signal.weights"))
}
