package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Router     RouterConfig     `mapstructure:"router"`
	Multisig   MultisigConfig   `mapstructure:"multisig"`
	HSM        HSMConfig        `mapstructure:"hsm"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL/pgvector settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings (warm cache tier, §4.2)
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings (mailbox + broadcast transport, §4.8)
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	EnableJetStream bool   `mapstructure:"enable_jetstream"`
}

// SignalConfig contains the Signal Scorer's weight table and filter
// thresholds (§4.1, §6.4).
type SignalConfig struct {
	Weights             map[string]float64 `mapstructure:"weights"`
	MinVolumeUSD        float64             `mapstructure:"min_volume_usd"`
	MinLiquidityUSD     float64             `mapstructure:"min_liquidity_usd"`
	MaxRiskScore        float64             `mapstructure:"max_risk_score"`
	MinOpportunityScore float64             `mapstructure:"min_opportunity_score"`
	TopSignalsCount     int                 `mapstructure:"top_signals_count"`
}

// CacheConfig contains the three-tier cache's TTL classes and size bounds
// (§4.2, §6.4).
type CacheConfig struct {
	HotTTL      time.Duration `mapstructure:"hot_ttl"`
	WarmTTL     time.Duration `mapstructure:"warm_ttl"`
	ColdTTL     time.Duration `mapstructure:"cold_ttl"`
	MaxSizeByte int64         `mapstructure:"max_size_bytes"`
	L1Fraction  float64       `mapstructure:"l1_fraction"` // fraction of MaxSizeByte reserved for the L1 tier
}

// BatchConfig contains the batch aggregator's window/size triggers (§4.4, §6.4).
type BatchConfig struct {
	MaxBatchSize         int           `mapstructure:"max_batch_size"`
	BatchTimeout         time.Duration `mapstructure:"batch_timeout_ms"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl_s"`
	MaxConcurrentBatches int           `mapstructure:"max_concurrent_batches"`
}

// RouterConfig contains the RPC router's strategy and per-provider
// configuration (§4.3, §6.4).
type RouterConfig struct {
	Strategy  string                            `mapstructure:"strategy"`
	Providers map[string]RouterProviderConfig   `mapstructure:"providers"`
}

// RouterProviderConfig is one RPC provider's static config, keyed by network
// (e.g. "mainnet-beta", "devnet") to URL.
type RouterProviderConfig struct {
	Kind           string            `mapstructure:"kind"`
	URLs           map[string]string `mapstructure:"urls"`
	APIKey         string            `mapstructure:"api_key"`
	MonthlyQuota   uint64            `mapstructure:"monthly_quota"`
	RPMLimit       uint32            `mapstructure:"rpm_limit"`
	CostPerRequest float64           `mapstructure:"cost_per_req"`
	Features       []string          `mapstructure:"features"`
	Priority       uint8             `mapstructure:"priority"`
}

// MultisigConfig contains the multi-sig execution gate's threshold
// parameters (§4.11, §6.4).
type MultisigConfig struct {
	K               int  `mapstructure:"k"`
	N               int  `mapstructure:"n"`
	Weighted        bool `mapstructure:"weighted"`
	TTLDefaultHours int  `mapstructure:"ttl_default_hours"`
	MaxSigners      int  `mapstructure:"max_signers"`
}

// HSMConfig contains the HSM abstraction's dial parameters (§4.12, §6.4).
type HSMConfig struct {
	Provider       string `mapstructure:"provider"` // "softhsm" or a real HSM/KMS provider name
	KeyLabelPrefix string `mapstructure:"key_label_prefix"`
	PIN            string `mapstructure:"pin"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`         // cmd/orchestrator's Decision/Feedback API port
	IngressPort     int    `mapstructure:"ingress_port"` // cmd/ingress's webhook listen port
	OrchestratorURL string `mapstructure:"orchestrator_url"`
	IngressToken    string `mapstructure:"ingress_token"` // bearer token the ingress webhook (§6.1) validates against
	IngressRPM      int    `mapstructure:"ingress_rpm"`   // per-IP requests/minute, default 600
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("CRYPTOFUNK")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration using comprehensive validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "CryptoFunk")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "cryptofunk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enable_jetstream", true)

	// Signal defaults (§6.4 named weight table)
	v.SetDefault("signal.weights", map[string]interface{}{
		"volume_spike":        0.7,
		"liquidity_depth":     0.6,
		"holder_growth":       0.5,
		"price_momentum":      0.6,
		"verified_contract":   0.4,
		"doxxed_team":         0.3,
		"rug_pull_indicators": -0.9,
		"freeze_authority":    -0.7,
		"mint_authority":      -0.6,
		"suspicious_metadata": -0.8,
	})
	v.SetDefault("signal.min_volume_usd", 5000.0)
	v.SetDefault("signal.min_liquidity_usd", 10000.0)
	v.SetDefault("signal.max_risk_score", 0.75)
	v.SetDefault("signal.min_opportunity_score", 0.4)
	v.SetDefault("signal.top_signals_count", 5)

	// Cache defaults (§4.2, §6.4)
	v.SetDefault("cache.hot_ttl", "30s")
	v.SetDefault("cache.warm_ttl", "5m")
	v.SetDefault("cache.cold_ttl", "1h")
	v.SetDefault("cache.max_size_bytes", int64(256*1024*1024))
	v.SetDefault("cache.l1_fraction", 0.25)

	// Batch defaults (§4.4, §6.4)
	v.SetDefault("batch.max_batch_size", 50)
	v.SetDefault("batch.batch_timeout_ms", "250ms")
	v.SetDefault("batch.cache_ttl_s", "60s")
	v.SetDefault("batch.max_concurrent_batches", 8)

	// Router defaults (§4.3, §6.4)
	v.SetDefault("router.strategy", "performance_first")

	// Multisig defaults (§4.11, §6.4)
	v.SetDefault("multisig.k", 2)
	v.SetDefault("multisig.n", 3)
	v.SetDefault("multisig.weighted", false)
	v.SetDefault("multisig.ttl_default_hours", 24)
	v.SetDefault("multisig.max_signers", 10)

	// HSM defaults (§4.12, §6.4)
	v.SetDefault("hsm.provider", "softhsm")
	v.SetDefault("hsm.key_label_prefix", "cryptofunk")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)
	v.SetDefault("api.ingress_port", 8080)
	v.SetDefault("api.orchestrator_url", "http://localhost:8081")
	v.SetDefault("api.ingress_rpm", 600)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Note: Comprehensive validation is now in validation.go
// The Config.Validate() method is called during Load()

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetOrchestratorURL returns the orchestrator URL
func (c *APIConfig) GetOrchestratorURL() string {
	return c.OrchestratorURL
}
