package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateSignal()...)
	errors = append(errors, c.validateCache()...)
	errors = append(errors, c.validateBatch()...)
	errors = append(errors, c.validateRouter()...)
	errors = append(errors, c.validateMultisig()...)
	errors = append(errors, c.validateHSM()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "Database port is required",
		})
	} else if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	// Warn about missing password in non-development environments
	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: "Redis port is required",
		})
	} else if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	return errors
}

func (c *Config) validateSignal() ValidationErrors {
	var errors ValidationErrors

	if len(c.Signal.Weights) == 0 {
		errors = append(errors, ValidationError{
			Field:   "signal.weights",
			Message: "At least one named signal weight is required",
		})
	}

	if c.Signal.MinVolumeUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "signal.min_volume_usd",
			Message: "min_volume_usd must be non-negative",
		})
	}

	if c.Signal.MinLiquidityUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "signal.min_liquidity_usd",
			Message: "min_liquidity_usd must be non-negative",
		})
	}

	if c.Signal.MaxRiskScore <= 0 || c.Signal.MaxRiskScore > 1 {
		errors = append(errors, ValidationError{
			Field:   "signal.max_risk_score",
			Message: fmt.Sprintf("Invalid max_risk_score %.2f. Must be between 0-1", c.Signal.MaxRiskScore),
		})
	}

	if c.Signal.MinOpportunityScore < 0 || c.Signal.MinOpportunityScore > 1 {
		errors = append(errors, ValidationError{
			Field:   "signal.min_opportunity_score",
			Message: fmt.Sprintf("Invalid min_opportunity_score %.2f. Must be between 0-1", c.Signal.MinOpportunityScore),
		})
	}

	if c.Signal.TopSignalsCount < 1 {
		errors = append(errors, ValidationError{
			Field:   "signal.top_signals_count",
			Message: "top_signals_count must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateCache() ValidationErrors {
	var errors ValidationErrors

	if c.Cache.HotTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.hot_ttl",
			Message: "hot_ttl must be positive",
		})
	}

	if c.Cache.WarmTTL <= c.Cache.HotTTL {
		errors = append(errors, ValidationError{
			Field:   "cache.warm_ttl",
			Message: "warm_ttl must be greater than hot_ttl",
		})
	}

	if c.Cache.ColdTTL <= c.Cache.WarmTTL {
		errors = append(errors, ValidationError{
			Field:   "cache.cold_ttl",
			Message: "cold_ttl must be greater than warm_ttl",
		})
	}

	if c.Cache.MaxSizeByte < 1 {
		errors = append(errors, ValidationError{
			Field:   "cache.max_size_bytes",
			Message: "max_size_bytes must be at least 1",
		})
	}

	if c.Cache.L1Fraction <= 0 || c.Cache.L1Fraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "cache.l1_fraction",
			Message: fmt.Sprintf("Invalid l1_fraction %.2f. Must be between 0-1", c.Cache.L1Fraction),
		})
	}

	return errors
}

func (c *Config) validateBatch() ValidationErrors {
	var errors ValidationErrors

	if c.Batch.MaxBatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "batch.max_batch_size",
			Message: "max_batch_size must be at least 1",
		})
	}

	if c.Batch.BatchTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "batch.batch_timeout_ms",
			Message: "batch_timeout_ms must be positive",
		})
	}

	if c.Batch.MaxConcurrentBatches < 1 {
		errors = append(errors, ValidationError{
			Field:   "batch.max_concurrent_batches",
			Message: "max_concurrent_batches must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRouter() ValidationErrors {
	var errors ValidationErrors

	validStrategies := []string{"cost_optimized", "performance_first", "round_robin", "weighted_round_robin", "enhanced_data_first"}
	valid := false
	for _, s := range validStrategies {
		if c.Router.Strategy == s {
			valid = true
			break
		}
	}
	if !valid {
		errors = append(errors, ValidationError{
			Field:   "router.strategy",
			Message: fmt.Sprintf("Invalid router strategy '%s'. Must be one of: %v", c.Router.Strategy, validStrategies),
		})
	}

	if len(c.Router.Providers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "router.providers",
			Message: "At least one RPC provider must be configured",
		})
	}

	for name, p := range c.Router.Providers {
		if len(p.URLs) == 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("router.providers.%s.urls", name),
				Message: "At least one network URL is required",
			})
		}
		if p.Priority < 1 || p.Priority > 10 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("router.providers.%s.priority", name),
				Message: "priority must be between 1-10",
			})
		}
	}

	return errors
}

func (c *Config) validateMultisig() ValidationErrors {
	var errors ValidationErrors

	if c.Multisig.N < 1 {
		errors = append(errors, ValidationError{
			Field:   "multisig.n",
			Message: "n must be at least 1",
		})
	}

	if c.Multisig.K < 1 || c.Multisig.K > c.Multisig.N {
		errors = append(errors, ValidationError{
			Field:   "multisig.k",
			Message: fmt.Sprintf("k (%d) must be between 1 and n (%d)", c.Multisig.K, c.Multisig.N),
		})
	}

	if c.Multisig.MaxSigners < c.Multisig.N {
		errors = append(errors, ValidationError{
			Field:   "multisig.max_signers",
			Message: "max_signers must be at least n",
		})
	}

	if c.Multisig.TTLDefaultHours < 1 {
		errors = append(errors, ValidationError{
			Field:   "multisig.ttl_default_hours",
			Message: "ttl_default_hours must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateHSM() ValidationErrors {
	var errors ValidationErrors

	if c.HSM.Provider == "" {
		errors = append(errors, ValidationError{
			Field:   "hsm.provider",
			Message: "HSM provider is required",
		})
	}

	if c.HSM.KeyLabelPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "hsm.key_label_prefix",
			Message: "HSM key_label_prefix is required",
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: "API port is required",
		})
	} else if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
		})
	}

	if c.API.IngressRPM < 1 {
		errors = append(errors, ValidationError{
			Field:   "api.ingress_rpm",
			Message: "ingress_rpm must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	// Production-specific validations
	if c.App.Environment == "production" {
		// Validate production secrets strength
		secretErrors := ValidateProductionSecrets(c)
		errors = append(errors, secretErrors...)

		if c.API.IngressToken == "" {
			errors = append(errors, ValidationError{
				Field:   "api.ingress_token",
				Message: "Ingress bearer token is required in production",
			})
		}

		// Ensure SSL for database in production
		if c.Database.SSLMode == "disable" {
			errors = append(errors, ValidationError{
				Field:   "database.ssl_mode",
				Message: "SSL must be enabled for database in production",
			})
		}
	}

	// Check critical environment variables
	criticalEnvVars := []string{
		"DATABASE_URL", // Can be constructed from config, but should be set
	}

	for _, envVar := range criticalEnvVars {
		if os.Getenv(envVar) == "" && c.App.Environment == "production" {
			// DATABASE_URL is optional if database config is complete
			if envVar == "DATABASE_URL" {
				// Check if database config is complete
				if c.Database.Host != "" && c.Database.Database != "" {
					continue // Config is complete, no need for DATABASE_URL
				}
			}

			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("env.%s", envVar),
				Message: fmt.Sprintf("Environment variable %s is required in production", envVar),
			})
		}
	}

	return errors
}

// ValidateAndLoad loads and validates configuration
// Returns the loaded config and any validation errors
// configPath can be empty to use default config locations
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validation is already called within Load(), but we can call it again
	// for explicit validation if Load() is modified in the future
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
