// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/finsentry/finsentry/internal/rules"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Rate limiting on the check endpoint
	RateLimitRPM int

	// Rule table. The evaluators read these through Rules(); keeping them
	// here makes the point values and thresholds deployable configuration
	// rather than code.
	AmountAnomalyPoints  int
	AmountAnomalyEnabled bool
	UnusualTimePoints    int
	UnusualTimeEnabled   bool
	HighFrequencyPoints  int
	HighFrequencyEnabled bool
	BlockPressurePoints  int
	BlockPressureCap     int
	BlockPressureEnabled bool

	SingleRuleThreshold      int
	CompositeThreshold       int
	FrequencyWindowMinutes   int
	FrequencyLimit           int
	BlockPressureWindowHours int
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultRateLimitRPM = 600
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),

		AmountAnomalyPoints:  getEnvInt("RULE_AMOUNT_ANOMALY_POINTS", rules.DefaultAmountAnomalyPoints),
		AmountAnomalyEnabled: getEnvBool("RULE_AMOUNT_ANOMALY_ENABLED", true),
		UnusualTimePoints:    getEnvInt("RULE_UNUSUAL_TIME_POINTS", rules.DefaultUnusualTimePoints),
		UnusualTimeEnabled:   getEnvBool("RULE_UNUSUAL_TIME_ENABLED", true),
		HighFrequencyPoints:  getEnvInt("RULE_HIGH_FREQUENCY_POINTS", rules.DefaultHighFrequencyPoints),
		HighFrequencyEnabled: getEnvBool("RULE_HIGH_FREQUENCY_ENABLED", true),
		BlockPressurePoints:  getEnvInt("RULE_BLOCK_PRESSURE_POINTS", rules.DefaultBlockPressurePoints),
		BlockPressureCap:     getEnvInt("BLOCK_PRESSURE_CAP", rules.DefaultBlockPressureCap),
		BlockPressureEnabled: getEnvBool("RULE_BLOCK_PRESSURE_ENABLED", true),

		SingleRuleThreshold:      getEnvInt("SINGLE_RULE_THRESHOLD", rules.DefaultSingleRuleThreshold),
		CompositeThreshold:       getEnvInt("COMPOSITE_THRESHOLD", rules.DefaultCompositeThreshold),
		FrequencyWindowMinutes:   getEnvInt("FREQUENCY_WINDOW_MINUTES", int(rules.DefaultFrequencyWindow/time.Minute)),
		FrequencyLimit:           getEnvInt("FREQUENCY_LIMIT", rules.DefaultFrequencyLimit),
		BlockPressureWindowHours: getEnvInt("BLOCK_PRESSURE_WINDOW_HOURS", int(rules.DefaultBlockPressureWindow/time.Hour)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.CompositeThreshold <= 0 {
		return fmt.Errorf("COMPOSITE_THRESHOLD must be positive")
	}
	if c.SingleRuleThreshold <= 0 {
		return fmt.Errorf("SINGLE_RULE_THRESHOLD must be positive")
	}
	if c.FrequencyWindowMinutes <= 0 {
		return fmt.Errorf("FREQUENCY_WINDOW_MINUTES must be positive")
	}
	if c.FrequencyLimit < 0 {
		return fmt.Errorf("FREQUENCY_LIMIT must not be negative")
	}
	if c.BlockPressureWindowHours <= 0 {
		return fmt.Errorf("BLOCK_PRESSURE_WINDOW_HOURS must be positive")
	}
	for name, points := range map[string]int{
		"RULE_AMOUNT_ANOMALY_POINTS": c.AmountAnomalyPoints,
		"RULE_UNUSUAL_TIME_POINTS":   c.UnusualTimePoints,
		"RULE_HIGH_FREQUENCY_POINTS": c.HighFrequencyPoints,
		"RULE_BLOCK_PRESSURE_POINTS": c.BlockPressurePoints,
	} {
		if points < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Rules builds the rule table from the loaded configuration.
func (c *Config) Rules() rules.Config {
	r := rules.DefaultConfig()
	r.AmountAnomalyPoints = c.AmountAnomalyPoints
	r.AmountAnomalyEnabled = c.AmountAnomalyEnabled
	r.UnusualTimePoints = c.UnusualTimePoints
	r.UnusualTimeEnabled = c.UnusualTimeEnabled
	r.HighFrequencyPoints = c.HighFrequencyPoints
	r.HighFrequencyEnabled = c.HighFrequencyEnabled
	r.BlockPressurePoints = c.BlockPressurePoints
	r.BlockPressureCap = c.BlockPressureCap
	r.BlockPressureEnabled = c.BlockPressureEnabled
	r.SingleRuleThreshold = c.SingleRuleThreshold
	r.CompositeThreshold = c.CompositeThreshold
	r.FrequencyWindow = time.Duration(c.FrequencyWindowMinutes) * time.Minute
	r.FrequencyLimit = c.FrequencyLimit
	r.BlockPressureWindow = time.Duration(c.BlockPressureWindowHours) * time.Hour
	return r
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
