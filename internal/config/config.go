package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pix-reconciliation-backend/internal/services/matching"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logger   LoggerConfig
	Matching matching.Config
	// RerunDebounce delays the re-run scheduled after an ingestion so that
	// uploads arriving together share one run.
	RerunDebounce time.Duration
}

type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LoggerConfig struct {
	Level string
}

// Load reads configuration from the environment. A value that is set but
// cannot be parsed, or matching settings that do not validate, fail with a
// ConfigurationError so a bad deployment stops at startup.
func Load() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", ":8080"),
			AllowedOrigins:  []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
			ShutdownTimeout: env.asDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			DSN:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    env.asInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    env.asInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: env.asDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Matching:      loadMatching(env),
		RerunDebounce: env.asDuration("RERUN_DEBOUNCE", 2*time.Second),
	}
	if env.err != nil {
		return nil, env.err
	}
	if err := cfg.Matching.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadMatching(env *envReader) matching.Config {
	m := matching.DefaultConfig()
	m.AmountTolerance = env.asDecimal("MATCH_AMOUNT_TOLERANCE", m.AmountTolerance)
	m.DateWindowDays = env.asInt("MATCH_DATE_WINDOW_DAYS", m.DateWindowDays)
	m.DateScoreFloor = env.asFloat("MATCH_DATE_SCORE_FLOOR", m.DateScoreFloor)
	m.Weights = matching.Weights{
		ID:     env.asFloat("MATCH_WEIGHT_ID", m.Weights.ID),
		Amount: env.asFloat("MATCH_WEIGHT_AMOUNT", m.Weights.Amount),
		Date:   env.asFloat("MATCH_WEIGHT_DATE", m.Weights.Date),
		Name:   env.asFloat("MATCH_WEIGHT_NAME", m.Weights.Name),
	}
	m.Thresholds = matching.Thresholds{
		AutoMatch:    env.asFloat("MATCH_AUTO_THRESHOLD", m.Thresholds.AutoMatch),
		ManualReview: env.asFloat("MATCH_REVIEW_THRESHOLD", m.Thresholds.ManualReview),
	}
	m.MaxCandidatesPerReceipt = env.asInt("MATCH_MAX_CANDIDATES", m.MaxCandidatesPerReceipt)
	m.MinAutoMatchExtractionConfidence = env.asFloat("MATCH_MIN_EXTRACTION_CONFIDENCE", m.MinAutoMatchExtractionConfidence)
	m.StrictPrefilterAbove = env.asInt("MATCH_STRICT_PREFILTER_ABOVE", m.StrictPrefilterAbove)
	m.StrictDateWindowDays = env.asInt("MATCH_STRICT_DATE_WINDOW_DAYS", m.StrictDateWindowDays)
	m.MaxBankTransactions = env.asInt("MATCH_MAX_BANK_TRANSACTIONS", m.MaxBankTransactions)
	m.MaxPixReceipts = env.asInt("MATCH_MAX_PIX_RECEIPTS", m.MaxPixReceipts)
	return m
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and keeps the first one that was set to
// something unparsable.
type envReader struct {
	err error
}

func (r *envReader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func (r *envReader) fail(key, value string) {
	if r.err == nil {
		r.err = &matching.ConfigurationError{Field: key, Reason: fmt.Sprintf("cannot parse %q", value)}
	}
}

func (r *envReader) asInt(key string, defaultValue int) int {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value)
		return defaultValue
	}
	return n
}

func (r *envReader) asFloat(key string, defaultValue float64) float64 {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value)
		return defaultValue
	}
	return f
}

func (r *envReader) asDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		r.fail(key, value)
		return defaultValue
	}
	return d
}

func (r *envReader) asDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value)
		return defaultValue
	}
	return d
}
