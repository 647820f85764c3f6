// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases, always absolute
	Port     int
	LogLevel string
	DevMode  bool
	// SQLiteDriver selects "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo)
	SQLiteDriver string

	Analytics AnalyticsConfig
	Prices    PricesConfig
	Backup    BackupConfig
}

// AnalyticsConfig holds the defaults and resource caps of the analytics core.
type AnalyticsConfig struct {
	RiskFreeRate       float64
	LookbackDays       int
	MonteCarloRuns     int
	MonteCarloMaxRuns  int
	OptimizerMaxIters  int
	OptimizerTolerance float64
	ChartRollingWindow int
	HistogramBins      int
}

// PricesConfig configures the market data source.
type PricesConfig struct {
	BaseURL         string
	RefreshSchedule string
}

// BackupConfig configures R2 backups. Backups are disabled unless all
// credentials and the bucket are set.
type BackupConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Schedule        string
	RetentionDays   int
}

// Enabled reports whether R2 credentials are configured.
func (b BackupConfig) Enabled() bool {
	return b.AccountID != "" && b.AccessKeyID != "" && b.SecretAccessKey != "" && b.BucketName != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PA_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("PA_PORT", 8080),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		SQLiteDriver: getEnv("PA_SQLITE_DRIVER", "sqlite"),
		Analytics: AnalyticsConfig{
			RiskFreeRate:       getEnvAsFloat("PA_RISK_FREE_RATE", 0.02),
			LookbackDays:       getEnvAsInt("PA_LOOKBACK_DAYS", 365),
			MonteCarloRuns:     getEnvAsInt("PA_MC_ITERATIONS", 10000),
			MonteCarloMaxRuns:  getEnvAsInt("PA_MC_MAX_ITERATIONS", 100000),
			OptimizerMaxIters:  getEnvAsInt("PA_OPT_MAX_ITERATIONS", 10000),
			OptimizerTolerance: getEnvAsFloat("PA_OPT_TOLERANCE", 1e-9),
			ChartRollingWindow: getEnvAsInt("PA_ROLLING_WINDOW", 21),
			HistogramBins:      getEnvAsInt("PA_HISTOGRAM_BINS", 50),
		},
		Prices: PricesConfig{
			BaseURL:         getEnv("PA_PRICE_BASE_URL", "https://query1.finance.yahoo.com"),
			RefreshSchedule: getEnv("PA_PRICE_REFRESH_SCHEDULE", "0 30 22 * * MON-FRI"),
		},
		Backup: BackupConfig{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Schedule:        getEnv("PA_BACKUP_SCHEDULE", "0 0 3 * * *"),
			RetentionDays:   getEnvAsInt("PA_BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the file path of the named database inside DataDir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SQLiteDriver != "sqlite" && c.SQLiteDriver != "sqlite3" {
		return fmt.Errorf("PA_SQLITE_DRIVER must be sqlite or sqlite3, got %q", c.SQLiteDriver)
	}

	a := c.Analytics
	if a.LookbackDays < 2 {
		return fmt.Errorf("PA_LOOKBACK_DAYS must be at least 2, got %d", a.LookbackDays)
	}
	if a.MonteCarloMaxRuns < 1 {
		return fmt.Errorf("PA_MC_MAX_ITERATIONS must be positive, got %d", a.MonteCarloMaxRuns)
	}
	if a.MonteCarloRuns < 1 || a.MonteCarloRuns > a.MonteCarloMaxRuns {
		return fmt.Errorf("PA_MC_ITERATIONS must be in [1, %d], got %d", a.MonteCarloMaxRuns, a.MonteCarloRuns)
	}
	if a.OptimizerMaxIters < 1 {
		return fmt.Errorf("PA_OPT_MAX_ITERATIONS must be positive, got %d", a.OptimizerMaxIters)
	}
	if a.OptimizerTolerance <= 0 {
		return fmt.Errorf("PA_OPT_TOLERANCE must be positive, got %g", a.OptimizerTolerance)
	}
	if a.ChartRollingWindow < 2 {
		return fmt.Errorf("PA_ROLLING_WINDOW must be at least 2, got %d", a.ChartRollingWindow)
	}
	if a.HistogramBins < 1 {
		return fmt.Errorf("PA_HISTOGRAM_BINS must be positive, got %d", a.HistogramBins)
	}

	if c.Backup.Enabled() && c.Backup.RetentionDays < 1 {
		return fmt.Errorf("PA_BACKUP_RETENTION_DAYS must be positive, got %d", c.Backup.RetentionDays)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
