package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the trading server.
type Config struct {
	Port            int
	Env             string
	LogLevel        string
	LogFile         string
	DatabasePath    string
	JWTSecret       string
	TxTimeout       time.Duration
	ShutdownTimeout time.Duration
	InitialCredit   decimal.Decimal
	FeeRate         decimal.Decimal
	AssetsFile      string
	PriceVariance   float64
	CORSOrigins     []string
}

// Production reports whether the server runs with ENV=production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Load reads an optional .env file, then environment variables, applies
// defaults and validates values. Variables already set in the environment
// take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	txTimeout, err := getDuration("TX_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TX_TIMEOUT: %w", err)
	}
	if txTimeout <= 0 {
		return nil, fmt.Errorf("invalid TX_TIMEOUT: must be positive")
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	initialCredit, err := getDecimal("INITIAL_CREDIT", decimal.RequireFromString("5000.00"))
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_CREDIT: %w", err)
	}
	if initialCredit.IsNegative() {
		return nil, fmt.Errorf("invalid INITIAL_CREDIT: must not be negative")
	}

	feeRate, err := getDecimal("FEE_RATE", decimal.RequireFromString("0.001"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_RATE: %w", err)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid FEE_RATE: must be in [0, 1)")
	}

	variance, err := getFloat("PRICE_VARIANCE", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_VARIANCE: %w", err)
	}
	if variance < 0 || variance >= 1 {
		return nil, fmt.Errorf("invalid PRICE_VARIANCE: must be in [0, 1)")
	}

	return &Config{
		Port:            port,
		Env:             getStr("ENV", "development"),
		LogLevel:        logLevel,
		LogFile:         os.Getenv("LOG_FILE"),
		DatabasePath:    getStr("DATABASE_PATH", "klear.db"),
		JWTSecret:       getStr("JWT_SECRET", "klear-secret-key"),
		TxTimeout:       txTimeout,
		ShutdownTimeout: shutdownTimeout,
		InitialCredit:   initialCredit,
		FeeRate:         feeRate,
		AssetsFile:      os.Getenv("ASSETS_FILE"),
		PriceVariance:   variance,
		CORSOrigins:     splitList(getStr("CORS_ORIGINS", "http://localhost:3000")),
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return decimal.NewFromString(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
