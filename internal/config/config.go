package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/conversion"
)

const (
	defaultAppName         = "WalletLedger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultDevSecret       = "dev-only-secret"
	defaultAdminEmail      = "admin@walletapp.com"
	defaultKafkaTopic      = "wallet.notifications"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ManagerEmail    string
	ManagerPIN      string

	LargeTransactionThreshold decimal.Decimal
	FraudAmountLimit          decimal.Decimal
	FraudTxnCount             int
	FraudWindow               time.Duration
	FXRates                   map[conversion.Pair]decimal.Decimal
	FXStrict                  bool

	AdminEmail         string
	SMTPAddr           string
	SMTPFrom           string
	SMTPUsername       string
	SMTPPassword       string
	NotifyRedisChannel string
	KafkaBrokers       []string
	KafkaTopic         string
	NotifyQueueSize    int
	NotifyWorkers      int
}

// Load reads configuration values from the environment, after applying a
// .env file when one is present, and populates a Config instance.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RefreshSecret:      os.Getenv("REFRESH_SECRET"),
		ManagerEmail:       os.Getenv("MANAGER_EMAIL"),
		ManagerPIN:         os.Getenv("MANAGER_PIN"),
		AdminEmail:         getEnv("ADMIN_EMAIL", defaultAdminEmail),
		SMTPAddr:           os.Getenv("NOTIFY_SMTP_ADDR"),
		SMTPFrom:           getEnv("NOTIFY_FROM", "no-reply@walletapp.com"),
		SMTPUsername:       os.Getenv("NOTIFY_SMTP_USERNAME"),
		SMTPPassword:       os.Getenv("NOTIFY_SMTP_PASSWORD"),
		NotifyRedisChannel: os.Getenv("NOTIFY_REDIS_CHANNEL"),
		KafkaTopic:         getEnv("NOTIFY_KAFKA_TOPIC", defaultKafkaTopic),
		FXRates:            conversion.DefaultRates(),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("", "ACCESS_TOKEN_TTL", defaultAccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("", "REFRESH_TOKEN_TTL", defaultRefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.LargeTransactionThreshold, err = decimalEnv("LARGE_TRANSACTION_THRESHOLD", "100000"); err != nil {
		return Config{}, err
	}
	if cfg.FraudAmountLimit, err = decimalEnv("FRAUD_AMOUNT_LIMIT", "500000"); err != nil {
		return Config{}, err
	}
	if cfg.FraudTxnCount, err = intEnv("FRAUD_TXN_COUNT", 3); err != nil {
		return Config{}, err
	}
	minutes, err := intEnv("FRAUD_TIME_WINDOW_MINUTES", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.FraudWindow = time.Duration(minutes) * time.Minute
	if cfg.NotifyQueueSize, err = intEnv("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return Config{}, err
	}
	if cfg.NotifyWorkers, err = intEnv("NOTIFY_WORKERS", 2); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("FX_RATES"); v != "" {
		rates, err := conversion.ParseRates(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FX_RATES: %w", err)
		}
		cfg.FXRates = rates
	}
	if v := os.Getenv("FX_STRICT"); v != "" {
		if cfg.FXStrict, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid FX_STRICT: %w", err)
		}
	}
	if v := os.Getenv("NOTIFY_KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaultDevSecret
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.JWTSecret + ":refresh"
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a local development mode, where
// Postgres and Redis are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv prefers a whole-seconds variable over a Go duration string.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
