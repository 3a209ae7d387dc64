package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Claim policies for a user who already holds a session on another bin.
const (
	ClaimPolicyReject  = "reject"
	ClaimPolicyRelease = "release"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port         int
	DatabaseType string // "postgres" or "sqlite"
	DatabaseURL  string
	JWTSecret    string
	BinAPIKey    string // shared key bins send in X-Bin-Key; empty disables the check

	HeartbeatTimeout   time.Duration
	SweepInterval      time.Duration
	ClaimPolicy        string
	RejectOfflineScans bool

	CatalogFile   string
	BinsFile      string
	AdminEmail    string
	AdminPassword string

	FirebaseCredentialsBase64 string
	FirebaseCredentialsFile   string

	LogLevel slog.Level
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("⚠️  .env file not found, using environment variables from system")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults and
// validating required values.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:             8080,
		DatabaseType:     "postgres",
		HeartbeatTimeout: 5 * time.Minute,
		SweepInterval:    time.Minute,
		ClaimPolicy:      ClaimPolicyReject,
		CatalogFile:      getenv("CATALOG_FILE"),
		BinsFile:         getenv("BINS_FILE"),
		AdminEmail:       getenv("ADMIN_EMAIL"),
		AdminPassword:    getenv("ADMIN_PASSWORD"),
		DatabaseURL:      getenv("DATABASE_URL"),
		JWTSecret:        getenv("APP_JWT_SECRET"),
		BinAPIKey:        getenv("BIN_API_KEY"),

		FirebaseCredentialsBase64: getenv("FIREBASE_CREDENTIALS_BASE64"),
		FirebaseCredentialsFile:   getenv("FIREBASE_CREDENTIALS_FILE"),
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return Config{}, errors.New("invalid PORT env variable")
		}
		cfg.Port = port
	}

	if v := getenv("DATABASE_TYPE"); v != "" {
		cfg.DatabaseType = strings.ToLower(v)
	}
	if cfg.DatabaseType != "postgres" && cfg.DatabaseType != "sqlite" {
		return Config{}, fmt.Errorf("invalid DATABASE_TYPE %q (use postgres or sqlite)", cfg.DatabaseType)
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("APP_JWT_SECRET environment variable is required")
	}

	var err error
	if cfg.HeartbeatTimeout, err = durationEnv(getenv, "HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationEnv(getenv, "SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}

	if v := getenv("CLAIM_POLICY"); v != "" {
		cfg.ClaimPolicy = strings.ToLower(v)
	}
	if cfg.ClaimPolicy != ClaimPolicyReject && cfg.ClaimPolicy != ClaimPolicyRelease {
		return Config{}, fmt.Errorf("invalid CLAIM_POLICY %q (use reject or release)", cfg.ClaimPolicy)
	}

	if v := getenv("REJECT_OFFLINE_SCANS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REJECT_OFFLINE_SCANS: %w", err)
		}
		cfg.RejectOfflineScans = b
	}

	cfg.LogLevel = levelFromString(getenv("LOG_LEVEL"))

	return cfg, nil
}

func durationEnv(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	// Bare integers are seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		v = strconv.Itoa(secs) + "s"
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
