// Package config assembles run configuration from a .env file, DIMADB_*
// environment variables and command-line flags (flags win).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ChrisMcGann/dimadb/pkg/source"
)

// Config is the explicit configuration passed to the entry point.
type Config struct {
	// Connection descriptor
	Driver   string
	User     string
	Password string
	Host     string
	Database string
	DSN      string // overrides the descriptor when set

	Dataset  string
	LogLevel string

	Strict      bool
	Retries     int
	RetryDelay  time.Duration
	MetricsFile string
	ModsCSV     string

	ExcludeContaminants bool
	MinConfidence       string

	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	// Static S3 credentials; empty uses the default AWS credentials chain.
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string
}

// DefaultLogLevel is used when DIMADB_LOGLEVEL is unset.
const DefaultLogLevel = "WARN"

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the process environment only.
func FromEnv() Config {
	return Config{
		Driver:   getEnv("DIMADB_DRIVER", "sqlite3"),
		User:     getEnv("DIMADB_USER", ""),
		Password: getEnv("DIMADB_PASSWORD", ""),
		Host:     getEnv("DIMADB_HOST", ""),
		Database: getEnv("DIMADB_DATABASE", "dimadb.db"),
		DSN:      getEnv("DIMADB_CONNECT", ""),

		Dataset:  getEnv("DIMADB_DATASET", ""),
		LogLevel: getEnv("DIMADB_LOGLEVEL", DefaultLogLevel),

		Strict:      getEnvBool("DIMADB_STRICT", false),
		Retries:     getEnvInt("DIMADB_RETRIES", 3),
		RetryDelay:  time.Duration(getEnvInt("DIMADB_RETRY_DELAY_MS", 200)) * time.Millisecond,
		MetricsFile: getEnv("DIMADB_METRICS_FILE", ""),
		ModsCSV:     getEnv("DIMADB_MODS_CSV", ""),

		ExcludeContaminants: getEnvBool("DIMADB_EXCLUDE_CONTAMINANTS", false),
		MinConfidence:       getEnv("DIMADB_MIN_CONFIDENCE", ""),

		S3Region:    getEnv("DIMADB_S3_REGION", ""),
		S3Endpoint:  getEnv("DIMADB_S3_ENDPOINT", ""),
		S3PathStyle: getEnvBool("DIMADB_S3_PATH_STYLE", false),

		S3AccessKeyID:     getEnv("DIMADB_S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("DIMADB_S3_SECRET_ACCESS_KEY", ""),
		S3SessionToken:    getEnv("DIMADB_S3_SESSION_TOKEN", ""),
	}
}

// S3 returns the settings for opening s3:// inputs.
func (c Config) S3() source.S3Config {
	return source.S3Config{
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		SessionToken:    c.S3SessionToken,
		PathStyle:       c.S3PathStyle,
	}
}

// ConnectionString returns the DSN for the configured driver: the explicit
// DSN when set, the database path for SQLite, a postgres URL otherwise.
func (c Config) ConnectionString() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch strings.ToLower(c.Driver) {
	case "", "sqlite3", "sqlite":
		if strings.TrimSpace(c.Database) == "" {
			return "", fmt.Errorf("missing database path for driver %s", c.Driver)
		}
		return c.Database, nil
	case "pgx", "postgres", "postgresql":
		if c.Host == "" || c.Database == "" {
			return "", fmt.Errorf("host and database are required for driver %s", c.Driver)
		}
		u := url.URL{Scheme: "postgres", Host: c.Host, Path: "/" + c.Database}
		if c.User != "" {
			if c.Password != "" {
				u.User = url.UserPassword(c.User, c.Password)
			} else {
				u.User = url.User(c.User)
			}
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", c.Driver)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
