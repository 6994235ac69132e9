// Package config loads docchat settings from the environment, an optional .env file
// and an optional YAML overlay.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Retrieval backend
	BackendURL string
	UserID     string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Timing
	RevealInterval   time.Duration
	UploadTimeout    time.Duration
	FlashcardTimeout time.Duration
	AutoNameDelay    time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config for the YAML overlay. Empty fields leave the
// environment value in place.
type fileConfig struct {
	BackendURL string `yaml:"backend_url"`
	UserID     string `yaml:"user_id"`
	SurrealDB  struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
		AuthLevel string `yaml:"auth_level"`
	} `yaml:"surrealdb"`
	RevealInterval   string `yaml:"reveal_interval"`
	UploadTimeout    string `yaml:"upload_timeout"`
	FlashcardTimeout string `yaml:"flashcard_timeout"`
	AutoNameDelay    string `yaml:"autoname_delay"`
	LogFile          string `yaml:"log_file"`
	LogLevel         string `yaml:"log_level"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; existing variables win.
// When DOCCHAT_CONFIG names a YAML file its values override the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()

	if path := os.Getenv("DOCCHAT_CONFIG"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables only.
func FromEnv() Config {
	return Config{
		BackendURL: strings.TrimRight(getEnv("DOCCHAT_BACKEND_URL", "http://localhost:8000"), "/"),
		UserID:     getEnv("DOCCHAT_USER_ID", "local"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8001/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "docchat"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		RevealInterval:   getDuration("DOCCHAT_REVEAL_INTERVAL", 30*time.Millisecond),
		UploadTimeout:    getDuration("DOCCHAT_UPLOAD_TIMEOUT", 120*time.Second),
		FlashcardTimeout: getDuration("DOCCHAT_FLASHCARD_TIMEOUT", 60*time.Second),
		AutoNameDelay:    getDuration("DOCCHAT_AUTONAME_DELAY", 2*time.Second),

		LogFile:  getEnv("DOCCHAT_LOG_FILE", "/tmp/docchat.log"),
		LogLevel: parseLogLevel(getEnv("DOCCHAT_LOG_LEVEL", "INFO")),
	}
}

// ApplyFile overlays values from a YAML file onto cfg.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.BackendURL, strings.TrimRight(fc.BackendURL, "/"))
	setString(&c.UserID, fc.UserID)
	setString(&c.SurrealDBURL, fc.SurrealDB.URL)
	setString(&c.SurrealDBNamespace, fc.SurrealDB.Namespace)
	setString(&c.SurrealDBDatabase, fc.SurrealDB.Database)
	setString(&c.SurrealDBUser, fc.SurrealDB.User)
	setString(&c.SurrealDBPass, fc.SurrealDB.Pass)
	setString(&c.SurrealDBAuthLevel, fc.SurrealDB.AuthLevel)
	setString(&c.LogFile, fc.LogFile)
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"reveal_interval", fc.RevealInterval, &c.RevealInterval},
		{"upload_timeout", fc.UploadTimeout, &c.UploadTimeout},
		{"flashcard_timeout", fc.FlashcardTimeout, &c.FlashcardTimeout},
		{"autoname_delay", fc.AutoNameDelay, &c.AutoNameDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
