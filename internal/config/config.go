// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// StorageMode selects which stores serve requests.
type StorageMode string

const (
	// ModeRemote uses the remote store only; an unreachable remote is fatal at startup.
	ModeRemote StorageMode = "remote"
	// ModeLocal uses the JSON data file only.
	ModeLocal StorageMode = "local"
	// ModeHybrid prefers the remote store and falls back to the data file.
	ModeHybrid StorageMode = "hybrid"
)

// ParseStorageMode validates s.
func ParseStorageMode(s string) (StorageMode, error) {
	switch m := StorageMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRemote, ModeLocal, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("unknown storage mode %q (want remote, local or hybrid)", s)
}

// Remote drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Remote  RemoteConfig
	App     AppConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
	MaxBodyBytes int64
}

// StorageConfig holds the mode and the data file location.
type StorageConfig struct {
	Mode     StorageMode
	DataFile string
}

// RemoteConfig holds the remote store connection settings.
type RemoteConfig struct {
	Driver           string
	URI              string
	Database         string
	ConnectTimeout   time.Duration
	OpTimeout        time.Duration
	FailureThreshold int
	ProbeInterval    time.Duration
	SyncOnReconnect  bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Env              string
	LogLevel         string
	LogFormat        string
	StrictValidation bool
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	uri := getEnv("REMOTE_URI", os.Getenv("MONGODB_URI"))
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
			MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 10<<20)),
		},
		Storage: StorageConfig{
			Mode:     StorageMode(strings.ToLower(getEnv("STORAGE_MODE", string(ModeHybrid)))),
			DataFile: getEnv("DATA_FILE", "data/data.json"),
		},
		Remote: RemoteConfig{
			Driver:           strings.ToLower(getEnv("REMOTE_DRIVER", DriverMongo)),
			URI:              uri,
			Database:         getEnv("REMOTE_DATABASE", "garage"),
			ConnectTimeout:   getEnvDuration("REMOTE_CONNECT_TIMEOUT", 5*time.Second),
			OpTimeout:        getEnvDuration("REMOTE_OP_TIMEOUT", 5*time.Second),
			FailureThreshold: getEnvInt("REMOTE_FAILURE_THRESHOLD", 3),
			ProbeInterval:    getEnvDuration("REMOTE_PROBE_INTERVAL", 30*time.Second),
			SyncOnReconnect:  getEnvBool("SYNC_ON_RECONNECT", true),
		},
		App: AppConfig{
			Env:              getEnv("APP_ENV", "development"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			LogFormat:        getEnv("LOG_FORMAT", "json"),
			StrictValidation: getEnvBool("STRICT_VALIDATION", true),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if _, err := ParseStorageMode(string(c.Storage.Mode)); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.Storage.Mode != ModeRemote && c.Storage.DataFile == "" {
		errs = multierror.Append(errs, errors.New("DATA_FILE must not be empty"))
	}
	if c.Storage.Mode == ModeRemote && c.Remote.URI == "" {
		errs = multierror.Append(errs, errors.New("STORAGE_MODE=remote requires REMOTE_URI"))
	}
	if c.Storage.Mode != ModeLocal {
		switch c.Remote.Driver {
		case DriverMongo, DriverPostgres:
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown REMOTE_DRIVER %q (want mongo or postgres)", c.Remote.Driver))
		}
	}
	for name, d := range map[string]time.Duration{
		"REMOTE_CONNECT_TIMEOUT": c.Remote.ConnectTimeout,
		"REMOTE_OP_TIMEOUT":      c.Remote.OpTimeout,
		"SERVER_READ_TIMEOUT":    c.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":   c.Server.WriteTimeout,
	} {
		if d <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Remote.FailureThreshold < 1 {
		errs = multierror.Append(errs, errors.New("REMOTE_FAILURE_THRESHOLD must be at least 1"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = multierror.Append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	switch c.App.LogFormat {
	case "json", "console":
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown LOG_FORMAT %q (want json or console)", c.App.LogFormat))
	}
	return errs.ErrorOrNil()
}

// EffectiveMode is the mode the process actually runs in: hybrid without a remote URI
// degrades to local.
func (c *Config) EffectiveMode() StorageMode {
	if c.Storage.Mode == ModeHybrid && c.Remote.URI == "" {
		return ModeLocal
	}
	return c.Storage.Mode
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

// getEnvDuration accepts Go durations ("5s", "1m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if i, err := strconv.Atoi(value); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
