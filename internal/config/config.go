// Package config loads the process configuration: logging, metrics,
// tracing, the shared cache, pool sizing and one login per logical
// database.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/fmidb/internal/db"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned when a login cannot be completed from
// the configuration and the environment.
var ErrMissingCredential = errors.New("config: missing credential")

// LogConfig holds operational logging settings
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text, json
	// StatementFile, when set, receives one JSON line per statement.
	StatementFile string `json:"statement_file" yaml:"statement_file"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Addr      string    `json:"addr" yaml:"addr"`
	Namespace string    `json:"namespace" yaml:"namespace"`
	Buckets   []float64 `json:"buckets" yaml:"buckets"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Exporter   string  `json:"exporter" yaml:"exporter"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// CacheConfig holds the optional shared lookup tier
type CacheConfig struct {
	// RedisAddr enables the shared tier when set.
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `json:"redis_password" yaml:"redis_password"`
	RedisDB       int           `json:"redis_db" yaml:"redis_db"`
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix"`
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
	LocalTTL      time.Duration `json:"local_ttl" yaml:"local_ttl"`
}

// Enabled reports whether a shared tier is configured.
func (c CacheConfig) Enabled() bool { return c.RedisAddr != "" }

// PoolConfig holds connection pool sizing
type PoolConfig struct {
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`
	// AcquireTimeout bounds waiting for a free slot. Zero waits forever.
	AcquireTimeout time.Duration `json:"acquire_timeout" yaml:"acquire_timeout"`
	// BreakerThreshold consecutive connect failures stop further dials for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `json:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// CodecConfig holds row rendering settings
type CodecConfig struct {
	DateMask      string `json:"date_mask" yaml:"date_mask"`
	UnknownPolicy string `json:"unknown_policy" yaml:"unknown_policy"`
}

// DatabaseConfig is one login.
type DatabaseConfig struct {
	// Driver is postgres, oracle, mysql or sqlite.
	Driver   string `json:"driver" yaml:"driver"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	// PasswordEnv names the variable holding the password when Password
	// is empty.
	PasswordEnv string `json:"password_env" yaml:"password_env"`
	// ExternalAuth leaves user and password to the client environment.
	// sqlite logins never need them; Database is the file path.
	ExternalAuth bool   `json:"external_auth" yaml:"external_auth"`
	DSN          string `json:"dsn" yaml:"dsn"`
}

// DatabasesConfig holds the logins of every logical database
type DatabasesConfig struct {
	Radon DatabaseConfig `json:"radon" yaml:"radon"`
	Neons DatabaseConfig `json:"neons" yaml:"neons"`
	CLDB  DatabaseConfig `json:"cldb" yaml:"cldb"`
	Verif DatabaseConfig `json:"verif" yaml:"verif"`
}

// Config is the central configuration struct
type Config struct {
	Log       LogConfig       `json:"log" yaml:"log"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Pool      PoolConfig      `json:"pool" yaml:"pool"`
	Codec     CodecConfig     `json:"codec" yaml:"codec"`
	Databases DatabasesConfig `json:"databases" yaml:"databases"`
}

// DefaultConfig returns the historic deployment defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr:      "",
			Namespace: "fmidb",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Exporter:   "otlp-http",
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Cache: CacheConfig{
			KeyPrefix: "fmidb:",
			TTL:       24 * time.Hour,
			LocalTTL:  time.Minute,
		},
		Pool: PoolConfig{
			MaxWorkers:      2,
			BreakerCooldown: 30 * time.Second,
		},
		Codec: CodecConfig{
			DateMask:      "YYYYMMDDHH24MISS",
			UnknownPolicy: "skip",
		},
		Databases: DatabasesConfig{
			Radon: DatabaseConfig{
				Driver:      "postgres",
				Host:        "vorlon",
				Port:        5432,
				Database:    "radon",
				User:        "radon_client",
				PasswordEnv: "RADON_RADONCLIENT_PASSWORD",
			},
			Neons: DatabaseConfig{
				Driver:      "oracle",
				Host:        "localhost",
				Port:        1521,
				Database:    "neons",
				User:        "neons_client",
				PasswordEnv: "NEONS_NEONSCLIENT_PASSWORD",
			},
			CLDB: DatabaseConfig{
				Driver:      "oracle",
				Host:        "localhost",
				Port:        1521,
				Database:    "CLDB",
				User:        "neons_client",
				PasswordEnv: "CLDB_NEONSCLIENT_PASSWORD",
			},
			Verif: DatabaseConfig{
				Driver:      "postgres",
				Host:        "vorlon",
				Port:        5432,
				Database:    "verif",
				User:        "verifimport",
				PasswordEnv: "VERIF_VERIFIMPORT_PASSWORD",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML (.yaml, .yml) or JSON file
// on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies FMIDB_* environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FMIDB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FMIDB_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FMIDB_STATEMENT_LOG"); v != "" {
		cfg.Log.StatementFile = v
	}
	if v := os.Getenv("FMIDB_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("FMIDB_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("FMIDB_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("FMIDB_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
		cfg.Telemetry.Enabled = true
	}
	if v := os.Getenv("FMIDB_DATE_MASK"); v != "" {
		cfg.Codec.DateMask = v
	}
	if v := os.Getenv("FMIDB_POOL_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxWorkers = n
		}
	}
	if v := os.Getenv("FMIDB_POOL_ACQUIRE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pool.AcquireTimeout = d
		}
	}
	if v := os.Getenv("FMIDB_POOL_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.BreakerThreshold = n
		}
	}
	for name, dbc := range map[string]*DatabaseConfig{
		"RADON": &cfg.Databases.Radon,
		"NEONS": &cfg.Databases.Neons,
		"CLDB":  &cfg.Databases.CLDB,
		"VERIF": &cfg.Databases.Verif,
	} {
		dbc.applyEnv("FMIDB_" + name + "_")
	}
}

func (c *DatabaseConfig) applyEnv(prefix string) {
	if v := os.Getenv(prefix + "DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv(prefix + "HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv(prefix + "PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv(prefix + "DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv(prefix + "USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv(prefix + "DSN"); v != "" {
		c.DSN = v
	}
}

// Credentials resolves the login. The password comes from Password or, when
// empty, from the PasswordEnv variable looked up through lookupEnv
// (os.LookupEnv when nil).
func (c DatabaseConfig) Credentials(lookupEnv func(string) (string, bool)) (db.Credentials, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	creds := db.Credentials{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		External: c.ExternalAuth,
		DSN:      c.DSN,
	}
	if c.DSN != "" {
		return creds, nil
	}
	if c.Database == "" {
		return db.Credentials{}, fmt.Errorf("%w: empty database name", ErrMissingCredential)
	}
	if c.ExternalAuth || c.Driver == "sqlite" {
		return creds, nil
	}

	creds.User = c.User
	creds.Password = c.Password
	if creds.User == "" {
		return db.Credentials{}, fmt.Errorf("%w: empty username for %s", ErrMissingCredential, c.Database)
	}
	if creds.Password == "" {
		if c.PasswordEnv == "" {
			return db.Credentials{}, fmt.Errorf("%w: empty password for %s", ErrMissingCredential, c.Database)
		}
		pw, ok := lookupEnv(c.PasswordEnv)
		if !ok || pw == "" {
			return db.Credentials{}, fmt.Errorf("%w: environment variable %s must be set", ErrMissingCredential, c.PasswordEnv)
		}
		creds.Password = pw
	}
	return creds, nil
}
