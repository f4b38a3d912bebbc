package config

import (
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the geocoding pipeline.
//
// Every key can be set through the environment with the WAYPOINT_ prefix and
// dots replaced by underscores (provider.rate_limit -> WAYPOINT_PROVIDER_RATE_LIMIT).
// A YAML or TOML file named by WAYPOINT_CONFIG is read first when present.
type Config struct {
	Env      string         // Env is the current environment: local, development, production.
	Port     int            // Port is the monitoring server port, 0 disables it.
	Workers  int            // Workers is the number of chunks resolved in parallel.
	Region   string         // Region is appended to every address.
	Provider ProviderConfig // Provider selects the geocoding service.
	Client   ClientConfig   // Client holds the retry discipline.
	Columns  ColumnsConfig  // Columns names the street columns of the input.
	Cache    CacheConfig    // Cache selects the durable cache.
	Database PostgresConfig // Database is used by the postgres cache backend.
}

// ProviderConfig selects the geocoding service.
type ProviderConfig struct {
	Type      string  // google or nominatim
	APIKey    string  // required for google
	BaseURL   string  // self-hosted nominatim endpoint
	UserAgent string  // generated per client when empty
	RateLimit float64 // requests per second across all workers
}

// ClientConfig holds the retry discipline of the geocoding client.
type ClientConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffUnit time.Duration
}

// ColumnsConfig names the street columns of the input table.
type ColumnsConfig struct {
	Primary   string
	Secondary string
}

// CacheConfig selects the durable cache.
type CacheConfig struct {
	Backend string // sqlite or postgres
	Path    string // sqlite file
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string // Host is the database server address.
	Port     string // Port is the database server port.
	User     string // User is the database user.
	Password string // Password is the database user's password.
	Name     string // Name is the name of the database.
	SSLMode  string
}

// Load errors. MustLoad panics with their message.
var (
	ErrConfigFile  = errors.New("failed to read configuration file")
	ErrPort        = errors.New("failed to parse port for monitoring server from configuration")
	ErrWorkers     = errors.New("failed to parse workers from configuration, must be a positive integer")
	ErrRateLimit   = errors.New("failed to parse provider rate limit from configuration")
	ErrTimeout     = errors.New("failed to parse client timeout from configuration")
	ErrMaxAttempts = errors.New("failed to parse client max attempts from configuration, must be a positive integer")
	ErrBackoffUnit = errors.New("failed to parse client backoff unit from configuration")
)

// DefaultWorkers leaves eight cores to the rest of the machine.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-8)
}

// MustLoad loads the configuration and panics when a value cannot be parsed.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load reads .env, the optional config file and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	if path := os.Getenv("WAYPOINT_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ErrConfigFile
		}
	}

	port, err := strconv.Atoi(v.GetString("port"))
	if err != nil || port < 0 {
		return nil, ErrPort
	}

	workers, err := strconv.Atoi(v.GetString("workers"))
	if err != nil || workers < 1 {
		return nil, ErrWorkers
	}

	rateLimit, err := strconv.ParseFloat(v.GetString("provider.rate_limit"), 64)
	if err != nil {
		return nil, ErrRateLimit
	}

	timeout, err := time.ParseDuration(v.GetString("client.timeout"))
	if err != nil || timeout <= 0 {
		return nil, ErrTimeout
	}

	attempts, err := strconv.Atoi(v.GetString("client.max_attempts"))
	if err != nil || attempts < 1 {
		return nil, ErrMaxAttempts
	}

	backoff, err := time.ParseDuration(v.GetString("client.backoff_unit"))
	if err != nil || backoff <= 0 {
		return nil, ErrBackoffUnit
	}

	return &Config{
		Env:     v.GetString("env"),
		Port:    port,
		Workers: workers,
		Region:  v.GetString("region"),
		Provider: ProviderConfig{
			Type:      v.GetString("provider.type"),
			APIKey:    v.GetString("provider.api_key"),
			BaseURL:   v.GetString("provider.base_url"),
			UserAgent: v.GetString("provider.user_agent"),
			RateLimit: rateLimit,
		},
		Client: ClientConfig{
			Timeout:     timeout,
			MaxAttempts: attempts,
			BackoffUnit: backoff,
		},
		Columns: ColumnsConfig{
			Primary:   v.GetString("columns.primary"),
			Secondary: v.GetString("columns.secondary"),
		},
		Cache: CacheConfig{
			Backend: v.GetString("cache.backend"),
			Path:    v.GetString("cache.path"),
		},
		Database: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Name:     v.GetString("postgres.db_name"),
			SSLMode:  v.GetString("postgres.sslmode"),
		},
	}, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WAYPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "production")
	v.SetDefault("port", "0")
	v.SetDefault("workers", strconv.Itoa(DefaultWorkers()))
	v.SetDefault("region", "South Carolina, USA")
	v.SetDefault("provider.type", "nominatim")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.user_agent", "")
	v.SetDefault("provider.rate_limit", "1")
	v.SetDefault("client.timeout", "10s")
	v.SetDefault("client.max_attempts", "5")
	v.SetDefault("client.backoff_unit", "1s")
	v.SetDefault("columns.primary", "als")
	v.SetDefault("columns.secondary", "alsb")
	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.path", "geocode_cache.db")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")

	// keys shared with other services keep their historical names
	_ = v.BindEnv("provider.api_key", "WAYPOINT_PROVIDER_KEY")
	_ = v.BindEnv("postgres.host", "DB_HOST")
	_ = v.BindEnv("postgres.port", "DB_PORT")
	_ = v.BindEnv("postgres.user", "DB_USERNAME")
	_ = v.BindEnv("postgres.password", "DB_PASSWORD")
	_ = v.BindEnv("postgres.db_name", "DB_NAME")
	_ = v.BindEnv("postgres.sslmode", "DB_SSLMODE")

	return v
}
