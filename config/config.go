package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPath is used when Load is called with an empty path
const DefaultConfigPath = "config.yaml"

// EnvPrefix is the prefix of environment variables overriding file values
const EnvPrefix = "DRIVE_"

// DatabaseConfig holds all database configuration
type DatabaseConfig struct {
	Driver         string         `yaml:"driver"`
	MySQL          MySQLConfig    `yaml:"mysql"`
	PostgreSQL     PostgresConfig `yaml:"postgres"`
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	ConnectionPool PoolConfig     `yaml:"connection_pool"`
}

// MySQLConfig holds MySQL specific configuration
type MySQLConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	DBName    string `yaml:"dbname"`
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Loc       string `yaml:"loc"`
}

// PostgresConfig holds PostgreSQL specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

// SQLiteConfig holds SQLite specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxIdleConns    int `yaml:"max_idle_conns"`
	MaxOpenConns    int `yaml:"max_open_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// MigrationConfig holds migration specific configuration
type MigrationConfig struct {
	AutoMigrate    bool   `yaml:"auto_migrate"`
	MigrationTable string `yaml:"migration_table"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	LogFile      string `yaml:"log_file"`
	LogToConsole bool   `yaml:"log_to_console"`
	LogLevel     string `yaml:"log_level"`
}

// SamplerConfig controls the fixed-rate sampling tick
type SamplerConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// SensorsConfig selects and tunes the sensor source
type SensorsConfig struct {
	Simulate bool `yaml:"simulate"`
	RateHz   int  `yaml:"rate_hz"`
}

// UploadConfig describes the remote training service
type UploadConfig struct {
	URL                    string `yaml:"url"`
	Token                  string `yaml:"token"`
	Platform               string `yaml:"platform"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	BreakerFailures        int    `yaml:"breaker_failures"`
	BreakerCooldownSeconds int    `yaml:"breaker_cooldown_seconds"`
}

// Config holds the complete application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Migration MigrationConfig `yaml:"migration"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sampler   SamplerConfig   `yaml:"sampler"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Upload    UploadConfig    `yaml:"upload"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "SensorData.sqlite"},
			MySQL: MySQLConfig{
				Port:      3306,
				Charset:   "utf8mb4",
				ParseTime: true,
				Loc:       "Local",
			},
			PostgreSQL: PostgresConfig{
				Port:     5432,
				SSLMode:  "disable",
				TimeZone: "UTC",
			},
			ConnectionPool: PoolConfig{
				MaxIdleConns:    1,
				MaxOpenConns:    1,
				ConnMaxLifetime: 3600,
			},
		},
		Migration: MigrationConfig{
			AutoMigrate:    true,
			MigrationTable: "schema_migrations",
		},
		Logging: LoggingConfig{
			LogFile:      "result.log",
			LogToConsole: true,
			LogLevel:     "info",
		},
		Sampler: SamplerConfig{IntervalMs: 20},
		Sensors: SensorsConfig{Simulate: true, RateHz: 50},
		Upload: UploadConfig{
			URL:                    "https://api.dandrive.eu/train/",
			Platform:               "go",
			TimeoutSeconds:         30,
			BreakerFailures:        5,
			BreakerCooldownSeconds: 60,
		},
	}
}

// envMappings covers keys whose field names contain underscores below a nested section
var envMappings = map[string]string{
	"database_sqlite_path":       "database.sqlite.path",
	"database_mysql_host":        "database.mysql.host",
	"database_mysql_port":        "database.mysql.port",
	"database_mysql_user":        "database.mysql.user",
	"database_mysql_password":    "database.mysql.password",
	"database_mysql_dbname":      "database.mysql.dbname",
	"database_postgres_host":     "database.postgres.host",
	"database_postgres_port":     "database.postgres.port",
	"database_postgres_user":     "database.postgres.user",
	"database_postgres_password": "database.postgres.password",
	"database_postgres_dbname":   "database.postgres.dbname",
	"database_postgres_sslmode":  "database.postgres.sslmode",
}

// envTransform maps DRIVE_UPLOAD_TOKEN to upload.token
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return ""
	}
	return section + "." + rest
}

// Load loads configuration from the specified YAML file.
// Defaults are applied first, then the file, then DRIVE_* environment variables.
// A missing file is only an error when the path was given explicitly.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "yaml"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Set default values for logging if not specified
	if config.Logging.LogFile == "" {
		config.Logging.LogFile = "result.log"
	}
	if config.Logging.LogLevel == "" {
		config.Logging.LogLevel = "info"
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql":
		if c.Database.MySQL.Host == "" {
			return fmt.Errorf("mysql host is required")
		}
		if c.Database.MySQL.User == "" {
			return fmt.Errorf("mysql user is required")
		}
		if c.Database.MySQL.DBName == "" {
			return fmt.Errorf("mysql database name is required")
		}
	case "postgres":
		if c.Database.PostgreSQL.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Database.PostgreSQL.User == "" {
			return fmt.Errorf("postgres user is required")
		}
		if c.Database.PostgreSQL.DBName == "" {
			return fmt.Errorf("postgres database name is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Sampler.IntervalMs <= 0 {
		return fmt.Errorf("sampler interval must be positive, got %d", c.Sampler.IntervalMs)
	}
	if c.Sensors.RateHz <= 0 {
		return fmt.Errorf("sensor rate must be positive, got %d", c.Sensors.RateHz)
	}

	u, err := url.Parse(c.Upload.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upload url must be an absolute http(s) url: %q", c.Upload.URL)
	}
	if c.Upload.Platform == "" {
		return fmt.Errorf("upload platform is required")
	}
	if c.Upload.TimeoutSeconds <= 0 {
		return fmt.Errorf("upload timeout must be positive, got %d", c.Upload.TimeoutSeconds)
	}

	return nil
}

// GetDSN returns the database connection string based on the configured driver
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "mysql":
		mysql := c.Database.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
			mysql.User, mysql.Password, mysql.Host, mysql.Port, mysql.DBName,
			mysql.Charset, mysql.ParseTime, mysql.Loc)
		return dsn
	case "postgres":
		pg := c.Database.PostgreSQL
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode, pg.TimeZone)
		return dsn
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}

// SampleInterval returns the sampler tick as a duration
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Sampler.IntervalMs) * time.Millisecond
}

// UploadTimeout returns the HTTP timeout for one upload exchange
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.TimeoutSeconds) * time.Second
}
