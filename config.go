package schemata

import (
	"os"
	"strconv"
	"time"
)

// Config consolidates engine settings
type Config struct {
	Storage  StorageConfig  `json:"storage"`
	Registry RegistryConfig `json:"registry"`
	Static   StaticConfig   `json:"static"`
	Schema   SchemaConfig   `json:"schema"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
}

// StorageConfig contains per-application embedded database settings
type StorageConfig struct {
	DataDir          string        `json:"dataDir"`
	Dialect          DialectName   `json:"dialect"`
	LockTimeout      time.Duration `json:"lockTimeout"`
	LockPollInterval time.Duration `json:"lockPollInterval"`
}

// RegistryConfig contains connection settings for the application registry
type RegistryConfig struct {
	Driver         string        `json:"driver"` // "memory" or "postgres"
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Database       string        `json:"database"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	SSLMode        string        `json:"sslMode"`
	MaxConnections int           `json:"maxConnections"`
	Timeout        time.Duration `json:"timeout"`
	UseIAMAuth     bool          `json:"useIamAuth"`
	Region         string        `json:"region"`
}

// StaticConfig selects where static endpoint files are read from
type StaticConfig struct {
	Backend      string `json:"backend"` // "local" or "s3"
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	Region       string `json:"region"`
	Endpoint     string `json:"endpoint"`
	AccessKey    string `json:"accessKey"`
	SecretKey    string `json:"secretKey"`
	UsePathStyle bool   `json:"usePathStyle"`
}

// SchemaConfig contains definition loading settings
type SchemaConfig struct {
	MaxDefinitionSize int `json:"maxDefinitionSize"`
	CacheSize         int `json:"cacheSize"`
}

// ServerConfig contains HTTP adapter settings
type ServerConfig struct {
	Addr         string        `json:"addr"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`
	MaxBodyBytes int64         `json:"maxBodyBytes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:          "./data",
			Dialect:          DialectSQLite,
			LockTimeout:      10 * time.Second,
			LockPollInterval: 20 * time.Millisecond,
		},
		Registry: RegistryConfig{
			Driver:         "memory",
			Host:           "localhost",
			Port:           5432,
			Database:       "schemata",
			Username:       "postgres",
			SSLMode:        "disable",
			MaxConnections: 10,
			Timeout:        30 * time.Second,
		},
		Static: StaticConfig{
			Backend: "local",
		},
		Schema: SchemaConfig{
			MaxDefinitionSize: MaxDefinitionSize,
			CacheSize:         128,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return &ConfigError{Field: "storage.dataDir", Message: "must not be empty"}
	}
	switch c.Storage.Dialect {
	case DialectSQLite, DialectDuckDB:
	default:
		return &ConfigError{Field: "storage.dialect", Message: "must be sqlite or duckdb"}
	}
	if c.Storage.LockTimeout <= 0 {
		return &ConfigError{Field: "storage.lockTimeout", Message: "must be greater than 0"}
	}
	if c.Storage.LockPollInterval <= 0 || c.Storage.LockPollInterval > c.Storage.LockTimeout {
		return &ConfigError{Field: "storage.lockPollInterval", Message: "must be greater than 0 and at most lockTimeout"}
	}

	switch c.Registry.Driver {
	case "memory":
	case "postgres":
		if c.Registry.Host == "" {
			return &ConfigError{Field: "registry.host", Message: "must not be empty"}
		}
		if c.Registry.MaxConnections <= 0 {
			return &ConfigError{Field: "registry.maxConnections", Message: "must be greater than 0"}
		}
		if c.Registry.UseIAMAuth && c.Registry.Region == "" {
			return &ConfigError{Field: "registry.region", Message: "is required for IAM authentication"}
		}
	default:
		return &ConfigError{Field: "registry.driver", Message: "must be memory or postgres"}
	}

	switch c.Static.Backend {
	case "local":
	case "s3":
		if c.Static.Bucket == "" {
			return &ConfigError{Field: "static.bucket", Message: "is required for the s3 backend"}
		}
	default:
		return &ConfigError{Field: "static.backend", Message: "must be local or s3"}
	}

	if c.Schema.MaxDefinitionSize <= 0 || c.Schema.MaxDefinitionSize > MaxDefinitionSize {
		return &ConfigError{Field: "schema.maxDefinitionSize", Message: "must be between 1 and 65536"}
	}
	if c.Schema.CacheSize <= 0 {
		return &ConfigError{Field: "schema.cacheSize", Message: "must be greater than 0"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

// LoadConfigFromEnv overlays SCHEMATA_* environment variables on the
// defaults.
func LoadConfigFromEnv() *Config {
	c := DefaultConfig()

	c.Storage.DataDir = getEnv("SCHEMATA_DATA_DIR", c.Storage.DataDir)
	c.Storage.Dialect = DialectName(getEnv("SCHEMATA_DIALECT", string(c.Storage.Dialect)))
	c.Storage.LockTimeout = getEnvDuration("SCHEMATA_LOCK_TIMEOUT", c.Storage.LockTimeout)

	c.Registry.Driver = getEnv("SCHEMATA_REGISTRY", c.Registry.Driver)
	c.Registry.Host = getEnv("DB_HOST", c.Registry.Host)
	c.Registry.Port = getEnvInt("DB_PORT", c.Registry.Port)
	c.Registry.Database = getEnv("DB_NAME", c.Registry.Database)
	c.Registry.Username = getEnv("DB_USER", c.Registry.Username)
	c.Registry.Password = getEnv("DB_PASSWORD", c.Registry.Password)
	c.Registry.SSLMode = getEnv("DB_SSL_MODE", c.Registry.SSLMode)
	c.Registry.MaxConnections = getEnvInt("DB_MAX_CONNS", c.Registry.MaxConnections)
	c.Registry.UseIAMAuth = getEnvBool("DB_IAM_AUTH", c.Registry.UseIAMAuth)
	c.Registry.Region = getEnv("AWS_REGION", c.Registry.Region)

	c.Static.Backend = getEnv("SCHEMATA_STATIC_BACKEND", c.Static.Backend)
	c.Static.Bucket = getEnv("S3_BUCKET", c.Static.Bucket)
	c.Static.Prefix = getEnv("S3_PREFIX", c.Static.Prefix)
	c.Static.Region = getEnv("AWS_REGION", c.Static.Region)
	c.Static.Endpoint = getEnv("S3_ENDPOINT", c.Static.Endpoint)
	c.Static.AccessKey = getEnv("S3_ACCESS_KEY", c.Static.AccessKey)
	c.Static.SecretKey = getEnv("S3_SECRET_KEY", c.Static.SecretKey)
	c.Static.UsePathStyle = getEnvBool("S3_PATH_STYLE", c.Static.UsePathStyle)

	c.Schema.CacheSize = getEnvInt("SCHEMATA_CACHE_SIZE", c.Schema.CacheSize)
	c.Server.Addr = getEnv("SCHEMATA_ADDR", c.Server.Addr)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	return c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
