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
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

// DatabaseConfig selects the gorm dialector by Driver: postgres, mysql or sqlite.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	LogLevel        string `yaml:"log_level"`
	AutoMigrate     bool   `yaml:"auto_migrate"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig enables bearer-token verification when Issuer is set.
type AuthConfig struct {
	Issuer   string `yaml:"issuer"`
	ClientID string `yaml:"client_id"`
}

// AuditConfig enables the query audit stream when Brokers is non-empty.
type AuditConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AnalyticsConfig struct {
	TopProductsLimit  int `yaml:"top_products_limit"`
	LowStockThreshold int `yaml:"low_stock_threshold"`
}

// ConnLifetime parses ConnMaxLifetime, falling back to one hour.
func (c DatabaseConfig) ConnLifetime() time.Duration {
	if d, err := time.ParseDuration(c.ConnMaxLifetime); err == nil {
		return d
	}
	return time.Hour
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			DSN:             "host=localhost user=postgres password=postgres dbname=ecommerce_db port=5432 sslmode=disable",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: "1h",
			LogLevel:        "warn",
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			Topic: "analytics.queries",
		},
		Analytics: AnalyticsConfig{
			TopProductsLimit:  10,
			LowStockThreshold: 20,
		},
	}
}

// LoadConfig reads the yaml file at path (a missing file is not an error),
// then .env, then environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(file, config); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnv(config)
	return config, nil
}

func applyEnv(c *Config) {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Env = getEnv("APP_ENV", c.Server.Env)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)
	c.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.ConnMaxLifetime = getEnv("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.LogLevel = getEnv("DB_LOG_LEVEL", c.Database.LogLevel)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Auth.Issuer = getEnv("OIDC_ISSUER", c.Auth.Issuer)
	c.Auth.ClientID = getEnv("OIDC_CLIENT_ID", c.Auth.ClientID)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Audit.Brokers = splitList(brokers)
	}
	c.Audit.Topic = getEnv("AUDIT_TOPIC", c.Audit.Topic)

	c.Analytics.TopProductsLimit = getEnvAsInt("TOP_PRODUCTS_LIMIT", c.Analytics.TopProductsLimit)
	c.Analytics.LowStockThreshold = getEnvAsInt("LOW_STOCK_THRESHOLD", c.Analytics.LowStockThreshold)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
