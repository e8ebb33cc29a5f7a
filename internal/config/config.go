package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const ServiceName = "crm-finance"

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        gormlogger.LogLevel
}

// DSN returns the PostgreSQL connection string
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
}

// FinanceConfig holds invoicing policy knobs
type FinanceConfig struct {
	DefaultDueDays int
}

// Config holds all configuration
type Config struct {
	DB        DBConfig
	Server    ServerConfig
	JWTSecret []byte
	LogLevel  string
	Finance   FinanceConfig
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Load reads configs/.env (optional) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found, using environment variables")
	}

	cfg := &Config{
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "postgres"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", gormlogger.Warn),
		},
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Env:         getEnv("APP_ENV", "development"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Finance: FinanceConfig{
			DefaultDueDays: getEnvAsInt("INVOICE_DEFAULT_DUE_DAYS", 30),
		},
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_SECRET environment variable is required in production mode")
		}
		secret = "default_super_secret_key" // development fallback only
	}
	cfg.JWTSecret = []byte(secret)

	if cfg.Finance.DefaultDueDays <= 0 {
		return nil, fmt.Errorf("INVOICE_DEFAULT_DUE_DAYS must be positive, got %d", cfg.Finance.DefaultDueDays)
	}

	return cfg, nil
}

// LogFields describes the configuration without secrets.
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.Name),
		zap.String("server_port", c.Server.Port),
		zap.Int("invoice_default_due_days", c.Finance.DefaultDueDays),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsLogLevel(key string, defaultValue gormlogger.LogLevel) gormlogger.LogLevel {
	switch getEnv(key, "") {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	default:
		return defaultValue
	}
}
