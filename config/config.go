package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string      `yaml:"port"`
	Environment    string      `yaml:"environment"`
	LogLevel       string      `yaml:"log_level"`
	AllowedOrigins []string    `yaml:"allowed_origins"`
	Rooms          RoomsConfig `yaml:"rooms"`
	WebSocket      WSConfig    `yaml:"websocket"`
	Admin          AdminConfig `yaml:"admin"`
	Redis          RedisConfig `yaml:"redis"`
}

// RoomsConfig controls mailbox expiry for the polling endpoints.
type RoomsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type WSConfig struct {
	MaxMessageBytes   int64 `yaml:"max_message_bytes"`
	MessagesPerSecond int   `yaml:"messages_per_second"`
}

// AdminConfig guards the operator API. An empty password disables it.
type AdminConfig struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	JWTSecret string `yaml:"jwt_secret"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether the presence mirror should connect at all.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (a AdminConfig) Enabled() bool {
	return a.Password != ""
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: origins,
		Rooms: RoomsConfig{
			TTL:           getEnvDuration("ROOM_TTL", 5*time.Minute),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		},
		WebSocket: WSConfig{
			MaxMessageBytes:   int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 64*1024)),
			MessagesPerSecond: getEnvInt("WS_MESSAGES_PER_SECOND", 50),
		},
		Admin: AdminConfig{
			Username:  getEnv("ADMIN_USERNAME", "admin"),
			Password:  getEnv("ADMIN_PASSWORD", ""),
			JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

// LoadFile reads a YAML config file on top of the environment defaults.
// ${VAR} references in the file are expanded before parsing.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.Rooms.TTL <= 0 {
		errs = append(errs, fmt.Errorf("rooms.ttl must be positive, got %s", c.Rooms.TTL))
	}
	if c.Rooms.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("rooms.sweep_interval must be positive, got %s", c.Rooms.SweepInterval))
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("websocket.max_message_bytes must be positive, got %d", c.WebSocket.MaxMessageBytes))
	}
	if c.WebSocket.MessagesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("websocket.messages_per_second must be positive, got %d", c.WebSocket.MessagesPerSecond))
	}
	if c.Admin.Enabled() && c.Admin.JWTSecret == "" {
		errs = append(errs, errors.New("admin.jwt_secret is required when admin.password is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
