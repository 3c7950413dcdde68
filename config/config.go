package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            int
	Environment     string
	AllowedOrigins  []string
	LogLevel        string
	ShutdownTimeout time.Duration
	Session         SessionConfig
	Redis           RedisConfig
	MDNS            MDNSConfig
}

// SessionConfig holds per-connection keepalive settings
type SessionConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// MDNSConfig controls LAN advertisement of the signaling endpoint
type MDNSConfig struct {
	Enabled bool
	Name    string
	Type    string
	Domain  string
}

func Load() *Config {
	// Parse allowed origins (comma-separated, "*" admits any origin)
	originsStr := getEnv("ALLOWED_ORIGINS", "*")
	var origins []string
	for _, o := range strings.Split(originsStr, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "screenview"
	}

	return &Config{
		Port:            getEnvInt("PORT", 8080),
		Environment:     getEnv("ENVIRONMENT", "development"),
		AllowedOrigins:  origins,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		Session: SessionConfig{
			WriteWait:      getEnvDuration("WRITE_WAIT", 10*time.Second),
			PongWait:       getEnvDuration("PONG_WAIT", 60*time.Second),
			PingPeriod:     getEnvDuration("PING_PERIOD", 54*time.Second),
			MaxMessageSize: int64(getEnvInt("MAX_MESSAGE_SIZE", 1<<20)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MDNS: MDNSConfig{
			Enabled: getEnvBool("MDNS_ENABLED", false),
			Name:    getEnv("MDNS_NAME", hostname),
			Type:    getEnv("MDNS_TYPE", "_screenview-signal._tcp"),
			Domain:  getEnv("MDNS_DOMAIN", "local"),
		},
	}
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
