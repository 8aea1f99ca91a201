package config

import (
	"os"
	"strings"
	"time"

	"github.com/jogardn/office-meals/internal/poller"
	"github.com/sirupsen/logrus"
)

const (
	CacheMemory   = "memory"
	CacheFile     = "file"
	CachePostgres = "postgres"
)

type Config struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	ProbeInterval  time.Duration

	OrdersPollInterval  time.Duration
	CatalogPollInterval time.Duration

	CacheBackend string
	CacheDir     string
	CacheDSN     string

	AgentEmail    string
	AgentPassword string
	AgentPort     string

	KafkaBrokers string
	AMQPURL      string

	LogLevel logrus.Level
	MockPort string
}

// Load reads the environment. Malformed values fall back to their defaults
// with a warning.
func Load(logger *logrus.Logger) Config {
	cfg := Config{
		APIBaseURL:          strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8082/api"), "/"),
		RequestTimeout:      getDuration(logger, "REQUEST_TIMEOUT", 10*time.Second),
		ProbeInterval:       getDuration(logger, "PROBE_INTERVAL", 30*time.Second),
		OrdersPollInterval:  getDuration(logger, "ORDERS_POLL_INTERVAL", poller.OrdersInterval),
		CatalogPollInterval: getDuration(logger, "CATALOG_POLL_INTERVAL", poller.CatalogInterval),
		CacheBackend:        strings.ToLower(getEnv("CACHE_BACKEND", CacheMemory)),
		CacheDir:            getEnv("CACHE_DIR", ".meal-cache"),
		CacheDSN:            getEnv("CACHE_DSN", ""),
		AgentEmail:          getEnv("AGENT_EMAIL", ""),
		AgentPassword:       getEnv("AGENT_PASSWORD", ""),
		AgentPort:           getEnv("AGENT_PORT", "8080"),
		KafkaBrokers:        getEnv("KAFKA_BROKERS", ""),
		AMQPURL:             getEnv("AMQP_URL", ""),
		LogLevel:            logrus.InfoLevel,
		MockPort:            getEnv("MOCK_PORT", "8082"),
	}

	if raw := getEnv("LOG_LEVEL", ""); raw != "" {
		level, err := logrus.ParseLevel(raw)
		if err != nil {
			logger.WithField("value", raw).Warn("Invalid LOG_LEVEL, using info")
		} else {
			cfg.LogLevel = level
		}
	}

	switch cfg.CacheBackend {
	case CacheMemory, CacheFile, CachePostgres:
	default:
		logger.WithField("value", cfg.CacheBackend).Warn("Unknown CACHE_BACKEND, using memory")
		cfg.CacheBackend = CacheMemory
	}
	if cfg.CacheBackend == CachePostgres && cfg.CacheDSN == "" {
		logger.Warn("CACHE_BACKEND is postgres but CACHE_DSN is empty, using memory")
		cfg.CacheBackend = CacheMemory
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(logger *logrus.Logger, key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.WithFields(logrus.Fields{
			"key":     key,
			"value":   raw,
			"default": defaultValue.String(),
		}).Warn("Invalid duration, using default")
		return defaultValue
	}
	return d
}
