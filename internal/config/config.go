package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Aggregate store backends
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all process configuration, read from the environment
type Config struct {
	Port string

	MongoURI string
	MongoDB  string
	RedisURI string

	JWTSecret string

	AggregateBackend string
	SurveyCacheTTL   time.Duration
	AppliedMarkerTTL time.Duration

	MergeMaxAttempts    uint
	MergeInitialBackoff time.Duration
	MergeMaxBackoff     time.Duration

	MaxTextLength int
	LiveTopWords  int
	LexiconPath   string

	SubmitRatePerSec float64
	SubmitBurst      int

	CORSAllowedOrigins string

	LogLevel  string
	LogFormat string
}

// Load reads a .env file when one exists, then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnv("MONGO_DB", "pulse"),
		RedisURI:            getEnv("REDIS_URI", "redis://localhost:6379/0"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		AggregateBackend:    strings.ToLower(getEnv("AGGREGATE_BACKEND", BackendRedis)),
		SurveyCacheTTL:      getEnvDuration("SURVEY_CACHE_TTL", 30*time.Second),
		AppliedMarkerTTL:    getEnvDuration("APPLIED_MARKER_TTL", 7*24*time.Hour),
		MergeMaxAttempts:    uint(getEnvInt("MERGE_MAX_ATTEMPTS", 5)),
		MergeInitialBackoff: getEnvDuration("MERGE_INITIAL_BACKOFF", 20*time.Millisecond),
		MergeMaxBackoff:     getEnvDuration("MERGE_MAX_BACKOFF", 500*time.Millisecond),
		MaxTextLength:       getEnvInt("MAX_TEXT_LENGTH", 4000),
		LiveTopWords:        getEnvInt("LIVE_TOP_WORDS", 20),
		LexiconPath:         getEnv("LEXICON_PATH", ""),
		SubmitRatePerSec:    getEnvFloat("SUBMIT_RATE_PER_SEC", 5),
		SubmitBurst:         getEnvInt("SUBMIT_BURST", 10),
		CORSAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "*"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	switch c.AggregateBackend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("AGGREGATE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, c.AggregateBackend)
	}
	if c.MergeMaxAttempts == 0 {
		return fmt.Errorf("MERGE_MAX_ATTEMPTS must be at least 1")
	}
	if c.MergeInitialBackoff <= 0 || c.MergeMaxBackoff < c.MergeInitialBackoff {
		return fmt.Errorf("merge backoff must satisfy 0 < MERGE_INITIAL_BACKOFF <= MERGE_MAX_BACKOFF")
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("MAX_TEXT_LENGTH must be positive")
	}
	if c.SubmitRatePerSec <= 0 || c.SubmitBurst <= 0 {
		return fmt.Errorf("SUBMIT_RATE_PER_SEC and SUBMIT_BURST must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
