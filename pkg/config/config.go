package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Generator GeneratorConfig
	Resolver  ResolverConfig
	Events    EventsConfig
	OIDC      OIDCConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	APIAddr         string
	RedirectAddr    string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL       string
	OpTimeout time.Duration
}

type RedisConfig struct {
	URL       string
	OpTimeout time.Duration
}

type GeneratorConfig struct {
	CodeLength  int
	MaxAttempts int
	AliasMinLen int
	AliasMaxLen int
}

type ResolverConfig struct {
	CacheTTL          time.Duration
	SideEffectTimeout time.Duration
	ClickFlushEvery   int64
}

type EventsConfig struct {
	Workers       int
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type OIDCConfig struct {
	IssuerURL string
	Audience  string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	return &Config{
		Server: ServerConfig{
			APIAddr:         getEnv("API_ADDR", ":8080"),
			RedirectAddr:    getEnv("REDIRECT_ADDR", ":8081"),
			BaseURL:         getEnv("BASE_URL", "http://localhost:8081"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:       dbURL,
			OpTimeout: getEnvAsDuration("DB_OP_TIMEOUT", 3*time.Second),
		},
		Redis: RedisConfig{
			URL:       redisURL,
			OpTimeout: getEnvAsDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
		},
		Generator: GeneratorConfig{
			CodeLength:  getEnvAsInt("CODE_LENGTH", 6),
			MaxAttempts: getEnvAsInt("CODE_MAX_ATTEMPTS", 10),
			AliasMinLen: getEnvAsInt("ALIAS_MIN_LENGTH", 4),
			AliasMaxLen: getEnvAsInt("ALIAS_MAX_LENGTH", 10),
		},
		Resolver: ResolverConfig{
			CacheTTL:          getEnvAsDuration("CACHE_TTL", time.Hour),
			SideEffectTimeout: getEnvAsDuration("SIDE_EFFECT_TIMEOUT", 5*time.Second),
			ClickFlushEvery:   int64(getEnvAsInt("CLICK_FLUSH_EVERY", 10)),
		},
		Events: EventsConfig{
			Workers:       getEnvAsInt("EVENT_WORKERS", 4),
			BufferSize:    getEnvAsInt("EVENT_BUFFER_SIZE", 4096),
			BatchSize:     getEnvAsInt("EVENT_BATCH_SIZE", 100),
			FlushInterval: getEnvAsDuration("EVENT_FLUSH_INTERVAL", 5*time.Second),
		},
		OIDC: OIDCConfig{
			IssuerURL: os.Getenv("OIDC_ISSUER"),
			Audience:  getEnv("OIDC_AUDIENCE", "shortly"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
