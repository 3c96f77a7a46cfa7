package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/TheHatt/revboard/internal/suggest"
	pkgconfig "github.com/TheHatt/revboard/pkg/config"
	"github.com/TheHatt/revboard/pkg/database"
	"github.com/TheHatt/revboard/pkg/tracing"
)

// ServiceName identifies this process in logs, traces and metrics.
const ServiceName = "revboard"

// Config holds all configuration for the dashboard service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"revboard"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"revboard_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"revboard"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	IngestEnabled     bool     `env:"INGEST_ENABLED" envDefault:"true"`
	IngestGroupID     string   `env:"INGEST_GROUP_ID" envDefault:"revboard-ingest"`
	IngestMaxAttempts int      `env:"INGEST_MAX_ATTEMPTS" envDefault:"3"`

	// Session tokens
	JWTSecret string `env:"JWT_SECRET,required"`

	// Dashboard
	DashboardTimezone    string `env:"DASHBOARD_TIMEZONE" envDefault:"Europe/Berlin"`
	StatsCacheTTLSeconds int    `env:"STATS_CACHE_TTL_SECONDS" envDefault:"60"`
	StatsKeywordsEnabled bool   `env:"STATS_KEYWORDS_ENABLED" envDefault:"true"`
	StatsTopKeywords     int    `env:"STATS_TOP_KEYWORDS" envDefault:"20"`

	// Reply submission rate limit, per user
	ReplyRateLimitRPS   float64 `env:"REPLY_RATE_LIMIT_RPS" envDefault:"1"`
	ReplyRateLimitBurst int     `env:"REPLY_RATE_LIMIT_BURST" envDefault:"5"`

	// Reply suggestions
	SuggestEnabled bool          `env:"SUGGEST_ENABLED" envDefault:"false"`
	SuggestAPIKey  string        `env:"SUGGEST_API_KEY" envDefault:""`
	SuggestBaseURL string        `env:"SUGGEST_BASE_URL" envDefault:""`
	SuggestModel   string        `env:"SUGGEST_MODEL" envDefault:"gpt-4o-mini"`
	SuggestTimeout time.Duration `env:"SUGGEST_TIMEOUT" envDefault:"8s"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load revboard config: %w", err)
	}
	return cfg, nil
}

// Validate is called by pkgconfig.Load after parsing.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if _, err := time.LoadLocation(c.DashboardTimezone); err != nil {
		return fmt.Errorf("DASHBOARD_TIMEZONE %q: %w", c.DashboardTimezone, err)
	}
	if c.StatsTopKeywords < 1 || c.StatsTopKeywords > 100 {
		return fmt.Errorf("STATS_TOP_KEYWORDS must be between 1 and 100, got %d", c.StatsTopKeywords)
	}
	if c.StatsCacheTTLSeconds < 0 {
		return fmt.Errorf("STATS_CACHE_TTL_SECONDS must not be negative")
	}
	if c.ReplyRateLimitRPS <= 0 || c.ReplyRateLimitBurst < 1 {
		return fmt.Errorf("reply rate limit must be positive, got rps=%f burst=%d", c.ReplyRateLimitRPS, c.ReplyRateLimitBurst)
	}
	if c.IngestMaxAttempts < 1 {
		return fmt.Errorf("INGEST_MAX_ATTEMPTS must be at least 1")
	}
	if c.SuggestEnabled && c.SuggestAPIKey == "" {
		return fmt.Errorf("SUGGEST_API_KEY is required when SUGGEST_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// Location returns the dashboard reference timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DashboardTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StatsCacheTTL is the lifetime of a cached statistics result.
func (c *Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSeconds) * time.Second
}

// Postgres returns the connection settings for the pgx pool.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the connection settings for the cache client.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Suggest returns the reply suggestion backend settings.
func (c *Config) Suggest() suggest.Config {
	return suggest.Config{
		Enabled: c.SuggestEnabled,
		APIKey:  c.SuggestAPIKey,
		BaseURL: c.SuggestBaseURL,
		Model:   c.SuggestModel,
		Timeout: c.SuggestTimeout,
	}
}

// Tracing returns the OpenTelemetry exporter settings.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}
