package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Calendar CalendarConfig
	Jobs     JobsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the verification secret for access tokens issued by the
// identity service. This service never issues access tokens itself.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CalendarConfig governs the calendar engine and its surfaces.
type CalendarConfig struct {
	Timezone       string
	MaxWindowDays  int
	CacheEnabled   bool
	CacheTTL       time.Duration
	QueryTimeout   time.Duration
	AuditCron      string
	FeedName       string
	FeedSecret     string
	FeedLinkTTL    time.Duration
	FeedPastDays   int
	FeedFutureDays int
}

// JobsConfig sizes the background worker pool.
type JobsConfig struct {
	Workers int
	Retries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxWindow := v.GetInt("CALENDAR_MAX_WINDOW_DAYS")
	if maxWindow <= 0 {
		maxWindow = 366
	}
	cfg.Calendar = CalendarConfig{
		Timezone:       v.GetString("CALENDAR_TIMEZONE"),
		MaxWindowDays:  maxWindow,
		CacheEnabled:   v.GetBool("CALENDAR_CACHE_ENABLED"),
		CacheTTL:       parseDuration(v.GetString("CALENDAR_CACHE_TTL"), 2*time.Minute),
		QueryTimeout:   parseDuration(v.GetString("CALENDAR_QUERY_TIMEOUT"), 5*time.Second),
		AuditCron:      v.GetString("CALENDAR_AUDIT_CRON"),
		FeedName:       v.GetString("CALENDAR_FEED_NAME"),
		FeedSecret:     v.GetString("CALENDAR_FEED_SECRET"),
		FeedLinkTTL:    parseDuration(v.GetString("CALENDAR_FEED_LINK_TTL"), 180*24*time.Hour),
		FeedPastDays:   v.GetInt("CALENDAR_FEED_PAST_DAYS"),
		FeedFutureDays: v.GetInt("CALENDAR_FEED_FUTURE_DAYS"),
	}

	cfg.Jobs = JobsConfig{
		Workers: v.GetInt("JOBS_WORKERS"),
		Retries: v.GetInt("JOBS_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_calendar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CALENDAR_TIMEZONE", "Asia/Ulaanbaatar")
	v.SetDefault("CALENDAR_MAX_WINDOW_DAYS", 366)
	v.SetDefault("CALENDAR_CACHE_ENABLED", true)
	v.SetDefault("CALENDAR_CACHE_TTL", "2m")
	v.SetDefault("CALENDAR_QUERY_TIMEOUT", "5s")
	v.SetDefault("CALENDAR_AUDIT_CRON", "0 3 * * *")
	v.SetDefault("CALENDAR_FEED_NAME", "Course Calendar")
	v.SetDefault("CALENDAR_FEED_SECRET", "dev_feed_secret")
	v.SetDefault("CALENDAR_FEED_LINK_TTL", "4320h")
	v.SetDefault("CALENDAR_FEED_PAST_DAYS", 30)
	v.SetDefault("CALENDAR_FEED_FUTURE_DAYS", 180)

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_RETRIES", 3)
}

// isMissingFile tolerates a missing .env when SetConfigFile is used, which
// viper reports as an fs error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
