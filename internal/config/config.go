package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds every application setting
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Email     EmailConfig     `mapstructure:"email"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

// IsRelease reports whether the server runs in production mode
func (s ServerConfig) IsRelease() bool {
	return s.Mode == "release"
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig supports single, sentinel and cluster modes.
// Leaving both Addr and Addrs empty disables Redis.
type RedisConfig struct {
	Mode            string   `mapstructure:"mode"`
	Addrs           []string `mapstructure:"addrs"`
	Addr            string   `mapstructure:"addr"`
	Password        string   `mapstructure:"password"`
	DB              int      `mapstructure:"db"`
	MasterName      string   `mapstructure:"master_name"`
	MaxRetries      int      `mapstructure:"max_retries"`
	MinRetryBackoff int      `mapstructure:"min_retry_backoff"` // ms
	MaxRetryBackoff int      `mapstructure:"max_retry_backoff"` // ms
}

// Enabled reports whether any Redis address is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != "" || len(r.Addrs) > 0
}

// JWTConfig holds the settings to verify tokens issued by the auth service
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// CORSConfig lists origins allowed for browsers and the websocket upgrade
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RankingConfig controls rank recomputation
type RankingConfig struct {
	// LockTTL bounds how long a crashed replica can hold a test's ranking lock
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// LockWait is how long a recomputation waits for the lock before failing
	LockWait  time.Duration `mapstructure:"lock_wait"`
	LockRetry time.Duration `mapstructure:"lock_retry"`
	// EndGrace delays the scheduled recomputation after a test's end date so
	// that auto-submitted attempts are in
	EndGrace time.Duration `mapstructure:"end_grace"`
	// Lookback is how far back startup looks for tests that ended while the
	// service was down
	Lookback              time.Duration `mapstructure:"lookback"`
	AutoSubmitConcurrency int           `mapstructure:"auto_submit_concurrency"`
}

// CacheConfig holds cache lifetimes
type CacheConfig struct {
	TestTTL time.Duration `mapstructure:"test_ttl"`
}

// RateLimitConfig limits student submissions
type RateLimitConfig struct {
	SubmitLimit  int           `mapstructure:"submit_limit"`
	SubmitWindow time.Duration `mapstructure:"submit_window"`
}

// EmailConfig selects the ranking report sender
type EmailConfig struct {
	Provider     string `mapstructure:"provider"` // resend or noop
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// LogConfig controls zap and file rotation
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// PostgresConnectionString builds the PostgreSQL DSN
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// PostgresURL builds the URL form used by golang-migrate
func (d *DatabaseConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

var envBindings = map[string]string{
	"server.port":          "SERVER_PORT",
	"server.mode":          "GIN_MODE",
	"database.host":        "DATABASE_HOST",
	"database.port":        "DATABASE_PORT",
	"database.user":        "DATABASE_USER",
	"database.password":    "DATABASE_PASSWORD",
	"database.dbname":      "DATABASE_DBNAME",
	"database.sslmode":     "DATABASE_SSLMODE",
	"redis.mode":           "REDIS_MODE",
	"redis.addrs":          "REDIS_ADDRS",
	"redis.addr":           "REDIS_ADDR",
	"redis.password":       "REDIS_PASSWORD",
	"redis.db":             "REDIS_DB",
	"redis.master_name":    "REDIS_MASTER_NAME",
	"jwt.secret":           "JWT_SECRET",
	"jwt.issuer":           "JWT_ISSUER",
	"cors.allowed_origins": "CORS_ALLOWED_ORIGINS",
	"email.provider":       "EMAIL_PROVIDER",
	"email.resend_api_key": "RESEND_API_KEY",
	"email.from":           "EMAIL_FROM",
	"log.level":            "LOG_LEVEL",
	"log.file":             "LOG_FILE",
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.mode", "debug")
	vip.SetDefault("server.read_timeout", 10*time.Second)
	vip.SetDefault("server.write_timeout", 30*time.Second)

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.max_open_conns", 25)
	vip.SetDefault("database.max_idle_conns", 10)
	vip.SetDefault("database.conn_max_lifetime", time.Hour)
	vip.SetDefault("database.migrations_path", "migrations")

	vip.SetDefault("redis.mode", "single")

	vip.SetDefault("ranking.lock_ttl", 2*time.Minute)
	vip.SetDefault("ranking.lock_wait", 30*time.Second)
	vip.SetDefault("ranking.lock_retry", 200*time.Millisecond)
	vip.SetDefault("ranking.end_grace", 2*time.Minute)
	vip.SetDefault("ranking.lookback", 24*time.Hour)
	vip.SetDefault("ranking.auto_submit_concurrency", 8)

	vip.SetDefault("cache.test_ttl", 10*time.Minute)

	vip.SetDefault("rate_limit.submit_limit", 5)
	vip.SetDefault("rate_limit.submit_window", time.Minute)

	vip.SetDefault("email.provider", "noop")

	vip.SetDefault("log.level", "info")
	vip.SetDefault("log.file", "logs/app.log")
	vip.SetDefault("log.max_size_mb", 100)
	vip.SetDefault("log.max_backups", 5)
	vip.SetDefault("log.max_age_days", 30)
	vip.SetDefault("log.compress", true)
	vip.SetDefault("log.console", true)
}

// Load reads configuration from an optional file and environment variables.
// Environment variables win over the file.
func Load(configPath string) (*Config, error) {
	vip := viper.New()
	setDefaults(vip)

	for key, env := range envBindings {
		if err := vip.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize splits comma separated env values that viper hands over as one element.
func (c *Config) normalize() {
	c.Redis.Addrs = splitList(c.Redis.Addrs)
	c.CORS.AllowedOrigins = splitList(c.CORS.AllowedOrigins)
	c.Server.TrustedProxies = splitList(c.Server.TrustedProxies)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (check JWT_SECRET env var)")
	}
	if c.Server.IsRelease() && c.Database.Password == "" {
		return fmt.Errorf("database password is required in release mode (check DATABASE_PASSWORD env var)")
	}
	if c.Email.Provider == "resend" && c.Email.ResendAPIKey == "" {
		return fmt.Errorf("resend provider selected but RESEND_API_KEY is empty")
	}
	if c.Ranking.LockWait <= 0 || c.Ranking.LockTTL <= 0 {
		return fmt.Errorf("ranking lock_ttl and lock_wait must be positive")
	}
	return nil
}

// LogFields returns the non-secret settings worth printing at startup
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("server_port", c.Server.Port),
		zap.String("server_mode", c.Server.Mode),
		zap.String("db_host", c.Database.Host),
		zap.String("db_name", c.Database.DBName),
		zap.String("db_sslmode", c.Database.SSLMode),
		zap.String("redis_mode", c.Redis.Mode),
		zap.Bool("redis_enabled", c.Redis.Enabled()),
		zap.String("email_provider", c.Email.Provider),
		zap.Duration("ranking_end_grace", c.Ranking.EndGrace),
		zap.Duration("ranking_lock_wait", c.Ranking.LockWait),
	}
}
