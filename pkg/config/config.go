package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store names used in configuration, logging and migrations.
const (
	StoreIdentity = "identity"
	StoreAcademic = "academic"
	StoreSupport  = "support"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Identity StoreConfig
	Academic StoreConfig
	Support  StoreConfig

	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Reports    ReportsConfig
	Audit      AuditConfig
	Enrollment EnrollmentConfig
}

// StoreConfig describes one independently provisioned database.
type StoreConfig struct {
	Name            string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

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

// ReportsConfig controls caching of the enrollment report.
type ReportsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// AuditConfig tunes delivery of audit rows to the support store.
type AuditConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// EnrollmentConfig bounds the enrollment transaction.
type EnrollmentConfig struct {
	TxTimeout time.Duration
}

// ErrMissingStoreURL is returned by Validate when a connection string is absent.
var ErrMissingStoreURL = errors.New("missing store connection string")

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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Identity = storeConfig(v, StoreIdentity, "DATABASE_AUTH_URL")
	cfg.Academic = storeConfig(v, StoreAcademic, "DATABASE_ACADEMIC_URL")
	cfg.Support = storeConfig(v, StoreSupport, "DATABASE_SUPPORT_URL")

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

	cfg.Reports = ReportsConfig{
		CacheEnabled: v.GetBool("ENABLE_REPORT_CACHE"),
		CacheTTL:     parseDuration(v.GetString("REPORT_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		Retries:    v.GetInt("AUDIT_RETRIES"),
		RetryDelay: parseDuration(v.GetString("AUDIT_RETRY_DELAY"), time.Second),
	}

	cfg.Enrollment = EnrollmentConfig{
		TxTimeout: parseDuration(v.GetString("ENROLLMENT_TX_TIMEOUT"), 5*time.Second),
	}

	return cfg
}

func storeConfig(v *viper.Viper, name, urlKey string) StoreConfig {
	prefix := "DB_" + strings.ToUpper(name) + "_"
	maxOpen := v.GetInt(prefix + "MAX_OPEN_CONNS")
	if maxOpen <= 0 {
		maxOpen = v.GetInt("DB_MAX_OPEN_CONNS")
	}
	maxIdle := v.GetInt(prefix + "MAX_IDLE_CONNS")
	if maxIdle <= 0 {
		maxIdle = v.GetInt("DB_MAX_IDLE_CONNS")
	}
	return StoreConfig{
		Name:            name,
		URL:             strings.TrimSpace(v.GetString(urlKey)),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}
}

// Stores returns the three store sections in bootstrap order.
func (c *Config) Stores() []StoreConfig {
	return []StoreConfig{c.Identity, c.Academic, c.Support}
}

// Validate reports every missing connection string. A missing store is a
// startup condition; callers abort the process instead of serving requests.
func (c *Config) Validate() error {
	var missing []string
	for _, store := range c.Stores() {
		if store.URL == "" {
			missing = append(missing, store.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingStoreURL, strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DATABASE_AUTH_URL", "")
	v.SetDefault("DATABASE_ACADEMIC_URL", "")
	v.SetDefault("DATABASE_SUPPORT_URL", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_REPORT_CACHE", false)
	v.SetDefault("REPORT_CACHE_TTL", "5m")

	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_RETRIES", 3)
	v.SetDefault("AUDIT_RETRY_DELAY", "1s")

	v.SetDefault("ENROLLMENT_TX_TIMEOUT", "5s")
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
