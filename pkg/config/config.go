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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	OTP           OTPConfig
	Contracts     ContractsConfig
	Notifications NotificationsConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// OTPConfig governs e-signature verification codes.
type OTPConfig struct {
	TTL        time.Duration
	CodeLength int
	SenderName string
}

// ContractsConfig tunes lifecycle policy knobs.
type ContractsConfig struct {
	AutoSignTutor      bool
	ApprovalDeadline   time.Duration
	SigningDeadline    time.Duration
	StatsCacheTTL      time.Duration
	DefaultGraceDays   int
	DefaultLateFeePct  int
	DefaultRefundPct   int
	DefaultNoticeDays  int
	FirstInstallmentIn time.Duration
}

// NotificationsConfig configures the in-process dispatch queue.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
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
		if !errors.As(err, &notFound) {
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.OTP = OTPConfig{
		TTL:        parseDuration(v.GetString("OTP_TTL"), 5*time.Minute),
		CodeLength: v.GetInt("OTP_CODE_LENGTH"),
		SenderName: v.GetString("OTP_SENDER_NAME"),
	}

	cfg.Contracts = ContractsConfig{
		AutoSignTutor:      v.GetBool("CONTRACTS_AUTO_SIGN_TUTOR"),
		ApprovalDeadline:   parseDuration(v.GetString("CONTRACTS_APPROVAL_DEADLINE"), 7*24*time.Hour),
		SigningDeadline:    parseDuration(v.GetString("CONTRACTS_SIGNING_DEADLINE"), 7*24*time.Hour),
		StatsCacheTTL:      parseDuration(v.GetString("CONTRACTS_STATS_CACHE_TTL"), 5*time.Minute),
		DefaultGraceDays:   v.GetInt("CONTRACTS_DEFAULT_GRACE_DAYS"),
		DefaultLateFeePct:  v.GetInt("CONTRACTS_DEFAULT_LATE_FEE_PCT"),
		DefaultRefundPct:   v.GetInt("CONTRACTS_DEFAULT_REFUND_PCT"),
		DefaultNoticeDays:  v.GetInt("CONTRACTS_DEFAULT_NOTICE_DAYS"),
		FirstInstallmentIn: parseDuration(v.GetString("CONTRACTS_FIRST_INSTALLMENT_IN"), 72*time.Hour),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATIONS_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATIONS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 2*time.Second),
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
	v.SetDefault("DB_NAME", "skillbridge")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_CODE_LENGTH", 6)
	v.SetDefault("OTP_SENDER_NAME", "SkillBridge")

	v.SetDefault("CONTRACTS_AUTO_SIGN_TUTOR", true)
	v.SetDefault("CONTRACTS_APPROVAL_DEADLINE", "168h")
	v.SetDefault("CONTRACTS_SIGNING_DEADLINE", "168h")
	v.SetDefault("CONTRACTS_STATS_CACHE_TTL", "5m")
	v.SetDefault("CONTRACTS_DEFAULT_GRACE_DAYS", 3)
	v.SetDefault("CONTRACTS_DEFAULT_LATE_FEE_PCT", 5)
	v.SetDefault("CONTRACTS_DEFAULT_REFUND_PCT", 50)
	v.SetDefault("CONTRACTS_DEFAULT_NOTICE_DAYS", 7)
	v.SetDefault("CONTRACTS_FIRST_INSTALLMENT_IN", "72h")

	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "2s")
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
