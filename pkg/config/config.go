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

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Recognition RecognitionConfig
	Reports     ReportsConfig
	Mail        MailConfig
	Attendance  AttendanceConfig
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
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RecognitionConfig points at the external face recognition service.
type RecognitionConfig struct {
	BaseURL             string
	ConfidenceThreshold float64
	Timeout             time.Duration
	BatchTimeout        time.Duration
	RegisterTimeout     time.Duration
	MaxRetries          int
	RetryBaseDelay      time.Duration
}

// ReportsConfig governs spreadsheet artifact storage and signed downloads.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

// MailConfig configures the SMTP dispatcher.
type MailConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	AlertThreshold float64
	BulkSendDelay  time.Duration
	QueueWorkers   int
}

// AttendanceConfig tunes reconciliation defaults.
type AttendanceConfig struct {
	RestDay           time.Weekday
	DefaultConfidence float64
	StatsCacheTTL     time.Duration
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
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Recognition = RecognitionConfig{
		BaseURL:             v.GetString("RECOGNITION_SERVICE_URL"),
		ConfidenceThreshold: v.GetFloat64("RECOGNITION_CONFIDENCE_THRESHOLD"),
		Timeout:             parseDuration(v.GetString("RECOGNITION_TIMEOUT"), 30*time.Second),
		BatchTimeout:        parseDuration(v.GetString("RECOGNITION_BATCH_TIMEOUT"), 2*time.Minute),
		RegisterTimeout:     parseDuration(v.GetString("RECOGNITION_REGISTER_TIMEOUT"), 2*time.Minute),
		MaxRetries:          v.GetInt("RECOGNITION_MAX_RETRIES"),
		RetryBaseDelay:      parseDuration(v.GetString("RECOGNITION_RETRY_BASE_DELAY"), time.Second),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.Mail = MailConfig{
		Host:           v.GetString("SMTP_HOST"),
		Port:           v.GetInt("SMTP_PORT"),
		Username:       v.GetString("SMTP_USERNAME"),
		Password:       v.GetString("SMTP_PASSWORD"),
		From:           v.GetString("SMTP_FROM"),
		AlertThreshold: v.GetFloat64("MAIL_ALERT_THRESHOLD"),
		BulkSendDelay:  parseDuration(v.GetString("MAIL_BULK_SEND_DELAY"), 500*time.Millisecond),
		QueueWorkers:   v.GetInt("MAIL_QUEUE_WORKERS"),
	}

	restDay := v.GetInt("ATTENDANCE_REST_DAY")
	if restDay < 0 || restDay > 6 {
		restDay = int(time.Sunday)
	}
	cfg.Attendance = AttendanceConfig{
		RestDay:           time.Weekday(restDay),
		DefaultConfidence: v.GetFloat64("ATTENDANCE_DEFAULT_CONFIDENCE"),
		StatsCacheTTL:     parseDuration(v.GetString("ATTENDANCE_STATS_CACHE_TTL"), 5*time.Minute),
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
	v.SetDefault("DB_NAME", "face_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RECOGNITION_SERVICE_URL", "http://localhost:5000")
	v.SetDefault("RECOGNITION_CONFIDENCE_THRESHOLD", 0.6)
	v.SetDefault("RECOGNITION_TIMEOUT", "30s")
	v.SetDefault("RECOGNITION_BATCH_TIMEOUT", "2m")
	v.SetDefault("RECOGNITION_REGISTER_TIMEOUT", "2m")
	v.SetDefault("RECOGNITION_MAX_RETRIES", 3)
	v.SetDefault("RECOGNITION_RETRY_BASE_DELAY", "1s")

	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "attendance@university.edu")
	v.SetDefault("MAIL_ALERT_THRESHOLD", 75.0)
	v.SetDefault("MAIL_BULK_SEND_DELAY", "500ms")
	v.SetDefault("MAIL_QUEUE_WORKERS", 1)

	v.SetDefault("ATTENDANCE_REST_DAY", int(time.Sunday))
	v.SetDefault("ATTENDANCE_DEFAULT_CONFIDENCE", 0.9)
	v.SetDefault("ATTENDANCE_STATS_CACHE_TTL", "5m")
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
